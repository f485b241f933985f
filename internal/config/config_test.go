package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/inventory-ledger/internal/core/forecast"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	engine := cfg.Forecast.Engine()
	want := forecast.DefaultConfig()
	assert.Equal(t, want.Windows, engine.Windows)
	assert.Equal(t, want.PrimaryWindow, engine.PrimaryWindow)
	assert.True(t, want.FastUnitsPerDay.Equal(engine.FastUnitsPerDay))
	assert.True(t, want.MediumUnitsPerDay.Equal(engine.MediumUnitsPerDay))
	assert.False(t, cfg.Forecast.CacheEnabled(), "forecasts recompute on every request by default")
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store: memory
log_level: debug
server:
  http_addr: ":9090"
redis:
  enabled: false
ledger:
  max_retries: 5
  retry_backoff: 25ms
forecast:
  primary_window: 60
  cache_ttl: 2m
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, StoreMemory, cfg.Store)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, ":50051", cfg.Server.GRPCAddr, "unset keys keep defaults")
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 5, cfg.Ledger.MaxRetries)
	assert.Equal(t, 25*time.Millisecond, cfg.Ledger.RetryBackoff)
	assert.Equal(t, 60, cfg.Forecast.PrimaryWindow)
	assert.Equal(t, 2*time.Minute, cfg.Forecast.CacheTTL)
	assert.True(t, cfg.Forecast.CacheEnabled())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"INVENTORY_MYSQL_DSN":  "user:pw@tcp(db:3306)/inv?parseTime=true",
		"INVENTORY_REDIS_ADDR": "cache:6379",
		"INVENTORY_LOG_LEVEL":  "WARN",
		"ENVIRONMENT":          "production",
		"VERSION":              "",
	}
	cfg := Default()
	require.NoError(t, cfg.applyEnv(func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}))

	assert.Equal(t, "user:pw@tcp(db:3306)/inv?parseTime=true", cfg.MySQL.DSN)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "dev", cfg.Version, "empty values are ignored")
}

func TestApplyEnv_RedisEnabled(t *testing.T) {
	tests := []struct {
		value   string
		want    bool
		wantErr bool
	}{
		{"false", false, false},
		{"0", false, false},
		{"true", true, false},
		{"", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			cfg := Default()
			err := cfg.applyEnv(func(key string) (string, bool) {
				if key == "INVENTORY_REDIS_ENABLED" {
					return tt.value, true
				}
				return "", false
			})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cfg.Redis.Enabled)
		})
	}
}

func TestLoad_EnvDisablesRedis(t *testing.T) {
	t.Setenv("INVENTORY_REDIS_ENABLED", "false")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_EnvOverridesDefaults(t *testing.T) {
	t.Setenv("INVENTORY_HTTP_ADDR", ":7070")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.Server.HTTPAddr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown store", func(c *Config) { c.Store = "postgres" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"mysql without dsn", func(c *Config) { c.MySQL.DSN = "" }},
		{"redis without addr", func(c *Config) { c.Redis.Addr = "" }},
		{"zero retries", func(c *Config) { c.Ledger.MaxRetries = 0 }},
		{"primary not a window", func(c *Config) { c.Forecast.PrimaryWindow = 45 }},
		{"negative window", func(c *Config) { c.Forecast.Windows = []int{30, -1} }},
		{"density above one", func(c *Config) { c.Forecast.IntermittentDensity = 1.5 }},
		{"medium above fast", func(c *Config) { c.Forecast.MediumUnitsPerDay = 20 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("memory store needs no dsn", func(t *testing.T) {
		cfg := Default()
		cfg.Store = StoreMemory
		cfg.MySQL.DSN = ""
		assert.NoError(t, cfg.Validate())
	})
}
