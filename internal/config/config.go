// Package config loads service settings from an optional YAML file with
// environment overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/inventory-ledger/internal/core/forecast"
)

const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	Environment string         `yaml:"environment"`
	Version     string         `yaml:"version"`
	LogLevel    string         `yaml:"log_level" validate:"oneof=debug info warn warning error"`
	Store       string         `yaml:"store" validate:"oneof=mysql memory"`
	Server      ServerConfig   `yaml:"server"`
	MySQL       MySQLConfig    `yaml:"mysql"`
	Redis       RedisConfig    `yaml:"redis"`
	Ledger      LedgerConfig   `yaml:"ledger"`
	Forecast    ForecastConfig `yaml:"forecast"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr" validate:"required"`
	GRPCAddr        string        `yaml:"grpc_addr" validate:"required"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
	HealthInterval  time.Duration `yaml:"health_interval" validate:"gt=0"`
}

type MySQLConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" validate:"gte=0"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	PoolSize int    `yaml:"pool_size" validate:"gte=1"`
}

type LedgerConfig struct {
	MaxRetries   int           `yaml:"max_retries" validate:"gte=1,lte=20"`
	RetryBackoff time.Duration `yaml:"retry_backoff" validate:"gte=0"`
}

type ForecastConfig struct {
	Windows             []int         `yaml:"windows" validate:"required,min=1,dive,gt=0"`
	PrimaryWindow       int           `yaml:"primary_window" validate:"gt=0"`
	MinHistoryDays      int           `yaml:"min_history_days" validate:"gte=0"`
	MinSalesEvents      int           `yaml:"min_sales_events" validate:"gte=0"`
	FastUnitsPerDay     float64       `yaml:"fast_units_per_day" validate:"gt=0"`
	MediumUnitsPerDay   float64       `yaml:"medium_units_per_day" validate:"gt=0"`
	IntermittentDensity float64       `yaml:"intermittent_density" validate:"gte=0,lte=1"`
	CacheTTL            time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

func Default() Config {
	return Config{
		Environment: "development",
		Version:     "dev",
		LogLevel:    "info",
		Store:       StoreMySQL,
		Server: ServerConfig{
			HTTPAddr:        ":8080",
			GRPCAddr:        ":50051",
			ShutdownTimeout: 5 * time.Second,
			HealthInterval:  10 * time.Second,
		},
		MySQL: MySQLConfig{
			DSN:             "root:root@tcp(localhost:3306)/inventory?parseTime=true",
			MaxOpenConns:    50,
			MaxIdleConns:    25,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{
			Enabled:  true,
			Addr:     "localhost:6379",
			PoolSize: 100,
		},
		Ledger: LedgerConfig{
			MaxRetries:   3,
			RetryBackoff: 10 * time.Millisecond,
		},
		Forecast: ForecastConfig{
			Windows:             []int{30, 60, 90, 180, 360},
			PrimaryWindow:       90,
			MinHistoryDays:      60,
			MinSalesEvents:      10,
			FastUnitsPerDay:     10,
			MediumUnitsPerDay:   1,
			IntermittentDensity: 0.2,
		},
	}
}

// Load reads path (if non-empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set("INVENTORY_MYSQL_DSN", &c.MySQL.DSN)
	set("INVENTORY_REDIS_ADDR", &c.Redis.Addr)
	set("INVENTORY_HTTP_ADDR", &c.Server.HTTPAddr)
	set("INVENTORY_GRPC_ADDR", &c.Server.GRPCAddr)
	set("INVENTORY_LOG_LEVEL", &c.LogLevel)
	set("INVENTORY_STORE", &c.Store)
	set("ENVIRONMENT", &c.Environment)
	set("VERSION", &c.Version)
	c.LogLevel = strings.ToLower(c.LogLevel)

	if v, ok := lookup("INVENTORY_REDIS_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid INVENTORY_REDIS_ENABLED %q: %w", v, err)
		}
		c.Redis.Enabled = enabled
	}
	return nil
}

func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Store == StoreMySQL && c.MySQL.DSN == "" {
		return fmt.Errorf("invalid config: mysql.dsn is required for the mysql store")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("invalid config: redis.addr is required when redis is enabled")
	}
	if err := c.Forecast.Engine().Validate(); err != nil {
		return fmt.Errorf("invalid config: forecast: %w", err)
	}
	return nil
}

// CacheEnabled reports whether forecast snapshots are cached between
// requests. Zero TTL means every request recomputes.
func (f ForecastConfig) CacheEnabled() bool {
	return f.CacheTTL > 0
}

// Engine converts the file settings into the forecast engine's config.
func (f ForecastConfig) Engine() forecast.Config {
	return forecast.Config{
		Windows:             f.Windows,
		PrimaryWindow:       f.PrimaryWindow,
		MinHistoryDays:      f.MinHistoryDays,
		MinSalesEvents:      f.MinSalesEvents,
		FastUnitsPerDay:     decimal.NewFromFloat(f.FastUnitsPerDay),
		MediumUnitsPerDay:   decimal.NewFromFloat(f.MediumUnitsPerDay),
		IntermittentDensity: f.IntermittentDensity,
	}
}
