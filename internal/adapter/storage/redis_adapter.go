package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

const (
	idempotencyKeyPrefix = "idempotency:"
	forecastKeyPrefix    = "forecast:"
	idempotencyKeyTTL    = 24 * time.Hour
	defaultForecastTTL   = 10 * time.Minute
)

// clearClaimScript deletes a claim only if it still holds the expected value,
// so a late cleanup never drops a claim taken by a newer request.
var clearClaimScript = redis.NewScript(`
local key = KEYS[1]
local expected = ARGV[1]

if redis.call('GET', key) == expected then
	return redis.call('DEL', key)
end

return 0
`)

var replaceClaimScript = redis.NewScript(`
local key = KEYS[1]
local expected = ARGV[1]
local value = ARGV[2]

if redis.call('GET', key) == expected then
	redis.call('SET', key, value, 'KEEPTTL')
	return 1
end

return 0
`)

type RedisAdapter struct {
	client      *redis.Client
	forecastTTL time.Duration
}

var _ port.CacheRepository = (*RedisAdapter)(nil)

func NewRedisAdapter(client *redis.Client, forecastTTL time.Duration) *RedisAdapter {
	if forecastTTL <= 0 {
		forecastTTL = defaultForecastTTL
	}
	return &RedisAdapter{client: client, forecastTTL: forecastTTL}
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key, value string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, value, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) GetIdempotency(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, idempotencyKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *RedisAdapter) ClearIdempotency(ctx context.Context, key, value string) (bool, error) {
	n, err := clearClaimScript.Run(ctx, r.client, []string{idempotencyKeyPrefix + key}, value).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisAdapter) ReplaceIdempotency(ctx context.Context, key, old, value string) (bool, error) {
	n, err := replaceClaimScript.Run(ctx, r.client, []string{idempotencyKeyPrefix + key}, old, value).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *RedisAdapter) GetForecasts(ctx context.Context, key string) ([]domain.DepletionForecast, bool, error) {
	data, err := r.client.Get(ctx, forecastKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var forecasts []domain.DepletionForecast
	if err := json.Unmarshal(data, &forecasts); err != nil {
		return nil, false, fmt.Errorf("decode cached forecasts: %w", err)
	}
	return forecasts, true, nil
}

func (r *RedisAdapter) SetForecasts(ctx context.Context, key string, forecasts []domain.DepletionForecast) error {
	data, err := json.Marshal(forecasts)
	if err != nil {
		return fmt.Errorf("encode forecasts: %w", err)
	}
	return r.client.Set(ctx, forecastKeyPrefix+key, data, r.forecastTTL).Err()
}
