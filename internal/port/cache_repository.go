package port

import (
	"context"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency claims key with value, returns false if already claimed
	SetIdempotency(ctx context.Context, key, value string) (bool, error)

	// GetIdempotency returns false when key is not claimed
	GetIdempotency(ctx context.Context, key string) (string, bool, error)

	// ClearIdempotency drops the claim only if it still holds value
	ClearIdempotency(ctx context.Context, key, value string) (bool, error)

	// ReplaceIdempotency swaps the claim's value if it still holds old,
	// keeping its expiry
	ReplaceIdempotency(ctx context.Context, key, old, value string) (bool, error)

	// GetForecasts returns false when nothing is cached for key
	GetForecasts(ctx context.Context, key string) ([]domain.DepletionForecast, bool, error)

	SetForecasts(ctx context.Context, key string, forecasts []domain.DepletionForecast) error
}
