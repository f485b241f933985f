package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/metrics"
)

// retrier reruns a whole read-validate-write transaction when the store
// reports a version conflict. Other errors are returned immediately.
type retrier struct {
	maxAttempts int
	backoff     time.Duration
	logger      *slog.Logger
	metrics     *metrics.Inventory
}

func newRetrier(opts Options) retrier {
	return retrier{
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.RetryBackoff,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
	}
}

func (r retrier) do(ctx context.Context, operation string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, domain.ErrConcurrencyConflict) {
			return err
		}
		if attempt == r.maxAttempts {
			break
		}

		r.metrics.ObserveRetry(operation)
		r.logger.WarnContext(ctx, "ledger conflict, retrying",
			"operation", operation,
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("%s gave up after %d attempts: %w", operation, r.maxAttempts, err)
}
