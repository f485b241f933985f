package service

import (
	"log/slog"
	"time"

	"github.com/rl1809/inventory-ledger/internal/logging"
	"github.com/rl1809/inventory-ledger/internal/metrics"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = 10 * time.Millisecond
)

// Options are shared by every service. Zero values fall back to defaults.
type Options struct {
	MaxAttempts  int
	RetryBackoff time.Duration
	Logger       *slog.Logger
	Metrics      *metrics.Inventory
	Clock        func() time.Time
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = defaultMaxAttempts
	}
	if o.RetryBackoff < 0 {
		o.RetryBackoff = 0
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	return o
}
