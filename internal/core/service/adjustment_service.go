package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/metrics"
	"github.com/rl1809/inventory-ledger/internal/port"
)

type AdjustmentResult struct {
	Record domain.InventoryRecord `json:"record"`
	Event  domain.AdjustmentEvent `json:"event"`
}

// AdjustmentService applies manual on-hand deltas with a mandatory reason code.
type AdjustmentService struct {
	ledger  port.LedgerRepository
	retry   retrier
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Inventory
}

func NewAdjustmentService(ledger port.LedgerRepository, opts Options) *AdjustmentService {
	opts = opts.withDefaults()
	return &AdjustmentService{
		ledger:  ledger,
		retry:   newRetrier(opts),
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// Adjust creates the record if absent, applies onHand += delta and appends
// exactly one audit event, all in one transaction. A result below zero is
// rejected with an InvalidAdjustment error.
func (s *AdjustmentService) Adjust(ctx context.Context, adj domain.Adjustment) (*AdjustmentResult, error) {
	if err := adj.Validate(); err != nil {
		s.metrics.ObserveAdjustment(adj.Reason.String(), metrics.ResultFailure)
		return nil, err
	}

	var result AdjustmentResult
	err := s.retry.do(ctx, "adjust", func() error {
		return s.ledger.WithTransaction(ctx, func(tx port.LedgerTx) error {
			now := s.opts.Clock()
			key := adj.Key()

			rec, err := tx.GetForUpdate(ctx, key)
			if err != nil {
				return fmt.Errorf("load record: %w", err)
			}

			created := rec == nil
			if created {
				rec = domain.NewInventoryRecord(key, now)
			}

			onHand := rec.OnHand + adj.QuantityDelta
			if onHand < 0 {
				return domain.NewInvalidAdjustment(fmt.Sprintf(
					"adjustment of %d would leave on-hand at %d for sku %s", adj.QuantityDelta, onHand, adj.SkuID))
			}
			rec.OnHand = onHand
			rec.UpdatedAt = now

			if created {
				err = tx.Insert(ctx, *rec)
				rec.Version = 1
			} else {
				err = tx.Update(ctx, *rec)
				rec.Version++
			}
			if err != nil {
				return fmt.Errorf("write record: %w", err)
			}

			event := domain.NewAdjustmentEvent(key, domain.BucketOnHand, adj.QuantityDelta, adj.Reason, "", adj.ActingUserID, now)
			if err := tx.AppendEvent(ctx, event); err != nil {
				return fmt.Errorf("append event: %w", err)
			}

			result = AdjustmentResult{Record: *rec, Event: event}
			return nil
		})
	})
	if err != nil {
		s.metrics.ObserveAdjustment(adj.Reason.String(), metrics.ResultFailure)
		return nil, err
	}

	s.metrics.ObserveAdjustment(adj.Reason.String(), metrics.ResultSuccess)
	s.logger.InfoContext(ctx, "inventory adjusted",
		"tenant", adj.TenantID,
		"sku", adj.SkuID,
		"location", adj.Location,
		"delta", adj.QuantityDelta,
		"reason", adj.Reason.String(),
		"on_hand", result.Record.OnHand,
		"user", adj.ActingUserID,
	)
	return &result, nil
}
