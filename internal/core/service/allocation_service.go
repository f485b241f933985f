package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/metrics"
	"github.com/rl1809/inventory-ledger/internal/port"
)

type AllocationResult struct {
	OrderID  string                   `json:"orderId"`
	Location string                   `json:"location"`
	Records  []domain.InventoryRecord `json:"records"`
}

type ReleaseResult struct {
	OrderID  string              `json:"orderId"`
	Location string              `json:"location"`
	Lines    []domain.LineResult `json:"lines"`
}

// AllocationService reserves stock against orders and gives it back.
// Every mutating call is all-or-nothing across the order's lines.
type AllocationService struct {
	ledger  port.LedgerRepository
	orders  port.OrderReader
	cache   port.CacheRepository
	retry   retrier
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Inventory
}

// NewAllocationService wires the engine. cache may be nil, which disables the
// duplicate-submission guard.
func NewAllocationService(ledger port.LedgerRepository, orders port.OrderReader, cache port.CacheRepository, opts Options) *AllocationService {
	opts = opts.withDefaults()
	return &AllocationService{
		ledger:  ledger,
		orders:  orders,
		cache:   cache,
		retry:   newRetrier(opts),
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

func allocationClaimKey(tenantID, orderID, location string) string {
	return fmt.Sprintf("allocation:%s:%s:%s", tenantID, orderID, location)
}

// CanAllocate is a read-only dry run over the order's lines. The authoritative
// check happens again inside Allocate.
func (s *AllocationService) CanAllocate(ctx context.Context, tenantID, orderID, location string) (*domain.AllocationCheck, error) {
	if tenantID == "" || orderID == "" || location == "" {
		return nil, domain.NewValidation("tenant, order and location are required")
	}

	lines, err := s.orders.OrderLines(ctx, tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order lines: %w", err)
	}

	check := &domain.AllocationCheck{
		OrderID:     orderID,
		Location:    location,
		CanAllocate: true,
		Details:     make([]domain.AllocationDetail, 0, len(lines)),
	}
	for _, line := range domain.MergeLines(lines) {
		rec, err := s.ledger.GetRecord(ctx, domain.RecordKey{TenantID: tenantID, SkuID: line.SkuID, Location: location})
		if err != nil {
			return nil, fmt.Errorf("get record %s: %w", line.SkuID, err)
		}

		available := 0
		if rec != nil {
			available = rec.Available()
		}
		sufficient := available >= line.Quantity
		check.CanAllocate = check.CanAllocate && sufficient
		check.Details = append(check.Details, domain.AllocationDetail{
			SkuID:      line.SkuID,
			Required:   line.Quantity,
			Available:  available,
			Sufficient: sufficient,
		})
	}
	return check, nil
}

// Allocate reserves every line or none. A line whose location has no record
// counts as zero available and is reported as missing in the shortfall.
func (s *AllocationService) Allocate(ctx context.Context, req domain.AllocationRequest) (*AllocationResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	lines := domain.MergeLines(req.Lines)

	claimKey := allocationClaimKey(req.TenantID, req.OrderID, req.Location)
	claimValue, claimed, err := s.claim(ctx, claimKey, lines)
	if err != nil {
		return nil, err
	}

	var result *AllocationResult
	err = s.retry.do(ctx, "allocate", func() error {
		var err error
		result, err = s.allocateOnce(ctx, req, lines)
		return err
	})
	if err != nil {
		s.metrics.ObserveAllocation("allocate", metrics.ResultFailure)
		if claimed {
			s.dropClaim(ctx, claimKey, claimValue)
		}
		s.logFailure(ctx, "allocate", req, err)
		return nil, err
	}

	s.metrics.ObserveAllocation("allocate", metrics.ResultSuccess)
	s.logger.InfoContext(ctx, "order allocated",
		"tenant", req.TenantID,
		"order", req.OrderID,
		"location", req.Location,
		"lines", len(lines),
	)
	return result, nil
}

// claim takes the order's duplicate-allocation key. When the claim store is
// unreachable the allocation proceeds unguarded.
func (s *AllocationService) claim(ctx context.Context, key string, lines []domain.OrderLine) (string, bool, error) {
	if s.cache == nil {
		return "", false, nil
	}

	value, err := allocationClaim{Owner: uuid.NewString(), Lines: lines}.encode()
	if err != nil {
		return "", false, err
	}
	ok, err := s.cache.SetIdempotency(ctx, key, value)
	if err != nil {
		s.metrics.ObserveClaimError("claim")
		s.logger.WarnContext(ctx, "allocation claim unavailable, continuing without duplicate guard", "key", key, "error", err)
		return "", false, nil
	}
	if !ok {
		s.metrics.ObserveAllocation("allocate", metrics.ResultFailure)
		return "", false, domain.ErrDuplicateAllocation
	}
	return value, true, nil
}

func (s *AllocationService) allocateOnce(ctx context.Context, req domain.AllocationRequest, lines []domain.OrderLine) (*AllocationResult, error) {
	result := &AllocationResult{OrderID: req.OrderID, Location: req.Location}
	err := s.ledger.WithTransaction(ctx, func(tx port.LedgerTx) error {
		now := s.opts.Clock()
		records := make([]*domain.InventoryRecord, len(lines))
		var shortfalls []domain.Shortfall

		for i, line := range lines {
			rec, err := tx.GetForUpdate(ctx, domain.RecordKey{TenantID: req.TenantID, SkuID: line.SkuID, Location: req.Location})
			if err != nil {
				return fmt.Errorf("load record %s: %w", line.SkuID, err)
			}
			if rec == nil {
				shortfalls = append(shortfalls, domain.Shortfall{SkuID: line.SkuID, Required: line.Quantity, Missing: true})
				continue
			}
			if rec.Available() < line.Quantity {
				shortfalls = append(shortfalls, domain.Shortfall{SkuID: line.SkuID, Required: line.Quantity, Available: rec.Available()})
				continue
			}
			records[i] = rec
		}
		if len(shortfalls) > 0 {
			return domain.NewInsufficientInventory(shortfalls)
		}

		result.Records = make([]domain.InventoryRecord, 0, len(lines))
		for i, line := range lines {
			rec := records[i]
			rec.Allocated += line.Quantity
			rec.UpdatedAt = now
			if err := tx.Update(ctx, *rec); err != nil {
				return fmt.Errorf("update record %s: %w", line.SkuID, err)
			}
			rec.Version++

			event := domain.NewAdjustmentEvent(rec.Key(), domain.BucketAllocated, line.Quantity, domain.ReasonAllocation, req.OrderID, req.ActingUserID, now)
			if err := tx.AppendEvent(ctx, event); err != nil {
				return fmt.Errorf("append event %s: %w", line.SkuID, err)
			}
			result.Records = append(result.Records, *rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Release gives back reserved stock for a cancelled or expired order.
// allocated is floored at zero; lines default to the order's own lines.
func (s *AllocationService) Release(ctx context.Context, req domain.AllocationRequest) (*ReleaseResult, error) {
	lines, err := s.resolveLines(ctx, req)
	if err != nil {
		return nil, err
	}

	var result *ReleaseResult
	err = s.retry.do(ctx, "release", func() error {
		result = &ReleaseResult{OrderID: req.OrderID, Location: req.Location}
		return s.ledger.WithTransaction(ctx, func(tx port.LedgerTx) error {
			now := s.opts.Clock()
			result.Lines = make([]domain.LineResult, 0, len(lines))

			for _, line := range lines {
				key := domain.RecordKey{TenantID: req.TenantID, SkuID: line.SkuID, Location: req.Location}
				rec, err := tx.GetForUpdate(ctx, key)
				if err != nil {
					return fmt.Errorf("load record %s: %w", line.SkuID, err)
				}

				lr := domain.LineResult{SkuID: line.SkuID, Requested: line.Quantity}
				if rec == nil || rec.Allocated == 0 {
					result.Lines = append(result.Lines, lr)
					continue
				}

				lr.Applied = min(line.Quantity, rec.Allocated)
				rec.Allocated -= lr.Applied
				rec.UpdatedAt = now
				if err := tx.Update(ctx, *rec); err != nil {
					return fmt.Errorf("update record %s: %w", line.SkuID, err)
				}

				event := domain.NewAdjustmentEvent(key, domain.BucketAllocated, -lr.Applied, domain.ReasonRelease, req.OrderID, req.ActingUserID, now)
				if err := tx.AppendEvent(ctx, event); err != nil {
					return fmt.Errorf("append event %s: %w", line.SkuID, err)
				}
				result.Lines = append(result.Lines, lr)
			}
			return nil
		})
	})
	if err != nil {
		s.metrics.ObserveAllocation("release", metrics.ResultFailure)
		s.logFailure(ctx, "release", req, err)
		return nil, err
	}

	s.settleClaim(ctx, req, lines)
	s.metrics.ObserveAllocation("release", metrics.ResultSuccess)
	s.logger.InfoContext(ctx, "allocation released",
		"tenant", req.TenantID,
		"order", req.OrderID,
		"location", req.Location,
	)
	return result, nil
}

// Consume confirms fulfilment: shipped units leave on-hand and the matching
// reservation is dropped. Fails as a whole if any line lacks on-hand stock.
func (s *AllocationService) Consume(ctx context.Context, req domain.AllocationRequest) (*ReleaseResult, error) {
	lines, err := s.resolveLines(ctx, req)
	if err != nil {
		return nil, err
	}

	var result *ReleaseResult
	err = s.retry.do(ctx, "consume", func() error {
		result = &ReleaseResult{OrderID: req.OrderID, Location: req.Location}
		return s.ledger.WithTransaction(ctx, func(tx port.LedgerTx) error {
			now := s.opts.Clock()
			records := make([]*domain.InventoryRecord, len(lines))
			var shortfalls []domain.Shortfall

			for i, line := range lines {
				rec, err := tx.GetForUpdate(ctx, domain.RecordKey{TenantID: req.TenantID, SkuID: line.SkuID, Location: req.Location})
				if err != nil {
					return fmt.Errorf("load record %s: %w", line.SkuID, err)
				}
				switch {
				case rec == nil:
					shortfalls = append(shortfalls, domain.Shortfall{SkuID: line.SkuID, Required: line.Quantity, Missing: true})
				case rec.OnHand < line.Quantity:
					shortfalls = append(shortfalls, domain.Shortfall{SkuID: line.SkuID, Required: line.Quantity, Available: rec.OnHand})
				default:
					records[i] = rec
				}
			}
			if len(shortfalls) > 0 {
				return &domain.Error{
					Kind:       domain.KindInvalidAdjustment,
					Message:    "fulfilment would leave on-hand negative",
					Shortfalls: shortfalls,
				}
			}

			result.Lines = make([]domain.LineResult, 0, len(lines))
			for i, line := range lines {
				rec := records[i]
				released := min(line.Quantity, rec.Allocated)
				rec.OnHand -= line.Quantity
				rec.Allocated -= released
				rec.UpdatedAt = now
				if err := tx.Update(ctx, *rec); err != nil {
					return fmt.Errorf("update record %s: %w", line.SkuID, err)
				}

				events := []domain.AdjustmentEvent{
					domain.NewAdjustmentEvent(rec.Key(), domain.BucketOnHand, -line.Quantity, domain.ReasonFulfillment, req.OrderID, req.ActingUserID, now),
				}
				if released > 0 {
					events = append(events, domain.NewAdjustmentEvent(rec.Key(), domain.BucketAllocated, -released, domain.ReasonFulfillment, req.OrderID, req.ActingUserID, now))
				}
				for _, ev := range events {
					if err := tx.AppendEvent(ctx, ev); err != nil {
						return fmt.Errorf("append event %s: %w", line.SkuID, err)
					}
				}
				result.Lines = append(result.Lines, domain.LineResult{SkuID: line.SkuID, Requested: line.Quantity, Applied: line.Quantity})
			}
			return nil
		})
	})
	if err != nil {
		s.metrics.ObserveAllocation("consume", metrics.ResultFailure)
		s.logFailure(ctx, "consume", req, err)
		return nil, err
	}

	s.settleClaim(ctx, req, lines)
	s.metrics.ObserveAllocation("consume", metrics.ResultSuccess)
	s.logger.InfoContext(ctx, "allocation consumed",
		"tenant", req.TenantID,
		"order", req.OrderID,
		"location", req.Location,
	)
	return result, nil
}

func (s *AllocationService) resolveLines(ctx context.Context, req domain.AllocationRequest) ([]domain.OrderLine, error) {
	if req.TenantID == "" || req.OrderID == "" || req.Location == "" {
		return nil, domain.NewValidation("tenant, order and location are required")
	}

	lines := req.Lines
	if len(lines) == 0 {
		var err error
		lines, err = s.orders.OrderLines(ctx, req.TenantID, req.OrderID)
		if err != nil {
			return nil, fmt.Errorf("load order lines: %w", err)
		}
	}
	if err := domain.ValidateLines(lines); err != nil {
		return nil, err
	}
	return domain.MergeLines(lines), nil
}

func (s *AllocationService) logFailure(ctx context.Context, operation string, req domain.AllocationRequest, err error) {
	level := slog.LevelError
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		level = slog.LevelWarn
	}
	s.logger.Log(ctx, level, operation+" failed",
		"tenant", req.TenantID,
		"order", req.OrderID,
		"location", req.Location,
		"error", err,
	)
}
