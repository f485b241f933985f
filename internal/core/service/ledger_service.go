package service

import (
	"context"
	"fmt"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

// LedgerService is the read side of the ledger. Writes go through the
// adjustment and allocation services only.
type LedgerService struct {
	ledger port.LedgerRepository
}

func NewLedgerService(ledger port.LedgerRepository) *LedgerService {
	return &LedgerService{ledger: ledger}
}

func (s *LedgerService) Get(ctx context.Context, key domain.RecordKey) (*domain.InventoryRecord, error) {
	if key.TenantID == "" || key.SkuID == "" || key.Location == "" {
		return nil, domain.NewValidation("tenant, sku and location are required")
	}

	rec, err := s.ledger.GetRecord(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}
	if rec == nil {
		return nil, domain.NewNotFound("no inventory for sku %s at %s", key.SkuID, key.Location)
	}
	return rec, nil
}

func (s *LedgerService) History(ctx context.Context, key domain.RecordKey, limit int) ([]domain.AdjustmentEvent, error) {
	if key.TenantID == "" || key.SkuID == "" || key.Location == "" {
		return nil, domain.NewValidation("tenant, sku and location are required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	events, err := s.ledger.ListEvents(ctx, key, limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return events, nil
}
