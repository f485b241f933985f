package port

import (
	"context"
	"time"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

// LedgerTx is the view of the ledger inside one transaction. Rows read with
// GetForUpdate stay locked until the transaction ends.
type LedgerTx interface {
	// GetForUpdate returns nil, nil when no record exists for key
	GetForUpdate(ctx context.Context, key domain.RecordKey) (*domain.InventoryRecord, error)

	// Insert creates a record at version 1, fails with a concurrency conflict if it already exists
	Insert(ctx context.Context, record domain.InventoryRecord) error

	// Update writes on-hand and allocated if the stored version still equals record.Version
	Update(ctx context.Context, record domain.InventoryRecord) error

	AppendEvent(ctx context.Context, event domain.AdjustmentEvent) error
}

type LedgerRepository interface {
	// WithTransaction commits when fn returns nil and rolls back on error or panic
	WithTransaction(ctx context.Context, fn func(tx LedgerTx) error) error

	// GetRecord returns nil, nil when the key has no record
	GetRecord(ctx context.Context, key domain.RecordKey) (*domain.InventoryRecord, error)

	// ListRecords returns every record of a tenant, or of one location when location is set
	ListRecords(ctx context.Context, tenantID, location string) ([]domain.InventoryRecord, error)

	// ListEvents returns the newest events for key first
	ListEvents(ctx context.Context, key domain.RecordKey, limit int) ([]domain.AdjustmentEvent, error)
}

// OrderReader reads order data owned by the order-flow service.
type OrderReader interface {
	// OrderLines returns a NotFound error for unknown orders
	OrderLines(ctx context.Context, tenantID, orderID string) ([]domain.OrderLine, error)

	// FulfilledSales returns fulfilled lines with fulfilment time in [since, until)
	FulfilledSales(ctx context.Context, tenantID, location string, since, until time.Time) ([]domain.SalesSample, error)
}

type CatalogReader interface {
	ActiveProducts(ctx context.Context, tenantID string) ([]domain.Product, error)
}
