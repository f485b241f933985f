package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

type orderKey struct {
	tenantID string
	orderID  string
}

type memoryOrder struct {
	location    string
	lines       []domain.OrderLine
	fulfilledAt *time.Time
}

// MemoryStore is an in-process ledger, order history and catalog. A
// transaction holds the store lock for its whole duration and buffers its
// writes, so a failed or panicking transaction leaves no trace.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[domain.RecordKey]domain.InventoryRecord
	events   []domain.AdjustmentEvent
	orders   map[orderKey]memoryOrder
	products map[string][]domain.Product
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[domain.RecordKey]domain.InventoryRecord),
		orders:   make(map[orderKey]memoryOrder),
		products: make(map[string][]domain.Product),
	}
}

var (
	_ port.LedgerRepository = (*MemoryStore)(nil)
	_ port.OrderReader      = (*MemoryStore)(nil)
	_ port.CatalogReader    = (*MemoryStore)(nil)
)

func (m *MemoryStore) WithTransaction(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{store: m, writes: make(map[domain.RecordKey]domain.InventoryRecord)}
	if err := fn(tx); err != nil {
		return err
	}

	for key, rec := range tx.writes {
		m.records[key] = rec
	}
	m.events = append(m.events, tx.events...)
	return nil
}

func (m *MemoryStore) GetRecord(ctx context.Context, key domain.RecordKey) (*domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *MemoryStore) ListRecords(ctx context.Context, tenantID, location string) ([]domain.InventoryRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.InventoryRecord
	for key, rec := range m.records {
		if key.TenantID != tenantID || (location != "" && key.Location != location) {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SkuID != out[j].SkuID {
			return out[i].SkuID < out[j].SkuID
		}
		return out[i].Location < out[j].Location
	})
	return out, nil
}

func (m *MemoryStore) ListEvents(ctx context.Context, key domain.RecordKey, limit int) ([]domain.AdjustmentEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.AdjustmentEvent
	for i := len(m.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		ev := m.events[i]
		if ev.TenantID == key.TenantID && ev.SkuID == key.SkuID && ev.Location == key.Location {
			out = append(out, ev)
		}
	}
	return out, nil
}

// PutOrder registers an open order. Used to seed tests and local runs.
func (m *MemoryStore) PutOrder(tenantID, orderID, location string, lines []domain.OrderLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[orderKey{tenantID, orderID}] = memoryOrder{location: location, lines: lines}
}

// FulfillOrder marks an order fulfilled at the given time.
func (m *MemoryStore) FulfillOrder(tenantID, orderID string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := orderKey{tenantID, orderID}
	if o, ok := m.orders[key]; ok {
		o.fulfilledAt = &at
		m.orders[key] = o
	}
}

func (m *MemoryStore) PutProduct(tenantID string, p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[tenantID] = append(m.products[tenantID], p)
}

func (m *MemoryStore) OrderLines(ctx context.Context, tenantID, orderID string) ([]domain.OrderLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderKey{tenantID, orderID}]
	if !ok {
		return nil, domain.NewNotFound("order %s not found", orderID)
	}
	return append([]domain.OrderLine(nil), o.lines...), nil
}

func (m *MemoryStore) FulfilledSales(ctx context.Context, tenantID, location string, since, until time.Time) ([]domain.SalesSample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.SalesSample
	for key, o := range m.orders {
		if key.tenantID != tenantID || o.fulfilledAt == nil {
			continue
		}
		if location != "" && o.location != location {
			continue
		}
		if o.fulfilledAt.Before(since) || !o.fulfilledAt.Before(until) {
			continue
		}
		for _, l := range o.lines {
			out = append(out, domain.SalesSample{SkuID: l.SkuID, OrderID: key.orderID, Quantity: l.Quantity, FulfilledAt: *o.fulfilledAt})
		}
	}
	return out, nil
}

func (m *MemoryStore) ActiveProducts(ctx context.Context, tenantID string) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Product(nil), m.products[tenantID]...), nil
}

type memoryTx struct {
	store  *MemoryStore
	writes map[domain.RecordKey]domain.InventoryRecord
	events []domain.AdjustmentEvent
}

func (t *memoryTx) lookup(key domain.RecordKey) (domain.InventoryRecord, bool) {
	if rec, ok := t.writes[key]; ok {
		return rec, true
	}
	rec, ok := t.store.records[key]
	return rec, ok
}

func (t *memoryTx) GetForUpdate(ctx context.Context, key domain.RecordKey) (*domain.InventoryRecord, error) {
	rec, ok := t.lookup(key)
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (t *memoryTx) Insert(ctx context.Context, rec domain.InventoryRecord) error {
	if _, ok := t.lookup(rec.Key()); ok {
		return domain.NewConcurrencyConflict("record already exists")
	}
	rec.Version = 1
	t.writes[rec.Key()] = rec
	return nil
}

func (t *memoryTx) Update(ctx context.Context, rec domain.InventoryRecord) error {
	current, ok := t.lookup(rec.Key())
	if !ok || current.Version != rec.Version {
		return domain.NewConcurrencyConflict("stale record version")
	}
	rec.Version++
	rec.CreatedAt = current.CreatedAt
	t.writes[rec.Key()] = rec
	return nil
}

func (t *memoryTx) AppendEvent(ctx context.Context, ev domain.AdjustmentEvent) error {
	t.events = append(t.events, ev)
	return nil
}
