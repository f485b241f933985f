package service_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rl1809/inventory-ledger/internal/adapter/storage"
	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/core/service"
	"github.com/rl1809/inventory-ledger/internal/port"
)

const (
	tenant   = "tenant-1"
	location = "main"
)

func key(sku string) domain.RecordKey {
	return domain.RecordKey{TenantID: tenant, SkuID: sku, Location: location}
}

func seedStock(t *testing.T, store *storage.MemoryStore, sku string, qty int) {
	t.Helper()
	_, err := service.NewAdjustmentService(store, service.Options{}).Adjust(context.Background(), domain.Adjustment{
		TenantID:      tenant,
		SkuID:         sku,
		Location:      location,
		QuantityDelta: qty,
		Reason:        domain.ReasonReceiving,
		ActingUserID:  "seed",
	})
	require.NoError(t, err)
}

func getRecord(t *testing.T, store *storage.MemoryStore, sku string) domain.InventoryRecord {
	t.Helper()
	rec, err := store.GetRecord(context.Background(), key(sku))
	require.NoError(t, err)
	require.NotNil(t, rec)
	return *rec
}

// flakyLedger fails the next n Update calls with a version conflict.
type flakyLedger struct {
	*storage.MemoryStore
	conflicts atomic.Int32
}

func (f *flakyLedger) WithTransaction(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	return f.MemoryStore.WithTransaction(ctx, func(tx port.LedgerTx) error {
		return fn(flakyTx{LedgerTx: tx, ledger: f})
	})
}

type flakyTx struct {
	port.LedgerTx
	ledger *flakyLedger
}

func (t flakyTx) Update(ctx context.Context, rec domain.InventoryRecord) error {
	if t.ledger.conflicts.Add(-1) >= 0 {
		return domain.NewConcurrencyConflict("stale version")
	}
	return t.LedgerTx.Update(ctx, rec)
}

// fakeCache is an in-process port.CacheRepository. Like a network client it
// refuses calls once the caller's context is done.
type fakeCache struct {
	mu        sync.Mutex
	claims    map[string]string
	forecasts map[string][]domain.DepletionForecast
	sets      int
	setErr    error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		claims:    make(map[string]string),
		forecasts: make(map[string][]domain.DepletionForecast),
	}
}

func (c *fakeCache) SetIdempotency(ctx context.Context, key, value string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setErr != nil {
		return false, c.setErr
	}
	if _, ok := c.claims[key]; ok {
		return false, nil
	}
	c.claims[key] = value
	return true, nil
}

func (c *fakeCache) GetIdempotency(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.claims[key]
	return v, ok, nil
}

func (c *fakeCache) ClearIdempotency(ctx context.Context, key, value string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.claims[key] != value {
		return false, nil
	}
	delete(c.claims, key)
	return true, nil
}

func (c *fakeCache) ReplaceIdempotency(ctx context.Context, key, old, value string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.claims[key]; !ok || cur != old {
		return false, nil
	}
	c.claims[key] = value
	return true, nil
}

func (c *fakeCache) GetForecasts(_ context.Context, key string) ([]domain.DepletionForecast, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fs, ok := c.forecasts[key]
	return fs, ok, nil
}

func (c *fakeCache) SetForecasts(_ context.Context, key string, fs []domain.DepletionForecast) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forecasts[key] = fs
	c.sets++
	return nil
}

// cancellingLedger cancels the caller's context during its next transaction,
// either before any work or right after the commit.
type cancellingLedger struct {
	*storage.MemoryStore
	cancel      context.CancelFunc
	afterCommit bool
}

func (c *cancellingLedger) WithTransaction(ctx context.Context, fn func(tx port.LedgerTx) error) error {
	cancel := c.cancel
	c.cancel = nil
	if cancel == nil {
		return c.MemoryStore.WithTransaction(ctx, fn)
	}
	if !c.afterCommit {
		cancel()
		return ctx.Err()
	}
	err := c.MemoryStore.WithTransaction(ctx, fn)
	cancel()
	return err
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
