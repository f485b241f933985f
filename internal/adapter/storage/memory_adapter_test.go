package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/port"
)

var memKey = domain.RecordKey{TenantID: "t1", SkuID: "sku-1", Location: "main"}

func seedRecord(t *testing.T, store *MemoryStore, onHand int) {
	t.Helper()
	err := store.WithTransaction(context.Background(), func(tx port.LedgerTx) error {
		rec := domain.NewInventoryRecord(memKey, time.Now())
		rec.OnHand = onHand
		return tx.Insert(context.Background(), *rec)
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
}

func TestMemoryStore_CommitAppliesWrites(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, store, 10)

	err := store.WithTransaction(ctx, func(tx port.LedgerTx) error {
		rec, err := tx.GetForUpdate(ctx, memKey)
		if err != nil {
			return err
		}
		rec.Allocated = 4
		if err := tx.Update(ctx, *rec); err != nil {
			return err
		}
		return tx.AppendEvent(ctx, domain.NewAdjustmentEvent(memKey, domain.BucketAllocated, 4, domain.ReasonAllocation, "o1", "", time.Now()))
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	rec, _ := store.GetRecord(ctx, memKey)
	if rec == nil || rec.Allocated != 4 || rec.Version != 2 {
		t.Errorf("expected allocated 4 at version 2, got %+v", rec)
	}

	events, _ := store.ListEvents(ctx, memKey, 10)
	if len(events) != 1 {
		t.Errorf("expected 1 event, got %d", len(events))
	}
}

func TestMemoryStore_RollbackOnError(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, store, 10)

	boom := errors.New("boom")
	err := store.WithTransaction(ctx, func(tx port.LedgerTx) error {
		rec, _ := tx.GetForUpdate(ctx, memKey)
		rec.OnHand = 0
		tx.Update(ctx, *rec)
		tx.AppendEvent(ctx, domain.NewAdjustmentEvent(memKey, domain.BucketOnHand, -10, domain.ReasonDamage, "", "", time.Now()))
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	rec, _ := store.GetRecord(ctx, memKey)
	if rec.OnHand != 10 {
		t.Errorf("expected on-hand 10 after rollback, got %d", rec.OnHand)
	}
	events, _ := store.ListEvents(ctx, memKey, 10)
	if len(events) != 0 {
		t.Errorf("expected no events after rollback, got %d", len(events))
	}
}

func TestMemoryStore_RollbackOnPanic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, store, 10)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		store.WithTransaction(ctx, func(tx port.LedgerTx) error {
			rec, _ := tx.GetForUpdate(ctx, memKey)
			rec.OnHand = 1
			tx.Update(ctx, *rec)
			panic("handler bug")
		})
	}()

	rec, _ := store.GetRecord(ctx, memKey)
	if rec.OnHand != 10 {
		t.Errorf("expected on-hand 10 after panic, got %d", rec.OnHand)
	}

	// lock must have been released
	if err := store.WithTransaction(ctx, func(tx port.LedgerTx) error { return nil }); err != nil {
		t.Errorf("store unusable after panic: %v", err)
	}
}

func TestMemoryStore_VersionConflicts(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	seedRecord(t, store, 10)

	err := store.WithTransaction(ctx, func(tx port.LedgerTx) error {
		return tx.Insert(ctx, *domain.NewInventoryRecord(memKey, time.Now()))
	})
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("expected conflict on duplicate insert, got %v", err)
	}

	err = store.WithTransaction(ctx, func(tx port.LedgerTx) error {
		rec, _ := tx.GetForUpdate(ctx, memKey)
		stale := *rec
		stale.Version = 0
		return tx.Update(ctx, stale)
	})
	if !errors.Is(err, domain.ErrConcurrencyConflict) {
		t.Errorf("expected conflict on stale version, got %v", err)
	}
}

func TestMemoryStore_ListEventsNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		delta := i
		store.WithTransaction(ctx, func(tx port.LedgerTx) error {
			return tx.AppendEvent(ctx, domain.NewAdjustmentEvent(memKey, domain.BucketOnHand, delta, domain.ReasonReceiving, "", "", time.Now()))
		})
	}

	events, _ := store.ListEvents(ctx, memKey, 2)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].QuantityDelta != 3 || events[1].QuantityDelta != 2 {
		t.Errorf("expected newest first, got %d then %d", events[0].QuantityDelta, events[1].QuantityDelta)
	}
}

func TestMemoryStore_Orders(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	store.PutOrder("t1", "o1", "main", []domain.OrderLine{{SkuID: "A", Quantity: 2}})
	store.PutOrder("t1", "o2", "annex", []domain.OrderLine{{SkuID: "A", Quantity: 5}})
	store.PutOrder("t1", "o3", "main", []domain.OrderLine{{SkuID: "A", Quantity: 7}})
	store.FulfillOrder("t1", "o1", now.Add(-time.Hour))
	store.FulfillOrder("t1", "o2", now.Add(-2*time.Hour))
	store.FulfillOrder("t1", "o3", now.AddDate(0, 0, -30))

	sales, _ := store.FulfilledSales(ctx, "t1", "main", now.AddDate(0, 0, -7), now)
	if len(sales) != 1 || sales[0].OrderID != "o1" {
		t.Errorf("expected only o1, got %+v", sales)
	}

	all, _ := store.FulfilledSales(ctx, "t1", "", now.AddDate(0, 0, -7), now)
	if len(all) != 2 {
		t.Errorf("expected 2 sales across locations, got %d", len(all))
	}

	if _, err := store.OrderLines(ctx, "t1", "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := store.OrderLines(ctx, "t2", "o1"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected orders to be tenant scoped, got %v", err)
	}
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithTransaction(ctx, func(tx port.LedgerTx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Errorf("expected context.Canceled without running fn, got %v", err)
	}
}
