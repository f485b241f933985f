package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/inventory-ledger/internal/adapter/storage"
	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/core/forecast"
	"github.com/rl1809/inventory-ledger/internal/core/service"
)

var forecastToday = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

// recordDailySales fulfils one order of qty units every `every` days over the
// trailing `days` days.
func recordDailySales(store *storage.MemoryStore, loc, sku string, qty, days, every int) {
	for i := 0; i < days; i += every {
		id := fmt.Sprintf("%s-%s-%d", loc, sku, i)
		store.PutOrder(tenant, id, loc, []domain.OrderLine{{SkuID: sku, Quantity: qty}})
		store.FulfillOrder(tenant, id, forecastToday.AddDate(0, 0, -i))
	}
}

func forecastFixture(t *testing.T) *storage.MemoryStore {
	t.Helper()
	store := storage.NewMemoryStore()
	store.PutProduct(tenant, domain.Product{SkuID: "FAST-1", Name: "Hex bolt", Category: "tools", Brand: "acme"})
	store.PutProduct(tenant, domain.Product{SkuID: "MED-1", Name: "Hammer", Category: "tools", Brand: "zenith"})
	store.PutProduct(tenant, domain.Product{SkuID: "SLOW-1", Name: "Hose reel", Category: "garden", Brand: "acme"})
	store.PutProduct(tenant, domain.Product{SkuID: "DEAD-1", Name: "Gnome", Category: "garden", Brand: "acme"})

	seedStock(t, store, "FAST-1", 100)
	seedStock(t, store, "MED-1", 45)
	seedStock(t, store, "SLOW-1", 500)
	seedStock(t, store, "DEAD-1", 3)

	recordDailySales(store, location, "FAST-1", 20, 90, 1)
	recordDailySales(store, location, "MED-1", 1, 90, 1)
	recordDailySales(store, location, "SLOW-1", 1, 90, 10)
	return store
}

func newForecastService(t *testing.T, store *storage.MemoryStore, cache *fakeCache) *service.ForecastService {
	t.Helper()
	opts := service.Options{Clock: fixedClock(forecastToday)}
	var svc *service.ForecastService
	var err error
	if cache == nil {
		svc, err = service.NewForecastService(store, store, store, nil, forecast.DefaultConfig(), opts)
	} else {
		svc, err = service.NewForecastService(store, store, store, cache, forecast.DefaultConfig(), opts)
	}
	require.NoError(t, err)
	return svc
}

func skus(fs []domain.DepletionForecast) []string {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		out = append(out, f.SkuID)
	}
	return out
}

func TestForecast_OrdersByDaysUntilStockout(t *testing.T) {
	svc := newForecastService(t, forecastFixture(t), nil)

	report, err := svc.Forecast(context.Background(), domain.ForecastQuery{TenantID: tenant})
	require.NoError(t, err)

	assert.Equal(t, []string{"FAST-1", "MED-1", "SLOW-1", "DEAD-1"}, skus(report.Forecasts))
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, forecast.Day(forecastToday), report.AsOf)

	fast := report.Forecasts[0]
	require.NotNil(t, fast.DaysUntilStockout)
	assert.Equal(t, 5, *fast.DaysUntilStockout)
	assert.Equal(t, domain.UrgencyCritical, fast.Urgency)
	assert.Equal(t, domain.DemandFast, fast.DemandPattern)
	assert.Equal(t, "20", fast.UnitsPerDay.String())

	med := report.Forecasts[1]
	require.NotNil(t, med.DaysUntilStockout)
	assert.Equal(t, 45, *med.DaysUntilStockout)
	assert.Equal(t, domain.UrgencyWarning, med.Urgency)
	assert.Equal(t, domain.ConfidenceHigh, med.Confidence)

	assert.Equal(t, domain.UrgencyStable, report.Forecasts[2].Urgency)

	dead := report.Forecasts[3]
	assert.Nil(t, dead.DaysUntilStockout)
	assert.Equal(t, domain.UrgencyInfinite, dead.Urgency)
	assert.Equal(t, domain.DemandNone, dead.DemandPattern)
}

func TestForecast_Filters(t *testing.T) {
	svc := newForecastService(t, forecastFixture(t), nil)
	ten, hundred := 10, 100

	tests := []struct {
		name   string
		filter domain.ForecastFilter
		want   []string
	}{
		{"category", domain.ForecastFilter{Category: "Tools"}, []string{"FAST-1", "MED-1"}},
		{"brand", domain.ForecastFilter{Brand: "acme"}, []string{"FAST-1", "SLOW-1", "DEAD-1"}},
		{"urgency", domain.ForecastFilter{Urgency: []domain.Urgency{domain.UrgencyCritical, domain.UrgencyWarning}}, []string{"FAST-1", "MED-1"}},
		{"search sku", domain.ForecastFilter{SearchTerm: "slow"}, []string{"SLOW-1"}},
		{"search name", domain.ForecastFilter{SearchTerm: "HAMMER"}, []string{"MED-1"}},
		{"min days keeps infinite", domain.ForecastFilter{MinDaysUntilStockout: &ten}, []string{"MED-1", "SLOW-1", "DEAD-1"}},
		{"max days drops infinite", domain.ForecastFilter{MaxDaysUntilStockout: &hundred}, []string{"FAST-1", "MED-1"}},
		{"combined", domain.ForecastFilter{Category: "tools", MinDaysUntilStockout: &ten}, []string{"MED-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			report, err := svc.Forecast(context.Background(), domain.ForecastQuery{TenantID: tenant, Filter: tt.filter})
			require.NoError(t, err)
			assert.Equal(t, tt.want, skus(report.Forecasts))
			assert.Equal(t, len(tt.want), report.Total)
		})
	}
}

func TestForecast_PaginationAndSummary(t *testing.T) {
	svc := newForecastService(t, forecastFixture(t), nil)

	report, err := svc.Forecast(context.Background(), domain.ForecastQuery{
		TenantID: tenant,
		Page:     domain.Page{Limit: 2, Offset: 1},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"MED-1", "SLOW-1"}, skus(report.Forecasts))
	assert.Equal(t, 4, report.Total)
	assert.Equal(t, 2, report.Limit)
	assert.Equal(t, 1, report.Offset)

	// The summary covers the whole filtered set, not just the page.
	assert.Equal(t, 4, report.Summary.Total)
	assert.Equal(t, domain.UrgencyCounts{Critical: 1, Warning: 1, Stable: 1, Infinite: 1}, report.Summary.ByUrgency)
	assert.Equal(t, []string{"FAST-1"}, skus(report.Summary.TopCritical))

	report, err = svc.Forecast(context.Background(), domain.ForecastQuery{TenantID: tenant, Page: domain.Page{Offset: 10}})
	require.NoError(t, err)
	assert.Empty(t, report.Forecasts)
	assert.Equal(t, 50, report.Limit)
}

func TestForecast_LocationScope(t *testing.T) {
	store := forecastFixture(t)
	recordDailySales(store, "overflow", "DEAD-1", 5, 30, 1)
	svc := newForecastService(t, store, nil)

	report, err := svc.Forecast(context.Background(), domain.ForecastQuery{TenantID: tenant, Location: location})
	require.NoError(t, err)
	dead := report.Forecasts[len(report.Forecasts)-1]
	assert.Equal(t, "DEAD-1", dead.SkuID)
	assert.Equal(t, domain.UrgencyInfinite, dead.Urgency)

	report, err = svc.Forecast(context.Background(), domain.ForecastQuery{TenantID: tenant})
	require.NoError(t, err)
	assert.Equal(t, "DEAD-1", report.Forecasts[0].SkuID, "tenant-wide view includes overflow sales")
	assert.Equal(t, 1, *report.Forecasts[0].DaysUntilStockout)
}

func TestForecast_UsesSnapshotCache(t *testing.T) {
	store := forecastFixture(t)
	cache := newFakeCache()
	svc := newForecastService(t, store, cache)
	ctx := context.Background()

	first, err := svc.Forecast(ctx, domain.ForecastQuery{TenantID: tenant})
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, 1, cache.sets)

	// New stock is invisible until the snapshot expires or a fresh report is asked for.
	seedStock(t, store, "FAST-1", 1000)

	second, err := svc.Forecast(ctx, domain.ForecastQuery{TenantID: tenant})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Forecasts, second.Forecasts)

	fresh, err := svc.Forecast(ctx, domain.ForecastQuery{TenantID: tenant, Fresh: true})
	require.NoError(t, err)
	assert.False(t, fresh.Cached)
	assert.Equal(t, 2, cache.sets)
	assert.Equal(t, "MED-1", fresh.Forecasts[0].SkuID)
}

func TestForecast_Idempotent(t *testing.T) {
	svc := newForecastService(t, forecastFixture(t), nil)

	a, err := svc.Forecast(context.Background(), domain.ForecastQuery{TenantID: tenant})
	require.NoError(t, err)
	b, err := svc.Forecast(context.Background(), domain.ForecastQuery{TenantID: tenant})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestForecast_RequiresTenant(t *testing.T) {
	svc := newForecastService(t, storage.NewMemoryStore(), nil)
	_, err := svc.Forecast(context.Background(), domain.ForecastQuery{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewForecastService_RejectsBadConfig(t *testing.T) {
	store := storage.NewMemoryStore()
	cfg := forecast.DefaultConfig()
	cfg.PrimaryWindow = 45
	_, err := service.NewForecastService(store, store, store, nil, cfg, service.Options{})
	assert.Error(t, err)
}
