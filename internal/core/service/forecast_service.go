package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
	"github.com/rl1809/inventory-ledger/internal/core/forecast"
	"github.com/rl1809/inventory-ledger/internal/metrics"
	"github.com/rl1809/inventory-ledger/internal/port"
)

const (
	defaultForecastLimit = 50
	maxForecastLimit     = 500
	topCriticalSize      = 10
)

// ForecastService loads ledger and order-history snapshots and runs the pure
// forecast engine over them. It never writes to the ledger.
type ForecastService struct {
	ledger  port.LedgerRepository
	orders  port.OrderReader
	catalog port.CatalogReader
	cache   port.CacheRepository
	cfg     forecast.Config
	opts    Options
	logger  *slog.Logger
	metrics *metrics.Inventory
}

// NewForecastService wires the forecast layer. cache may be nil.
func NewForecastService(ledger port.LedgerRepository, orders port.OrderReader, catalog port.CatalogReader, cache port.CacheRepository, cfg forecast.Config, opts Options) (*ForecastService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("forecast config: %w", err)
	}
	opts = opts.withDefaults()
	return &ForecastService{
		ledger:  ledger,
		orders:  orders,
		catalog: catalog,
		cache:   cache,
		cfg:     cfg,
		opts:    opts,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}, nil
}

func forecastCacheKey(tenantID, location string, today time.Time) string {
	if location == "" {
		location = "*"
	}
	return fmt.Sprintf("%s:%s:%s", tenantID, location, today.Format(time.DateOnly))
}

func (s *ForecastService) Forecast(ctx context.Context, q domain.ForecastQuery) (*domain.ForecastReport, error) {
	if q.TenantID == "" {
		return nil, domain.NewValidation("tenant is required")
	}
	started := time.Now()
	defer s.metrics.ObserveForecast(started)

	today := forecast.Day(s.opts.Clock())
	forecasts, cached, err := s.forecasts(ctx, q, today)
	if err != nil {
		return nil, err
	}

	filtered := Filter(forecasts, q.Filter)
	page := normalizePage(q.Page)

	return &domain.ForecastReport{
		AsOf:      today,
		Forecasts: paginate(filtered, page),
		Total:     len(filtered),
		Limit:     page.Limit,
		Offset:    page.Offset,
		Summary:   Summarize(filtered),
		Cached:    cached,
	}, nil
}

func (s *ForecastService) forecasts(ctx context.Context, q domain.ForecastQuery, today time.Time) ([]domain.DepletionForecast, bool, error) {
	key := forecastCacheKey(q.TenantID, q.Location, today)
	if s.cache != nil && !q.Fresh {
		fs, ok, err := s.cache.GetForecasts(ctx, key)
		switch {
		case err != nil:
			s.metrics.ObserveForecastCache("error")
			s.logger.WarnContext(ctx, "forecast cache read failed", "key", key, "error", err)
		case ok:
			s.metrics.ObserveForecastCache("hit")
			return fs, true, nil
		default:
			s.metrics.ObserveForecastCache("miss")
		}
	}

	snap, err := s.snapshot(ctx, q.TenantID, q.Location, today)
	if err != nil {
		return nil, false, err
	}
	fs := forecast.Compute(snap, s.cfg)

	if s.cache != nil {
		if err := s.cache.SetForecasts(ctx, key, fs); err != nil {
			s.logger.WarnContext(ctx, "forecast cache write failed", "key", key, "error", err)
		}
	}
	return fs, false, nil
}

// snapshot reads the three inputs concurrently. Each read may be slightly
// stale relative to the others; forecasts tolerate that.
func (s *ForecastService) snapshot(ctx context.Context, tenantID, location string, today time.Time) (forecast.Snapshot, error) {
	snap := forecast.Snapshot{Today: today, Available: make(map[string]int)}
	since := today.AddDate(0, 0, -s.cfg.Lookback()+1)
	until := today.AddDate(0, 0, 1)

	var records []domain.InventoryRecord
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap.Products, err = s.catalog.ActiveProducts(gctx, tenantID)
		if err != nil {
			return fmt.Errorf("load products: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		records, err = s.ledger.ListRecords(gctx, tenantID, location)
		if err != nil {
			return fmt.Errorf("load ledger: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		snap.Sales, err = s.orders.FulfilledSales(gctx, tenantID, location, since, until)
		if err != nil {
			return fmt.Errorf("load sales history: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return forecast.Snapshot{}, err
	}

	for _, rec := range records {
		snap.Available[rec.SkuID] += rec.Available()
	}
	return snap, nil
}

// Filter keeps forecasts matching every set criterion. An infinite horizon
// passes a minimum and fails a maximum.
func Filter(fs []domain.DepletionForecast, f domain.ForecastFilter) []domain.DepletionForecast {
	search := strings.ToLower(strings.TrimSpace(f.SearchTerm))
	out := make([]domain.DepletionForecast, 0, len(fs))
	for _, fc := range fs {
		if f.Category != "" && !strings.EqualFold(fc.Category, f.Category) {
			continue
		}
		if f.Brand != "" && !strings.EqualFold(fc.Brand, f.Brand) {
			continue
		}
		if len(f.Urgency) > 0 && !slices.Contains(f.Urgency, fc.Urgency) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(fc.SkuID), search) && !strings.Contains(strings.ToLower(fc.Name), search) {
			continue
		}
		if f.MinDaysUntilStockout != nil && fc.DaysUntilStockout != nil && *fc.DaysUntilStockout < *f.MinDaysUntilStockout {
			continue
		}
		if f.MaxDaysUntilStockout != nil && (fc.DaysUntilStockout == nil || *fc.DaysUntilStockout > *f.MaxDaysUntilStockout) {
			continue
		}
		out = append(out, fc)
	}
	return out
}

// Summarize expects fs in forecast order, so the first critical entries are
// the most urgent.
func Summarize(fs []domain.DepletionForecast) domain.ForecastSummary {
	summary := domain.ForecastSummary{Total: len(fs), TopCritical: []domain.DepletionForecast{}}
	for _, fc := range fs {
		summary.ByUrgency.Add(fc.Urgency)
		if fc.Urgency == domain.UrgencyCritical && len(summary.TopCritical) < topCriticalSize {
			summary.TopCritical = append(summary.TopCritical, fc)
		}
	}
	return summary
}

func normalizePage(p domain.Page) domain.Page {
	if p.Limit <= 0 {
		p.Limit = defaultForecastLimit
	}
	p.Limit = min(p.Limit, maxForecastLimit)
	p.Offset = max(p.Offset, 0)
	return p
}

func paginate(fs []domain.DepletionForecast, p domain.Page) []domain.DepletionForecast {
	if p.Offset >= len(fs) {
		return []domain.DepletionForecast{}
	}
	end := min(p.Offset+p.Limit, len(fs))
	return fs[p.Offset:end]
}
