// Package forecast projects stockout dates from trailing sales velocity.
//
// Compute is a pure function of its inputs: it never touches a store, and the
// same Snapshot always yields the same forecasts.
package forecast

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/inventory-ledger/internal/core/domain"
)

const day = 24 * time.Hour

// Snapshot is the immutable input to Compute.
type Snapshot struct {
	Today     time.Time
	Products  []domain.Product
	Available map[string]int // by SKU, summed over the locations in scope
	Sales     []domain.SalesSample
}

// sale is a sample normalised to whole days before Today (0 = today).
type sale struct {
	ago      int
	quantity int
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func Compute(snap Snapshot, cfg Config) []domain.DepletionForecast {
	today := Day(snap.Today)
	windows := cfg.sortedWindows()
	lookback := windows[len(windows)-1]

	history := make(map[string][]sale)
	for _, s := range snap.Sales {
		if s.Quantity <= 0 {
			continue
		}
		ago := int(today.Sub(Day(s.FulfilledAt)) / day)
		if ago < 0 || ago >= lookback {
			continue
		}
		history[s.SkuID] = append(history[s.SkuID], sale{ago: ago, quantity: s.Quantity})
	}

	forecasts := make([]domain.DepletionForecast, 0, len(snap.Products))
	for _, p := range snap.Products {
		forecasts = append(forecasts, forecastSKU(p, snap.Available[p.SkuID], history[p.SkuID], windows, today, cfg))
	}

	SortForecasts(forecasts)
	return forecasts
}

func forecastSKU(p domain.Product, available int, sales []sale, windows []int, today time.Time, cfg Config) domain.DepletionForecast {
	f := domain.DepletionForecast{
		SkuID:             p.SkuID,
		Name:              p.Name,
		Category:          p.Category,
		Brand:             p.Brand,
		CurrentAvailable:  available,
		Windows:           make([]domain.VelocityMetric, 0, len(windows)),
		PrimaryWindowDays: cfg.PrimaryWindow,
	}

	var primary domain.VelocityMetric
	for _, w := range windows {
		m := velocity(sales, available, w, today)
		if w == cfg.PrimaryWindow {
			primary = m
		}
		f.Windows = append(f.Windows, m)
	}

	f.UnitsPerDay = primary.UnitsPerDay
	f.DaysUntilStockout = primary.DaysUntilStockout
	f.StockoutDate = primary.StockoutDate
	f.Urgency = ClassifyUrgency(primary.DaysUntilStockout)
	f.DemandPattern = classifyPattern(f.Windows, primary, cfg)

	historyDays := 0
	for _, s := range sales {
		historyDays = max(historyDays, s.ago+1)
	}
	historyDays = min(historyDays, cfg.PrimaryWindow)
	f.Confidence = classifyConfidence(historyDays, primary, f.DemandPattern, cfg)

	return f
}

// velocity measures one trailing window of window days ending today.
// unitsPerDay divides by the full window, not by days with sales, so sparse
// demand is smoothed rather than overstated.
func velocity(sales []sale, available, window int, today time.Time) domain.VelocityMetric {
	m := domain.VelocityMetric{WindowDays: window}
	days := make(map[int]struct{})
	for _, s := range sales {
		if s.ago >= window {
			continue
		}
		m.TotalUnits += s.quantity
		m.SalesEvents++
		days[s.ago] = struct{}{}
	}
	m.DaysWithSales = len(days)
	m.UnitsPerDay = decimal.NewFromInt(int64(m.TotalUnits)).DivRound(decimal.NewFromInt(int64(window)), 4)

	if m.TotalUnits == 0 {
		return m
	}

	// floor(available / (total / window)) kept in integers.
	remaining := 0
	if available > 0 {
		remaining = available * window / m.TotalUnits
	}
	stockout := today.AddDate(0, 0, remaining)
	m.DaysUntilStockout = &remaining
	m.StockoutDate = &stockout
	return m
}

// SortForecasts orders by soonest stockout, infinite horizons last, then SKU.
func SortForecasts(fs []domain.DepletionForecast) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i].DaysUntilStockout, fs[j].DaysUntilStockout
		switch {
		case a != nil && b != nil && *a != *b:
			return *a < *b
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return fs[i].SkuID < fs[j].SkuID
	})
}
