package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyWarning  Urgency = "warning"
	UrgencyNormal   Urgency = "normal"
	UrgencyStable   Urgency = "stable"
	UrgencyInfinite Urgency = "infinite"
)

func ParseUrgency(s string) (Urgency, bool) {
	switch u := Urgency(s); u {
	case UrgencyCritical, UrgencyWarning, UrgencyNormal, UrgencyStable, UrgencyInfinite:
		return u, true
	}
	return "", false
}

type DemandPattern string

const (
	DemandFast         DemandPattern = "fast"
	DemandMedium       DemandPattern = "medium"
	DemandSlow         DemandPattern = "slow"
	DemandIntermittent DemandPattern = "intermittent"
	DemandNone         DemandPattern = "none"
)

type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// VelocityMetric is the demand picture for one trailing window.
// DaysUntilStockout and StockoutDate are nil when the window saw no sales.
type VelocityMetric struct {
	WindowDays        int             `json:"windowDays"`
	TotalUnits        int             `json:"totalUnits"`
	DaysWithSales     int             `json:"daysWithSales"`
	SalesEvents       int             `json:"salesEvents"`
	UnitsPerDay       decimal.Decimal `json:"unitsPerDay"`
	DaysUntilStockout *int            `json:"daysUntilStockout"`
	StockoutDate      *time.Time      `json:"stockoutDate"`
}

type DepletionForecast struct {
	SkuID             string           `json:"skuId"`
	Name              string           `json:"name"`
	Category          string           `json:"category"`
	Brand             string           `json:"brand"`
	CurrentAvailable  int              `json:"currentAvailable"`
	Windows           []VelocityMetric `json:"windows"`
	PrimaryWindowDays int              `json:"primaryWindowDays"`
	UnitsPerDay       decimal.Decimal  `json:"unitsPerDay"`
	DaysUntilStockout *int             `json:"daysUntilStockout"`
	StockoutDate      *time.Time       `json:"stockoutDate"`
	Urgency           Urgency          `json:"urgency"`
	DemandPattern     DemandPattern    `json:"demandPattern"`
	Confidence        Confidence       `json:"confidence"`
}

func (f DepletionForecast) Window(days int) (VelocityMetric, bool) {
	for _, w := range f.Windows {
		if w.WindowDays == days {
			return w, true
		}
	}
	return VelocityMetric{}, false
}

type ForecastFilter struct {
	Category             string
	Brand                string
	Urgency              []Urgency
	SearchTerm           string
	MinDaysUntilStockout *int
	MaxDaysUntilStockout *int
}

type Page struct {
	Limit  int
	Offset int
}

type ForecastQuery struct {
	TenantID string
	Location string // empty means every location of the tenant
	Filter   ForecastFilter
	Page     Page
	Fresh    bool // skip the snapshot cache
}

type UrgencyCounts struct {
	Critical int `json:"critical"`
	Warning  int `json:"warning"`
	Normal   int `json:"normal"`
	Stable   int `json:"stable"`
	Infinite int `json:"infinite"`
}

func (c *UrgencyCounts) Add(u Urgency) {
	switch u {
	case UrgencyCritical:
		c.Critical++
	case UrgencyWarning:
		c.Warning++
	case UrgencyNormal:
		c.Normal++
	case UrgencyStable:
		c.Stable++
	case UrgencyInfinite:
		c.Infinite++
	}
}

type ForecastSummary struct {
	Total       int                 `json:"total"`
	ByUrgency   UrgencyCounts       `json:"byUrgency"`
	TopCritical []DepletionForecast `json:"topCritical"`
}

type ForecastReport struct {
	AsOf      time.Time           `json:"asOf"`
	Forecasts []DepletionForecast `json:"forecasts"`
	Total     int                 `json:"total"`
	Limit     int                 `json:"limit"`
	Offset    int                 `json:"offset"`
	Summary   ForecastSummary     `json:"summary"`
	Cached    bool                `json:"cached"`
}
