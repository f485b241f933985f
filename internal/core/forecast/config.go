package forecast

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"
)

// Config controls velocity windows and the thresholds used to classify a
// forecast. Windows are trailing day counts; PrimaryWindow must be one of them.
type Config struct {
	Windows             []int
	PrimaryWindow       int
	MinHistoryDays      int
	MinSalesEvents      int
	FastUnitsPerDay     decimal.Decimal
	MediumUnitsPerDay   decimal.Decimal
	IntermittentDensity float64
}

func DefaultConfig() Config {
	return Config{
		Windows:             []int{30, 60, 90, 180, 360},
		PrimaryWindow:       90,
		MinHistoryDays:      60,
		MinSalesEvents:      10,
		FastUnitsPerDay:     decimal.NewFromInt(10),
		MediumUnitsPerDay:   decimal.NewFromInt(1),
		IntermittentDensity: 0.2,
	}
}

func (c Config) Validate() error {
	if len(c.Windows) == 0 {
		return fmt.Errorf("at least one window is required")
	}
	for _, w := range c.Windows {
		if w <= 0 {
			return fmt.Errorf("window %d must be positive", w)
		}
	}
	if !slices.Contains(c.Windows, c.PrimaryWindow) {
		return fmt.Errorf("primary window %d is not one of %v", c.PrimaryWindow, c.Windows)
	}
	if c.MediumUnitsPerDay.GreaterThan(c.FastUnitsPerDay) {
		return fmt.Errorf("medium velocity threshold exceeds fast threshold")
	}
	if c.IntermittentDensity < 0 || c.IntermittentDensity > 1 {
		return fmt.Errorf("intermittent density must be within [0, 1]")
	}
	return nil
}

// sortedWindows returns a copy of the windows, ascending and deduplicated.
func (c Config) sortedWindows() []int {
	ws := slices.Clone(c.Windows)
	slices.Sort(ws)
	return slices.Compact(ws)
}

// Lookback is the longest window; history older than this is never read.
func (c Config) Lookback() int {
	return slices.Max(c.Windows)
}
