package forecast

import "github.com/rl1809/inventory-ledger/internal/core/domain"

// ClassifyUrgency buckets days-until-stockout from the primary window.
// nil means no measurable demand.
func ClassifyUrgency(days *int) domain.Urgency {
	switch {
	case days == nil:
		return domain.UrgencyInfinite
	case *days < 30:
		return domain.UrgencyCritical
	case *days < 60:
		return domain.UrgencyWarning
	case *days <= 90:
		return domain.UrgencyNormal
	default:
		return domain.UrgencyStable
	}
}

// classifyPattern reads the primary window, or the longest window that saw
// any sales when the primary one is empty.
func classifyPattern(windows []domain.VelocityMetric, primary domain.VelocityMetric, cfg Config) domain.DemandPattern {
	m := primary
	if m.TotalUnits == 0 {
		found := false
		for i := len(windows) - 1; i >= 0; i-- {
			if windows[i].TotalUnits > 0 {
				m, found = windows[i], true
				break
			}
		}
		if !found {
			return domain.DemandNone
		}
	}

	density := float64(m.DaysWithSales) / float64(m.WindowDays)
	switch {
	case density < cfg.IntermittentDensity:
		return domain.DemandIntermittent
	case m.UnitsPerDay.GreaterThanOrEqual(cfg.FastUnitsPerDay):
		return domain.DemandFast
	case m.UnitsPerDay.GreaterThanOrEqual(cfg.MediumUnitsPerDay):
		return domain.DemandMedium
	default:
		return domain.DemandSlow
	}
}

// classifyConfidence grades how much history backs the primary projection.
// historyDays is the span covered by observed sales, capped at the window.
func classifyConfidence(historyDays int, primary domain.VelocityMetric, pattern domain.DemandPattern, cfg Config) domain.Confidence {
	enoughHistory := historyDays >= cfg.MinHistoryDays
	enoughEvents := primary.SalesEvents >= cfg.MinSalesEvents

	switch {
	case enoughHistory && enoughEvents && pattern != domain.DemandIntermittent:
		return domain.ConfidenceHigh
	case enoughHistory || enoughEvents:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}
