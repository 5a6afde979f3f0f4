// Package regime labels each feature row with a coarse market regime.
package regime

import (
	"math"

	"github.com/aristath/sentinel-signals/internal/domain"
)

// Fixed, uncalibrated thresholds
const (
	HighVolatilityThreshold = 0.03
	TrendUpThreshold        = 0.03
	TrendDownThreshold      = -0.03
)

// Classify maps 30-day volatility and 14-day log return to a regime.
// Volatility is checked before trend.
func Classify(vol30d, logReturn14d float64) domain.Regime {
	switch {
	case undefined(vol30d) || undefined(logReturn14d):
		return domain.RegimeUnknown
	case vol30d >= HighVolatilityThreshold:
		return domain.RegimeHighVolatility
	case logReturn14d >= TrendUpThreshold:
		return domain.RegimeTrendUp
	case logReturn14d <= TrendDownThreshold:
		return domain.RegimeTrendDown
	default:
		return domain.RegimeSideways
	}
}

// ClassifyRow classifies a feature row
func ClassifyRow(row domain.FeatureRow) domain.Regime {
	return Classify(row.Vol30D, row.LogReturn14D)
}

func undefined(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}
