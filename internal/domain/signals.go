package domain

import "time"

// Regime is a coarse, rule-based label of current market behaviour
type Regime string

const (
	RegimeUnknown        Regime = "UNKNOWN"
	RegimeHighVolatility Regime = "HIGH_VOLATILITY"
	RegimeTrendUp        Regime = "TREND_UP"
	RegimeTrendDown      Regime = "TREND_DOWN"
	RegimeSideways       Regime = "SIDEWAYS"
)

// Driver is a feature identified as most responsible for an unusual risk score.
// Percentile is serialized as "pct" to keep the stored payload shape stable.
type Driver struct {
	Feature    string  `json:"feature"`
	Value      float64 `json:"value"`
	Percentile float64 `json:"pct"`
}

// DriversPayload is the structured drivers column of a signal row
type DriversPayload struct {
	TopDrivers []Driver `json:"top_drivers"`
}

// SignalRow is the unit of output, unique on (Symbol, Date)
type SignalRow struct {
	Date      time.Time `json:"signal_date"`
	Symbol    string    `json:"ticker"`
	Regime    Regime    `json:"regime_label"`
	RiskScore int       `json:"risk_score"`
	Drivers   []Driver  `json:"drivers"`
}

// Payload wraps the drivers for storage
func (s SignalRow) Payload() DriversPayload {
	drivers := s.Drivers
	if drivers == nil {
		drivers = []Driver{}
	}
	return DriversPayload{TopDrivers: drivers}
}
