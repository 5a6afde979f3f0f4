package domain

import (
	"fmt"
	"math"
	"time"
)

// Feature column names, in schema order
const (
	FeatureLogReturn1D  = "log_return_1d"
	FeatureLogReturn7D  = "log_return_7d"
	FeatureLogReturn14D = "log_return_14d"
	FeatureVol14D       = "vol_14d"
	FeatureVol30D       = "vol_30d"
	FeatureDrawdown30D  = "drawdown_30d"
	FeatureRSI14        = "rsi_14"
	FeatureVolumeZ30D   = "volume_z_30d"
	FeatureCorr60D      = "corr_60d"
	FeatureBeta60D      = "beta_60d"
)

// FeatureSchemaVersion identifies FeatureNames; bump it whenever the set or order changes
const FeatureSchemaVersion = 1

// FeatureNames is the full, ordered feature schema
var FeatureNames = []string{
	FeatureLogReturn1D,
	FeatureLogReturn7D,
	FeatureLogReturn14D,
	FeatureVol14D,
	FeatureVol30D,
	FeatureDrawdown30D,
	FeatureRSI14,
	FeatureVolumeZ30D,
	FeatureCorr60D,
	FeatureBeta60D,
}

// FeatureRow is one date's vector of derived rolling statistics for an instrument
type FeatureRow struct {
	Date         time.Time `json:"feature_date"`
	Symbol       string    `json:"ticker"`
	LogReturn1D  float64   `json:"log_return_1d"`
	LogReturn7D  float64   `json:"log_return_7d"`
	LogReturn14D float64   `json:"log_return_14d"`
	Vol14D       float64   `json:"vol_14d"`
	Vol30D       float64   `json:"vol_30d"`
	Drawdown30D  float64   `json:"drawdown_30d"`
	RSI14        float64   `json:"rsi_14"`
	VolumeZ30D   float64   `json:"volume_z_30d"`
	Corr60D      float64   `json:"corr_60d"`
	Beta60D      float64   `json:"beta_60d"`
}

// Value returns the named feature value
func (r FeatureRow) Value(name string) (float64, bool) {
	switch name {
	case FeatureLogReturn1D:
		return r.LogReturn1D, true
	case FeatureLogReturn7D:
		return r.LogReturn7D, true
	case FeatureLogReturn14D:
		return r.LogReturn14D, true
	case FeatureVol14D:
		return r.Vol14D, true
	case FeatureVol30D:
		return r.Vol30D, true
	case FeatureDrawdown30D:
		return r.Drawdown30D, true
	case FeatureRSI14:
		return r.RSI14, true
	case FeatureVolumeZ30D:
		return r.VolumeZ30D, true
	case FeatureCorr60D:
		return r.Corr60D, true
	case FeatureBeta60D:
		return r.Beta60D, true
	}
	return math.NaN(), false
}

// Vector returns the values of names in order
func (r FeatureRow) Vector(names []string) ([]float64, error) {
	out := make([]float64, len(names))
	for i, name := range names {
		v, ok := r.Value(name)
		if !ok {
			return nil, fmt.Errorf("unknown feature %q", name)
		}
		out[i] = v
	}
	return out, nil
}

// Valid reports whether every feature is finite
func (r FeatureRow) Valid() bool {
	for _, name := range FeatureNames {
		v, _ := r.Value(name)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
