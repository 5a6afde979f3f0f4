// Package drivers explains a risk score by the features that sit furthest in the tails
// of their own trailing history.
package drivers

import (
	"math"
	"sort"

	"github.com/aristath/sentinel-signals/internal/domain"
)

// Defaults
const (
	DefaultLookback = 252
	DefaultTop      = 3
)

// DefaultFeatures is the interpretable subset of the schema used as driver candidates
var DefaultFeatures = []string{
	domain.FeatureVol30D,
	domain.FeatureVolumeZ30D,
	domain.FeatureDrawdown30D,
	domain.FeatureCorr60D,
	domain.FeatureBeta60D,
}

// Explainer ranks driver candidates by percentile extremeness in a trailing window
type Explainer struct {
	features []string
	lookback int
	top      int
	absolute map[string]bool
}

// NewExplainer creates an explainer over the default driver features
func NewExplainer(lookback int) *Explainer {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	return &Explainer{
		features: DefaultFeatures,
		lookback: lookback,
		top:      DefaultTop,
		absolute: map[string]bool{domain.FeatureVolumeZ30D: true},
	}
}

type candidate struct {
	driver      domain.Driver
	extremeness float64
}

// Explain returns up to three drivers for rows[i], reading rows[max(0, i-lookback)..i].
// rows must be date-ordered.
func (e *Explainer) Explain(rows []domain.FeatureRow, i int) []domain.Driver {
	if i < 0 || i >= len(rows) {
		return []domain.Driver{}
	}
	window := rows[max(0, i-e.lookback) : i+1]

	candidates := make([]candidate, 0, len(e.features))
	for _, feature := range e.features {
		current, ok := rows[i].Value(feature)
		if !ok {
			continue
		}

		abs := e.absolute[feature]
		values := make([]float64, 0, len(window))
		for _, r := range window {
			v, _ := r.Value(feature)
			if abs {
				v = math.Abs(v)
			}
			values = append(values, v)
		}

		target := current
		if abs {
			target = math.Abs(current)
		}
		pct, ok := Percentile(values, target)
		if !ok {
			continue
		}

		candidates = append(candidates, candidate{
			driver: domain.Driver{
				Feature:    feature,
				Value:      current,
				Percentile: round4(pct),
			},
			extremeness: round4(math.Max(pct, 1-pct)),
		})
	}

	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].extremeness > candidates[b].extremeness
	})

	out := make([]domain.Driver, 0, e.top)
	for k := 0; k < len(candidates) && k < e.top; k++ {
		out = append(out, candidates[k].driver)
	}
	return out
}

// Percentile returns the fraction of defined window values <= current.
// It is undefined when current is NaN or the window has no defined values.
func Percentile(window []float64, current float64) (float64, bool) {
	if math.IsNaN(current) {
		return 0, false
	}
	n, below := 0, 0
	for _, v := range window {
		if math.IsNaN(v) {
			continue
		}
		n++
		if v <= current {
			below++
		}
	}
	if n == 0 {
		return 0, false
	}
	return float64(below) / float64(n), true
}

func round4(v float64) float64 {
	return math.RoundToEven(v*1e4) / 1e4
}
