// Package formulas provides the rolling-window statistics used by the feature engine.
//
// Every function returns a series aligned with its input. Positions that do not have a full
// window of defined values are NaN, so callers can drop incomplete rows in one pass.
package formulas

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// NaNSeries returns a series of length n filled with NaN
func NaNSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// IsFinite reports whether v is neither NaN nor infinite
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// LogReturns calculates ln(values[i] / values[i-lag])
func LogReturns(values []float64, lag int) []float64 {
	out := NaNSeries(len(values))
	if lag <= 0 {
		return out
	}
	for i := lag; i < len(values); i++ {
		prev := values[i-lag]
		if prev <= 0 || values[i] <= 0 {
			continue
		}
		out[i] = math.Log(values[i] / prev)
	}
	return out
}

// window returns values[i-size+1 : i+1] or nil when the window is incomplete or holds a NaN
func window(values []float64, i, size int) []float64 {
	if size <= 0 || i < size-1 {
		return nil
	}
	w := values[i-size+1 : i+1]
	for _, v := range w {
		if math.IsNaN(v) {
			return nil
		}
	}
	return w
}

// RollingMean calculates the arithmetic mean over a trailing window
func RollingMean(values []float64, size int) []float64 {
	out := NaNSeries(len(values))
	for i := range values {
		if w := window(values, i, size); w != nil {
			out[i] = stat.Mean(w, nil)
		}
	}
	return out
}

// RollingStdDev calculates the sample standard deviation over a trailing window
func RollingStdDev(values []float64, size int) []float64 {
	out := NaNSeries(len(values))
	if size < 2 {
		return out
	}
	for i := range values {
		if w := window(values, i, size); w != nil {
			out[i] = stat.StdDev(w, nil)
		}
	}
	return out
}

// RollingVariance calculates the sample variance over a trailing window
func RollingVariance(values []float64, size int) []float64 {
	out := NaNSeries(len(values))
	if size < 2 {
		return out
	}
	for i := range values {
		if w := window(values, i, size); w != nil {
			out[i] = stat.Variance(w, nil)
		}
	}
	return out
}

// RollingMax calculates the maximum over a trailing window
func RollingMax(values []float64, size int) []float64 {
	out := NaNSeries(len(values))
	for i := range values {
		if w := window(values, i, size); w != nil {
			out[i] = floats.Max(w)
		}
	}
	return out
}

// RollingCovariance calculates the sample covariance of x and y over a trailing window.
// Both series must be defined across the whole window.
func RollingCovariance(x, y []float64, size int) []float64 {
	out := NaNSeries(len(x))
	if len(x) != len(y) || size < 2 {
		return out
	}
	for i := range x {
		wx, wy := window(x, i, size), window(y, i, size)
		if wx == nil || wy == nil {
			continue
		}
		out[i] = stat.Covariance(wx, wy, nil)
	}
	return out
}

// RollingCorrelation calculates the Pearson correlation of x and y over a trailing window
func RollingCorrelation(x, y []float64, size int) []float64 {
	out := NaNSeries(len(x))
	if len(x) != len(y) || size < 2 {
		return out
	}
	for i := range x {
		wx, wy := window(x, i, size), window(y, i, size)
		if wx == nil || wy == nil {
			continue
		}
		out[i] = stat.Correlation(wx, wy, nil)
	}
	return out
}

// ZScore calculates (values - mean) / std elementwise
func ZScore(values, mean, std []float64) []float64 {
	out := NaNSeries(len(values))
	for i := range values {
		if i >= len(mean) || i >= len(std) {
			break
		}
		out[i] = (values[i] - mean[i]) / std[i]
	}
	return out
}
