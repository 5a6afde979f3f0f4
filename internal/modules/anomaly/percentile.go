package anomaly

import (
	"math"
	"sort"
)

// PercentileRanks converts values into percentile ranks in (0, 100].
// Ties share the average of their ranks. NaN inputs stay NaN and are not counted.
func PercentileRanks(values []float64) []float64 {
	out := make([]float64, len(values))
	idx := make([]int, 0, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			out[i] = math.NaN()
			continue
		}
		idx = append(idx, i)
	}

	sort.SliceStable(idx, func(a, b int) bool {
		return values[idx[a]] < values[idx[b]]
	})

	n := float64(len(idx))
	for start := 0; start < len(idx); {
		end := start
		for end+1 < len(idx) && values[idx[end+1]] == values[idx[start]] {
			end++
		}
		// 1-based positions start+1..end+1
		avg := float64(start+end+2) / 2
		for k := start; k <= end; k++ {
			out[idx[k]] = avg / n * 100
		}
		start = end + 1
	}
	return out
}

// RiskScore clips a percentile to [0, 100] and rounds half to even
func RiskScore(percentile float64) int {
	return int(math.RoundToEven(math.Max(0, math.Min(100, percentile))))
}
