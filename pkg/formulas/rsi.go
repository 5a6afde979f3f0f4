package formulas

import (
	"github.com/markcheno/go-talib"
)

// RSISeries calculates the Relative Strength Index for every position of closes.
//
// RSI Formula:
//
//	RSI = 100 - (100 / (1 + RS))
//	where RS = Wilder-smoothed average gain / average loss over N periods
//
// The first `length` positions are NaN.
func RSISeries(closes []float64, length int) []float64 {
	out := NaNSeries(len(closes))
	if length <= 0 || len(closes) < length+1 {
		return out
	}

	rsi := talib.Rsi(closes, length)
	for i := length; i < len(rsi) && i < len(out); i++ {
		out[i] = rsi[i]
	}
	return out
}
