// Package features derives the fixed rolling-statistics feature schema from raw price history.
package features

import (
	"time"

	"github.com/aristath/sentinel-signals/internal/domain"
	"github.com/aristath/sentinel-signals/pkg/formulas"
	"github.com/rs/zerolog"
)

// Window lengths of the feature schema
const (
	VolShortWindow = 14
	VolLongWindow  = 30
	DrawdownWindow = 30
	RSIPeriod      = 14
	VolumeZWindow  = 30
	MarketWindow   = 60
)

// Engine computes FeatureRows for one instrument against a benchmark
type Engine struct {
	log zerolog.Logger
}

// NewEngine creates a feature engine
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log: log.With().Str("component", "feature_engine").Logger(),
	}
}

// Compute joins prices with the benchmark on date and returns every fully defined feature row.
// Dates without benchmark data are dropped before any statistic is computed.
func (e *Engine) Compute(symbol string, prices []domain.PricePoint, bench *Benchmark) []domain.FeatureRow {
	symbol = domain.NormalizeSymbol(symbol)
	if len(prices) == 0 || bench.Len() == 0 {
		return nil
	}

	dates := make([]time.Time, 0, len(prices))
	closes := make([]float64, 0, len(prices))
	volumes := make([]float64, 0, len(prices))
	benchReturns := make([]float64, 0, len(prices))

	for _, p := range prices {
		r, ok := bench.Return(p.Date)
		if !ok {
			continue
		}
		dates = append(dates, domain.Day(p.Date))
		closes = append(closes, p.Close)
		volumes = append(volumes, p.Volume)
		benchReturns = append(benchReturns, r)
	}

	if len(dates) == 0 {
		e.log.Debug().Str("symbol", symbol).Msg("No overlap with benchmark")
		return nil
	}

	ret1 := formulas.LogReturns(closes, 1)
	ret7 := formulas.LogReturns(closes, 7)
	ret14 := formulas.LogReturns(closes, 14)

	vol14 := formulas.RollingStdDev(ret1, VolShortWindow)
	vol30 := formulas.RollingStdDev(ret1, VolLongWindow)

	rollingMax := formulas.RollingMax(closes, DrawdownWindow)
	rsi := formulas.RSISeries(closes, RSIPeriod)

	volumeZ := formulas.ZScore(
		volumes,
		formulas.RollingMean(volumes, VolumeZWindow),
		formulas.RollingStdDev(volumes, VolumeZWindow),
	)

	corr := formulas.RollingCorrelation(ret1, benchReturns, MarketWindow)
	cov := formulas.RollingCovariance(ret1, benchReturns, MarketWindow)
	benchVar := formulas.RollingVariance(benchReturns, MarketWindow)

	rows := make([]domain.FeatureRow, 0, len(dates))
	for i, date := range dates {
		row := domain.FeatureRow{
			Date:         date,
			Symbol:       symbol,
			LogReturn1D:  ret1[i],
			LogReturn7D:  ret7[i],
			LogReturn14D: ret14[i],
			Vol14D:       vol14[i],
			Vol30D:       vol30[i],
			Drawdown30D:  (closes[i] - rollingMax[i]) / rollingMax[i],
			RSI14:        rsi[i],
			VolumeZ30D:   volumeZ[i],
			Corr60D:      corr[i],
			Beta60D:      cov[i] / benchVar[i],
		}
		if !row.Valid() {
			continue
		}
		rows = append(rows, row)
	}

	e.log.Debug().
		Str("symbol", symbol).
		Int("joined", len(dates)).
		Int("rows", len(rows)).
		Msg("Computed features")

	return rows
}

// After keeps only rows strictly newer than last
func After(rows []domain.FeatureRow, last *time.Time) []domain.FeatureRow {
	if last == nil {
		return rows
	}
	cutoff := domain.Day(*last)
	out := make([]domain.FeatureRow, 0, len(rows))
	for _, r := range rows {
		if r.Date.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}
