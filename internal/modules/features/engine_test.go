package features

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/aristath/sentinel-signals/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)

func benchmarkPrices(n int) []domain.PricePoint {
	out := make([]domain.PricePoint, n)
	for i := range out {
		out[i] = domain.PricePoint{
			Date:   start.AddDate(0, 0, i),
			Symbol: "SPY",
			Close:  400 * math.Exp(0.02*math.Sin(float64(i)/3)+0.001*float64(i)),
			Volume: 5e7,
		}
	}
	return out
}

// squared tracks the benchmark with exactly twice its log returns
func squared(bench []domain.PricePoint) []domain.PricePoint {
	out := make([]domain.PricePoint, len(bench))
	for i, b := range bench {
		out[i] = domain.PricePoint{
			Date:   b.Date,
			Symbol: "AAPL",
			Close:  b.Close * b.Close / 1000,
			Volume: 1e6 + 2e5*math.Sin(float64(i)*0.7),
		}
	}
	return out
}

func TestEngine_Compute_DropsWarmupRows(t *testing.T) {
	benchPrices := benchmarkPrices(120)
	engine := NewEngine(zerolog.Nop())

	rows := engine.Compute("aapl", squared(benchPrices), NewBenchmark("SPY", benchPrices))

	// the 60-day market window over 1-day returns is the longest warm-up
	require.Len(t, rows, 60)
	assert.Equal(t, start.AddDate(0, 0, 60), rows[0].Date)
	assert.Equal(t, "AAPL", rows[0].Symbol)

	for i, r := range rows {
		assert.True(t, r.Valid(), "row %d", i)
		assert.LessOrEqual(t, r.Drawdown30D, 0.0)
		assert.GreaterOrEqual(t, r.RSI14, 0.0)
		assert.LessOrEqual(t, r.RSI14, 100.0)
		if i > 0 {
			assert.True(t, r.Date.After(rows[i-1].Date))
		}
	}
}

func TestEngine_Compute_MarketContext(t *testing.T) {
	benchPrices := benchmarkPrices(120)
	engine := NewEngine(zerolog.Nop())

	rows := engine.Compute("AAPL", squared(benchPrices), NewBenchmark("SPY", benchPrices))
	require.NotEmpty(t, rows)

	for _, r := range rows {
		assert.InDelta(t, 1.0, r.Corr60D, 1e-9)
		assert.InDelta(t, 2.0, r.Beta60D, 1e-9)
	}

	last := rows[len(rows)-1]
	n := len(benchPrices) - 1
	want := 2 * math.Log(benchPrices[n].Close/benchPrices[n-1].Close)
	assert.InDelta(t, want, last.LogReturn1D, 1e-12)
	want7 := 2 * math.Log(benchPrices[n].Close/benchPrices[n-7].Close)
	assert.InDelta(t, want7, last.LogReturn7D, 1e-12)
}

func TestEngine_Compute_InnerJoinsOnBenchmarkDates(t *testing.T) {
	benchPrices := benchmarkPrices(130)
	prices := squared(benchPrices)

	// drop one benchmark date: that instrument date disappears and the
	// instrument return spans the gap
	gap := 100
	trimmed := append(append([]domain.PricePoint{}, benchPrices[:gap]...), benchPrices[gap+1:]...)

	engine := NewEngine(zerolog.Nop())
	rows := engine.Compute("AAPL", prices, NewBenchmark("SPY", trimmed))

	for _, r := range rows {
		assert.NotEqual(t, benchPrices[gap].Date, r.Date)
	}

	var after domain.FeatureRow
	for _, r := range rows {
		if r.Date.Equal(benchPrices[gap+1].Date) {
			after = r
		}
	}
	require.False(t, after.Date.IsZero())
	want := math.Log(prices[gap+1].Close / prices[gap-1].Close)
	assert.InDelta(t, want, after.LogReturn1D, 1e-12)
}

func TestEngine_Compute_EmptyInputs(t *testing.T) {
	engine := NewEngine(zerolog.Nop())
	benchPrices := benchmarkPrices(120)

	assert.Empty(t, engine.Compute("AAPL", nil, NewBenchmark("SPY", benchPrices)))
	assert.Empty(t, engine.Compute("AAPL", squared(benchPrices), NewBenchmark("SPY", nil)))
	assert.Empty(t, engine.Compute("AAPL", squared(benchPrices[:40]), NewBenchmark("SPY", benchPrices)))
}

func TestEngine_Compute_FlatVolumeIsDropped(t *testing.T) {
	benchPrices := benchmarkPrices(120)
	prices := squared(benchPrices)
	for i := range prices {
		prices[i].Volume = 1000
	}

	rows := NewEngine(zerolog.Nop()).Compute("AAPL", prices, NewBenchmark("SPY", benchPrices))
	assert.Empty(t, rows)
}

func TestAfter(t *testing.T) {
	rows := []domain.FeatureRow{
		{Date: start},
		{Date: start.AddDate(0, 0, 1)},
		{Date: start.AddDate(0, 0, 2)},
	}

	assert.Len(t, After(rows, nil), 3)

	last := start.AddDate(0, 0, 1)
	got := After(rows, &last)
	require.Len(t, got, 1)
	assert.Equal(t, start.AddDate(0, 0, 2), got[0].Date)
}

func TestBenchmark_FirstReturnUndefined(t *testing.T) {
	b := NewBenchmark("spy", benchmarkPrices(3))
	assert.Equal(t, "SPY", b.Symbol)

	r, ok := b.Return(start)
	assert.True(t, ok)
	assert.True(t, math.IsNaN(r))

	_, ok = b.Return(start.AddDate(1, 0, 0))
	assert.False(t, ok)
}

func TestBenchmarkCache_LoadsOnce(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	load := func(ctx context.Context, symbol string) ([]domain.PricePoint, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		assert.Equal(t, "SPY", symbol)
		return benchmarkPrices(10), nil
	}

	cache := NewBenchmarkCache("spy", load, 0, zerolog.Nop())

	var wg sync.WaitGroup
	results := make([]*Benchmark, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := cache.Get(context.Background())
			assert.NoError(t, err)
			results[i] = b
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	for _, b := range results {
		assert.Same(t, results[0], b)
	}

	cache.Reset()
	_, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestBenchmarkCache_ErrorIsNotCached(t *testing.T) {
	fail := true
	load := func(ctx context.Context, symbol string) ([]domain.PricePoint, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return benchmarkPrices(5), nil
	}

	cache := NewBenchmarkCache("SPY", load, 0, zerolog.Nop())

	_, err := cache.Get(context.Background())
	assert.ErrorContains(t, err, "connection refused")

	fail = false
	b, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, b.Len())
}

func TestBenchmarkCache_ExpiresAfterMaxAge(t *testing.T) {
	calls := 0
	load := func(ctx context.Context, symbol string) ([]domain.PricePoint, error) {
		calls++
		return benchmarkPrices(5), nil
	}

	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	cache := NewBenchmarkCache("SPY", load, time.Hour, zerolog.Nop())
	cache.now = func() time.Time { return now }

	_, err := cache.Get(context.Background())
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	now = now.Add(time.Hour)
	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
