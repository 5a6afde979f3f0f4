package features

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/aristath/sentinel-signals/internal/domain"
	"github.com/rs/zerolog"
)

// Benchmark is the reference instrument's 1-day log return keyed by trading date.
// Returns are computed over the full benchmark history before any join.
type Benchmark struct {
	Symbol  string
	returns map[time.Time]float64
}

// NewBenchmark builds a benchmark from its date-ordered price history
func NewBenchmark(symbol string, prices []domain.PricePoint) *Benchmark {
	b := &Benchmark{
		Symbol:  domain.NormalizeSymbol(symbol),
		returns: make(map[time.Time]float64, len(prices)),
	}
	for i, p := range prices {
		r := math.NaN()
		if i > 0 && prices[i-1].Close > 0 && p.Close > 0 {
			r = math.Log(p.Close / prices[i-1].Close)
		}
		b.returns[domain.Day(p.Date)] = r
	}
	return b
}

// Return looks up the benchmark return for date; ok is false when the date is not covered
func (b *Benchmark) Return(date time.Time) (float64, bool) {
	if b == nil {
		return math.NaN(), false
	}
	r, ok := b.returns[domain.Day(date)]
	return r, ok
}

// Len returns the number of benchmark dates
func (b *Benchmark) Len() int {
	if b == nil {
		return 0
	}
	return len(b.returns)
}

// PriceLoader reads the full price history of one symbol
type PriceLoader func(ctx context.Context, symbol string) ([]domain.PricePoint, error)

// BenchmarkCache computes the benchmark once and shares it read-only across workers.
// A failed load is not cached, so the next caller retries it. With a positive maxAge
// the series is reloaded once it is older than maxAge.
type BenchmarkCache struct {
	symbol string
	load   PriceLoader
	maxAge time.Duration
	now    func() time.Time
	log    zerolog.Logger

	mu       sync.Mutex
	value    *Benchmark
	loadedAt time.Time
}

// NewBenchmarkCache creates a cache for the given benchmark symbol
func NewBenchmarkCache(symbol string, load PriceLoader, maxAge time.Duration, log zerolog.Logger) *BenchmarkCache {
	return &BenchmarkCache{
		symbol: domain.NormalizeSymbol(symbol),
		load:   load,
		maxAge: maxAge,
		now:    time.Now,
		log:    log.With().Str("component", "benchmark_cache").Logger(),
	}
}

// Get returns the cached benchmark, loading it on first access
func (c *BenchmarkCache) Get(ctx context.Context) (*Benchmark, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value != nil && (c.maxAge <= 0 || c.now().Sub(c.loadedAt) < c.maxAge) {
		return c.value, nil
	}

	prices, err := c.load(ctx, c.symbol)
	if err != nil {
		return nil, fmt.Errorf("failed to load benchmark %s: %w", c.symbol, err)
	}

	c.value = NewBenchmark(c.symbol, prices)
	c.loadedAt = c.now()
	c.log.Debug().
		Str("symbol", c.symbol).
		Int("dates", c.value.Len()).
		Msg("Benchmark series cached")

	return c.value, nil
}

// Reset drops the cached series so the next run reloads it
func (c *BenchmarkCache) Reset() {
	c.mu.Lock()
	c.value = nil
	c.mu.Unlock()
}
