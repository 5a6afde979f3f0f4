package signals

import (
	"context"
	"testing"
	"time"

	"github.com/aristath/sentinel-signals/internal/domain"
	testingpkg "github.com/aristath/sentinel-signals/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*SQLiteStore, func()) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "signals")
	return NewSQLiteStore(db, zerolog.Nop()), cleanup
}

func mustDay(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := domain.ParseDay(s)
	require.NoError(t, err)
	return d
}

func TestSQLiteStore_UpsertSignalOverwrites(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id := testingpkg.SeedInstrument(t, store.db.Conn(), "AAPL")

	session, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer session.Close()

	inst, ok, err := session.Instrument(ctx, "aapl")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, inst.ID)

	date := mustDay(t, "2024-03-01")
	for _, risk := range []int{40, 55} {
		n, err := session.UpsertSignals(ctx, inst, []domain.SignalRow{{
			Date:      date,
			Symbol:    "AAPL",
			Regime:    domain.RegimeSideways,
			RiskScore: risk,
			Drivers:   []domain.Driver{{Feature: domain.FeatureVol30D, Value: 0.02, Percentile: 0.9}},
		}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	assert.Equal(t, 1, testingpkg.CountRows(t, store.db.Conn(), "signals", id))

	latest, err := session.LatestSignals(ctx, inst, 10)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, 55, latest[0].RiskScore)
	assert.Equal(t, date, latest[0].Date)
	assert.Equal(t, []domain.Driver{{Feature: domain.FeatureVol30D, Value: 0.02, Percentile: 0.9}}, latest[0].Drivers)
}

func TestSQLiteStore_UpsertIsAtomic(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id := testingpkg.SeedInstrument(t, store.db.Conn(), "AAPL")
	session, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer session.Close()
	inst := domain.Instrument{ID: id, Symbol: "AAPL"}

	rows := []domain.SignalRow{
		{Date: mustDay(t, "2024-03-01"), Regime: domain.RegimeTrendUp, RiskScore: 10},
		{Date: mustDay(t, "2024-03-02"), Regime: domain.RegimeTrendUp, RiskScore: 150}, // violates CHECK
	}

	n, err := session.UpsertSignals(ctx, inst, rows)
	assert.Error(t, err)
	assert.Zero(t, n)
	assert.Zero(t, testingpkg.CountRows(t, store.db.Conn(), "signals", id))
}

func TestSQLiteStore_EmptyBatchIsNoop(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	session, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer session.Close()

	n, err := session.UpsertSignals(ctx, domain.Instrument{ID: 1, Symbol: "AAPL"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = session.UpsertFeatures(ctx, domain.Instrument{ID: 1, Symbol: "AAPL"}, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLiteStore_FeaturesRoundTripAndLastDate(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	id := testingpkg.SeedInstrument(t, store.db.Conn(), "MSFT")
	inst := domain.Instrument{ID: id, Symbol: "MSFT"}

	session, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer session.Close()

	last, err := session.LastFeatureDate(ctx, inst)
	require.NoError(t, err)
	assert.Nil(t, last)

	rows := []domain.FeatureRow{
		{Date: mustDay(t, "2024-01-03"), Symbol: "MSFT", LogReturn1D: 0.01, Vol30D: 0.02, RSI14: 55, Beta60D: 1.1},
		{Date: mustDay(t, "2024-01-02"), Symbol: "MSFT", LogReturn1D: -0.01, Vol30D: 0.021, RSI14: 45, Beta60D: 1.2},
	}
	n, err := session.UpsertFeatures(ctx, inst, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	last, err = session.LastFeatureDate(ctx, inst)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, mustDay(t, "2024-01-03"), *last)

	got, err := session.Features(ctx, inst, mustDay(t, "2024-01-01"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rows[1], got[0], "ordered by date")
	assert.Equal(t, rows[0], got[1])

	got, err = session.Features(ctx, inst, mustDay(t, "2024-01-03"))
	require.NoError(t, err)
	assert.Len(t, got, 1)

	lastSignal, err := session.LastSignalDate(ctx, inst)
	require.NoError(t, err)
	assert.Nil(t, lastSignal)
}

func TestSQLiteStore_PricesAndUniverse(t *testing.T) {
	store, cleanup := newTestStore(t)
	defer cleanup()
	ctx := context.Background()

	prices := testingpkg.NewPriceSeries("AAPL", testingpkg.FixtureStart, 10, 1)
	id := testingpkg.SeedPrices(t, store.db.Conn(), "AAPL", prices)
	testingpkg.SeedInstrument(t, store.db.Conn(), "SPY")
	testingpkg.SeedInstrument(t, store.db.Conn(), "MSFT")

	session, err := store.Acquire(ctx)
	require.NoError(t, err)
	defer session.Close()

	got, err := session.Prices(ctx, domain.Instrument{ID: id, Symbol: "AAPL"}, prices[4].Date)
	require.NoError(t, err)
	require.Len(t, got, 6)
	assert.Equal(t, prices[4].Date, got[0].Date)
	assert.InDelta(t, prices[4].Close, got[0].Close, 1e-9)
	assert.Equal(t, prices[4].Volume, got[0].Volume)

	universe, err := store.Universe(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT", "SPY"}, universe)

	universe, err = store.Universe(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, universe)

	_, ok, err := session.Instrument(ctx, "NOPE")
	require.NoError(t, err)
	assert.False(t, ok)
}
