package testing

import (
	"database/sql"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/aristath/sentinel-signals/internal/domain"
)

// FixtureStart is the first trading date of generated price series
var FixtureStart = time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC)

// NewPriceSeries generates n consecutive daily prices from a seeded random walk
func NewPriceSeries(symbol string, start time.Time, n int, seed int64) []domain.PricePoint {
	rng := rand.New(rand.NewSource(seed))
	out := make([]domain.PricePoint, n)
	price := 100.0
	for i := range out {
		price *= math.Exp(0.0003 + 0.012*rng.NormFloat64())
		out[i] = domain.PricePoint{
			Date:   start.AddDate(0, 0, i),
			Symbol: symbol,
			Close:  price,
			Volume: math.Round(1e6 * math.Exp(0.3*rng.NormFloat64())),
		}
	}
	return out
}

// SeedInstrument inserts symbol into the universe and returns its id
func SeedInstrument(t *testing.T, db *sql.DB, symbol string) int64 {
	t.Helper()

	if _, err := db.Exec("INSERT OR IGNORE INTO instruments (symbol) VALUES (?)", symbol); err != nil {
		t.Fatalf("Failed to seed instrument %s: %v", symbol, err)
	}

	var id int64
	if err := db.QueryRow("SELECT id FROM instruments WHERE symbol = ?", symbol).Scan(&id); err != nil {
		t.Fatalf("Failed to read instrument %s: %v", symbol, err)
	}
	return id
}

// SeedPrices inserts the instrument and its price history
func SeedPrices(t *testing.T, db *sql.DB, symbol string, prices []domain.PricePoint) int64 {
	t.Helper()

	id := SeedInstrument(t, db, symbol)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("Failed to begin seeding prices: %v", err)
	}
	for _, p := range prices {
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO prices (instrument_id, price_date, close_price, volume) VALUES (?, ?, ?, ?)",
			id, p.Date.Format(domain.DateLayout), p.Close, p.Volume,
		); err != nil {
			_ = tx.Rollback()
			t.Fatalf("Failed to seed price for %s: %v", symbol, err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Failed to commit seeded prices: %v", err)
	}
	return id
}

// CountRows returns the row count of table for one instrument
func CountRows(t *testing.T, db *sql.DB, table string, instrumentID int64) int {
	t.Helper()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM "+table+" WHERE instrument_id = ?", instrumentID).Scan(&n); err != nil {
		t.Fatalf("Failed to count %s: %v", table, err)
	}
	return n
}
