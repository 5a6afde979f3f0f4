package signals

import (
	"context"
	"time"

	"github.com/aristath/sentinel-signals/internal/domain"
)

// Store hands out sessions scoped to one unit of work
type Store interface {
	// Acquire reserves a session; the caller must Close it
	Acquire(ctx context.Context) (Session, error)
	// Universe lists instrument symbols ordered by symbol; limit <= 0 means all
	Universe(ctx context.Context, limit int) ([]string, error)
}

// Session is the storage handle threaded through one instrument run
type Session interface {
	Instrument(ctx context.Context, symbol string) (domain.Instrument, bool, error)

	LastFeatureDate(ctx context.Context, inst domain.Instrument) (*time.Time, error)
	LastSignalDate(ctx context.Context, inst domain.Instrument) (*time.Time, error)

	// Prices and Features return rows dated on or after from, ordered by date
	Prices(ctx context.Context, inst domain.Instrument, from time.Time) ([]domain.PricePoint, error)
	Features(ctx context.Context, inst domain.Instrument, from time.Time) ([]domain.FeatureRow, error)

	// Upserts are atomic per batch; an empty batch writes nothing and returns 0
	UpsertFeatures(ctx context.Context, inst domain.Instrument, rows []domain.FeatureRow) (int, error)
	UpsertSignals(ctx context.Context, inst domain.Instrument, rows []domain.SignalRow) (int, error)

	// LatestSignals returns up to limit signals, newest first
	LatestSignals(ctx context.Context, inst domain.Instrument, limit int) ([]domain.SignalRow, error)

	Close() error
}
