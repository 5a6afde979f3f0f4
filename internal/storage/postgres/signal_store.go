package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-signals/internal/domain"
	"github.com/aristath/sentinel-signals/internal/modules/signals"
)

// ErrInvalidSignal is returned when a signal row violates a table constraint.
var ErrInvalidSignal = errors.New("invalid signal row")

// SignalStore implements signals.Store using PostgreSQL.
type SignalStore struct {
	pool *Pool
	log  zerolog.Logger
}

// NewSignalStore creates a new SignalStore.
func NewSignalStore(pool *Pool, log zerolog.Logger) *SignalStore {
	return &SignalStore{
		pool: pool,
		log:  log.With().Str("component", "signal_store").Str("driver", "postgres").Logger(),
	}
}

// Compile-time interface check.
var _ signals.Store = (*SignalStore)(nil)

// Acquire reserves one pooled connection for the session.
func (s *SignalStore) Acquire(ctx context.Context) (signals.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return &session{conn: conn, log: s.log}, nil
}

// Universe lists instrument symbols ordered by symbol.
func (s *SignalStore) Universe(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT symbol FROM instruments ORDER BY symbol`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query universe: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

type session struct {
	conn *pgxpool.Conn
	log  zerolog.Logger
}

func (s *session) Close() error {
	s.conn.Release()
	return nil
}

func (s *session) Instrument(ctx context.Context, symbol string) (domain.Instrument, bool, error) {
	var inst domain.Instrument
	err := s.conn.QueryRow(ctx,
		`SELECT id, symbol FROM instruments WHERE symbol = $1`,
		domain.NormalizeSymbol(symbol),
	).Scan(&inst.ID, &inst.Symbol)
	if isNotFoundError(err) {
		return inst, false, nil
	}
	if err != nil {
		return inst, false, fmt.Errorf("get instrument %s: %w", symbol, err)
	}
	return inst, true, nil
}

func (s *session) maxDate(ctx context.Context, query string, inst domain.Instrument) (*time.Time, error) {
	var last *time.Time
	if err := s.conn.QueryRow(ctx, query, inst.ID).Scan(&last); err != nil {
		return nil, fmt.Errorf("get last date for %s: %w", inst.Symbol, err)
	}
	if last == nil {
		return nil, nil
	}
	d := domain.Day(*last)
	return &d, nil
}

func (s *session) LastFeatureDate(ctx context.Context, inst domain.Instrument) (*time.Time, error) {
	return s.maxDate(ctx, `SELECT max(feature_date) FROM features WHERE instrument_id = $1`, inst)
}

func (s *session) LastSignalDate(ctx context.Context, inst domain.Instrument) (*time.Time, error) {
	return s.maxDate(ctx, `SELECT max(signal_date) FROM signals WHERE instrument_id = $1`, inst)
}

func (s *session) Prices(ctx context.Context, inst domain.Instrument, from time.Time) ([]domain.PricePoint, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT price_date, close_price, volume
		FROM prices
		WHERE instrument_id = $1 AND price_date >= $2
		ORDER BY price_date ASC
	`, inst.ID, domain.Day(from))
	if err != nil {
		return nil, fmt.Errorf("query prices for %s: %w", inst.Symbol, err)
	}
	defer rows.Close()

	var out []domain.PricePoint
	for rows.Next() {
		p := domain.PricePoint{Symbol: inst.Symbol}
		if err := rows.Scan(&p.Date, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		p.Date = domain.Day(p.Date)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *session) Features(ctx context.Context, inst domain.Instrument, from time.Time) ([]domain.FeatureRow, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT feature_date,
			log_return_1d, log_return_7d, log_return_14d,
			vol_14d, vol_30d,
			drawdown_30d, rsi_14, volume_z_30d,
			corr_60d, beta_60d
		FROM features
		WHERE instrument_id = $1 AND feature_date >= $2
		ORDER BY feature_date ASC
	`, inst.ID, domain.Day(from))
	if err != nil {
		return nil, fmt.Errorf("query features for %s: %w", inst.Symbol, err)
	}
	defer rows.Close()

	var out []domain.FeatureRow
	for rows.Next() {
		r := domain.FeatureRow{Symbol: inst.Symbol}
		if err := rows.Scan(
			&r.Date,
			&r.LogReturn1D, &r.LogReturn7D, &r.LogReturn14D,
			&r.Vol14D, &r.Vol30D,
			&r.Drawdown30D, &r.RSI14, &r.VolumeZ30D,
			&r.Corr60D, &r.Beta60D,
		); err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		r.Date = domain.Day(r.Date)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertFeatures writes the batch atomically.
func (s *session) UpsertFeatures(ctx context.Context, inst domain.Instrument, rows []domain.FeatureRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO features (
			instrument_id, feature_date,
			log_return_1d, log_return_7d, log_return_14d,
			vol_14d, vol_30d,
			drawdown_30d, rsi_14, volume_z_30d,
			corr_60d, beta_60d
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (instrument_id, feature_date) DO UPDATE SET
			log_return_1d = EXCLUDED.log_return_1d,
			log_return_7d = EXCLUDED.log_return_7d,
			log_return_14d = EXCLUDED.log_return_14d,
			vol_14d = EXCLUDED.vol_14d,
			vol_30d = EXCLUDED.vol_30d,
			drawdown_30d = EXCLUDED.drawdown_30d,
			rsi_14 = EXCLUDED.rsi_14,
			volume_z_30d = EXCLUDED.volume_z_30d,
			corr_60d = EXCLUDED.corr_60d,
			beta_60d = EXCLUDED.beta_60d
	`

	for _, r := range rows {
		_, err := tx.Exec(ctx, query,
			inst.ID, r.Date,
			r.LogReturn1D, r.LogReturn7D, r.LogReturn14D,
			r.Vol14D, r.Vol30D,
			r.Drawdown30D, r.RSI14, r.VolumeZ30D,
			r.Corr60D, r.Beta60D,
		)
		if err != nil {
			return 0, fmt.Errorf("upsert feature %s for %s: %w", r.Date.Format(domain.DateLayout), inst.Symbol, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	s.log.Debug().Str("symbol", inst.Symbol).Int("rows", len(rows)).Msg("Features upserted")
	return len(rows), nil
}

// UpsertSignals writes the batch atomically; any failing row rolls back the whole batch.
func (s *session) UpsertSignals(ctx context.Context, inst domain.Instrument, rows []domain.SignalRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO signals (instrument_id, signal_date, regime_label, risk_score, drivers_json, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (instrument_id, signal_date) DO UPDATE SET
			regime_label = EXCLUDED.regime_label,
			risk_score = EXCLUDED.risk_score,
			drivers_json = EXCLUDED.drivers_json,
			updated_at = EXCLUDED.updated_at
	`

	for _, r := range rows {
		drivers, err := json.Marshal(r.Payload())
		if err != nil {
			return 0, fmt.Errorf("encode drivers: %w", err)
		}
		_, err = tx.Exec(ctx, query, inst.ID, r.Date, string(r.Regime), r.RiskScore, string(drivers))
		if err != nil {
			if isCheckViolation(err) {
				return 0, fmt.Errorf("signal %s for %s: %w", r.Date.Format(domain.DateLayout), inst.Symbol, ErrInvalidSignal)
			}
			return 0, fmt.Errorf("upsert signal %s for %s: %w", r.Date.Format(domain.DateLayout), inst.Symbol, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	s.log.Debug().Str("symbol", inst.Symbol).Int("rows", len(rows)).Msg("Signals upserted")
	return len(rows), nil
}

func (s *session) LatestSignals(ctx context.Context, inst domain.Instrument, limit int) ([]domain.SignalRow, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := s.conn.Query(ctx, `
		SELECT signal_date, regime_label, risk_score, drivers_json
		FROM signals
		WHERE instrument_id = $1
		ORDER BY signal_date DESC
		LIMIT $2
	`, inst.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("query signals for %s: %w", inst.Symbol, err)
	}
	defer rows.Close()

	var out []domain.SignalRow
	for rows.Next() {
		var (
			regime  string
			risk    int16
			drivers []byte
		)
		r := domain.SignalRow{Symbol: inst.Symbol}
		if err := rows.Scan(&r.Date, &regime, &risk, &drivers); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		r.Date = domain.Day(r.Date)
		r.Regime = domain.Regime(regime)
		r.RiskScore = int(risk)
		if r.Drivers, err = signals.DecodeDrivers(drivers); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
