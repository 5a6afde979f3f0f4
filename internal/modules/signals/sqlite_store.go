package signals

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aristath/sentinel-signals/internal/database"
	"github.com/aristath/sentinel-signals/internal/domain"
	"github.com/rs/zerolog"
)

const upsertFeatureSQL = `
	INSERT INTO features (
		instrument_id, feature_date,
		log_return_1d, log_return_7d, log_return_14d,
		vol_14d, vol_30d,
		drawdown_30d, rsi_14, volume_z_30d,
		corr_60d, beta_60d
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (instrument_id, feature_date) DO UPDATE SET
		log_return_1d = excluded.log_return_1d,
		log_return_7d = excluded.log_return_7d,
		log_return_14d = excluded.log_return_14d,
		vol_14d = excluded.vol_14d,
		vol_30d = excluded.vol_30d,
		drawdown_30d = excluded.drawdown_30d,
		rsi_14 = excluded.rsi_14,
		volume_z_30d = excluded.volume_z_30d,
		corr_60d = excluded.corr_60d,
		beta_60d = excluded.beta_60d
`

const upsertSignalSQL = `
	INSERT INTO signals (instrument_id, signal_date, regime_label, risk_score, drivers_json, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT (instrument_id, signal_date) DO UPDATE SET
		regime_label = excluded.regime_label,
		risk_score = excluded.risk_score,
		drivers_json = excluded.drivers_json,
		updated_at = excluded.updated_at
`

// SQLiteStore implements Store on the embedded signals database
type SQLiteStore struct {
	db  *database.DB
	log zerolog.Logger
}

// NewSQLiteStore creates a store over a migrated signals database
func NewSQLiteStore(db *database.DB, log zerolog.Logger) *SQLiteStore {
	return &SQLiteStore{
		db:  db,
		log: log.With().Str("component", "signal_store").Str("driver", "sqlite").Logger(),
	}
}

// Acquire reserves one pooled connection for the session
func (s *SQLiteStore) Acquire(ctx context.Context) (Session, error) {
	conn, err := s.db.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return &sqliteSession{conn: conn, log: s.log}, nil
}

// Universe lists instrument symbols
func (s *SQLiteStore) Universe(ctx context.Context, limit int) ([]string, error) {
	query := "SELECT symbol FROM instruments ORDER BY symbol"
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query universe: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

type sqliteSession struct {
	conn *sql.Conn
	log  zerolog.Logger
}

func (s *sqliteSession) Close() error {
	return s.conn.Close()
}

func (s *sqliteSession) Instrument(ctx context.Context, symbol string) (domain.Instrument, bool, error) {
	inst := domain.Instrument{}
	err := s.conn.QueryRowContext(ctx,
		"SELECT id, symbol FROM instruments WHERE symbol = ?",
		domain.NormalizeSymbol(symbol),
	).Scan(&inst.ID, &inst.Symbol)
	if err == sql.ErrNoRows {
		return inst, false, nil
	}
	if err != nil {
		return inst, false, fmt.Errorf("failed to get instrument %s: %w", symbol, err)
	}
	return inst, true, nil
}

func (s *sqliteSession) maxDate(ctx context.Context, query string, inst domain.Instrument) (*time.Time, error) {
	var last sql.NullString
	if err := s.conn.QueryRowContext(ctx, query, inst.ID).Scan(&last); err != nil {
		return nil, fmt.Errorf("failed to get last date for %s: %w", inst.Symbol, err)
	}
	if !last.Valid {
		return nil, nil
	}
	d, err := domain.ParseDay(last.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *sqliteSession) LastFeatureDate(ctx context.Context, inst domain.Instrument) (*time.Time, error) {
	return s.maxDate(ctx, "SELECT MAX(feature_date) FROM features WHERE instrument_id = ?", inst)
}

func (s *sqliteSession) LastSignalDate(ctx context.Context, inst domain.Instrument) (*time.Time, error) {
	return s.maxDate(ctx, "SELECT MAX(signal_date) FROM signals WHERE instrument_id = ?", inst)
}

func (s *sqliteSession) Prices(ctx context.Context, inst domain.Instrument, from time.Time) ([]domain.PricePoint, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT price_date, close_price, volume
		FROM prices
		WHERE instrument_id = ? AND price_date >= ?
		ORDER BY price_date ASC
	`, inst.ID, from.Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query prices for %s: %w", inst.Symbol, err)
	}
	defer rows.Close()

	var out []domain.PricePoint
	for rows.Next() {
		var date string
		p := domain.PricePoint{Symbol: inst.Symbol}
		if err := rows.Scan(&date, &p.Close, &p.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		if p.Date, err = domain.ParseDay(date); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *sqliteSession) Features(ctx context.Context, inst domain.Instrument, from time.Time) ([]domain.FeatureRow, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT feature_date,
			log_return_1d, log_return_7d, log_return_14d,
			vol_14d, vol_30d,
			drawdown_30d, rsi_14, volume_z_30d,
			corr_60d, beta_60d
		FROM features
		WHERE instrument_id = ? AND feature_date >= ?
		ORDER BY feature_date ASC
	`, inst.ID, from.Format(domain.DateLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query features for %s: %w", inst.Symbol, err)
	}
	defer rows.Close()

	var out []domain.FeatureRow
	for rows.Next() {
		var date string
		r := domain.FeatureRow{Symbol: inst.Symbol}
		if err := rows.Scan(
			&date,
			&r.LogReturn1D, &r.LogReturn7D, &r.LogReturn14D,
			&r.Vol14D, &r.Vol30D,
			&r.Drawdown30D, &r.RSI14, &r.VolumeZ30D,
			&r.Corr60D, &r.Beta60D,
		); err != nil {
			return nil, fmt.Errorf("failed to scan feature row: %w", err)
		}
		if r.Date, err = domain.ParseDay(date); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteSession) UpsertFeatures(ctx context.Context, inst domain.Instrument, rows []domain.FeatureRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	err := database.WithTransactionContext(ctx, s.conn, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertFeatureSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx,
				inst.ID, r.Date.Format(domain.DateLayout),
				r.LogReturn1D, r.LogReturn7D, r.LogReturn14D,
				r.Vol14D, r.Vol30D,
				r.Drawdown30D, r.RSI14, r.VolumeZ30D,
				r.Corr60D, r.Beta60D,
			); err != nil {
				return fmt.Errorf("feature %s: %w", r.Date.Format(domain.DateLayout), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert features for %s: %w", inst.Symbol, err)
	}

	s.log.Debug().Str("symbol", inst.Symbol).Int("rows", len(rows)).Msg("Features upserted")
	return len(rows), nil
}

func (s *sqliteSession) UpsertSignals(ctx context.Context, inst domain.Instrument, rows []domain.SignalRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	now := time.Now().Unix()
	err := database.WithTransactionContext(ctx, s.conn, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, upsertSignalSQL)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range rows {
			drivers, err := json.Marshal(r.Payload())
			if err != nil {
				return fmt.Errorf("failed to encode drivers: %w", err)
			}
			if _, err := stmt.ExecContext(ctx,
				inst.ID, r.Date.Format(domain.DateLayout),
				string(r.Regime), r.RiskScore, string(drivers), now,
			); err != nil {
				return fmt.Errorf("signal %s: %w", r.Date.Format(domain.DateLayout), err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upsert signals for %s: %w", inst.Symbol, err)
	}

	s.log.Debug().Str("symbol", inst.Symbol).Int("rows", len(rows)).Msg("Signals upserted")
	return len(rows), nil
}

func (s *sqliteSession) LatestSignals(ctx context.Context, inst domain.Instrument, limit int) ([]domain.SignalRow, error) {
	if limit <= 0 {
		limit = 30
	}

	rows, err := s.conn.QueryContext(ctx, `
		SELECT signal_date, regime_label, risk_score, drivers_json
		FROM signals
		WHERE instrument_id = ?
		ORDER BY signal_date DESC
		LIMIT ?
	`, inst.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals for %s: %w", inst.Symbol, err)
	}
	defer rows.Close()

	var out []domain.SignalRow
	for rows.Next() {
		var date, regime, drivers string
		r := domain.SignalRow{Symbol: inst.Symbol}
		if err := rows.Scan(&date, &regime, &r.RiskScore, &drivers); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		if r.Date, err = domain.ParseDay(date); err != nil {
			return nil, err
		}
		r.Regime = domain.Regime(regime)
		if r.Drivers, err = DecodeDrivers([]byte(drivers)); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DecodeDrivers parses a stored {"top_drivers": [...]} payload
func DecodeDrivers(data []byte) ([]domain.Driver, error) {
	var payload domain.DriversPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode drivers: %w", err)
	}
	if payload.TopDrivers == nil {
		payload.TopDrivers = []domain.Driver{}
	}
	return payload.TopDrivers, nil
}
