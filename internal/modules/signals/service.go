// Package signals runs the incremental feature and signal pipeline for one instrument at a time.
package signals

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/sentinel-signals/internal/domain"
	"github.com/aristath/sentinel-signals/internal/modules/anomaly"
	"github.com/aristath/sentinel-signals/internal/modules/drivers"
	"github.com/aristath/sentinel-signals/internal/modules/features"
	"github.com/aristath/sentinel-signals/internal/modules/regime"
	"github.com/aristath/sentinel-signals/internal/modules/window"
	"github.com/rs/zerolog"
)

// ErrUnknownMode is returned by ParseMode for unsupported modes
var ErrUnknownMode = domain.ErrUnknownMode

// ParseMode accepts frequent|daily and periodic|monthly
func ParseMode(s string) (domain.Mode, error) {
	return domain.ParseMode(s)
}

// Settings are the values the pipeline consumes
type Settings struct {
	BenchmarkSymbol     string
	TrainingWindowDays  int
	BufferDays          int
	FeatureBufferDays   int
	FeatureFirstRunDays int
	DriverLookback      int
	MinTrainRows        int
	BenchmarkMaxAge     time.Duration
}

// DefaultSettings returns the production defaults
func DefaultSettings() Settings {
	return Settings{
		BenchmarkSymbol:     "SPY",
		TrainingWindowDays:  1500,
		BufferDays:          400,
		FeatureBufferDays:   180,
		FeatureFirstRunDays: 365 * 5,
		DriverLookback:      drivers.DefaultLookback,
		MinTrainRows:        anomaly.DefaultMinRows,
		BenchmarkMaxAge:     time.Hour,
	}
}

// Observer is notified of every finished instrument run
type Observer interface {
	ObserveResult(r Result)
}

// Service wires the window selector, feature engine, scorer, classifier and explainer
// around a storage session per instrument
type Service struct {
	store     Store
	selector  window.Selector
	engine    *features.Engine
	benchmark *features.BenchmarkCache
	scorer    *anomaly.Scorer
	explainer *drivers.Explainer
	observer  Observer
	settings  Settings
	now       func() time.Time
	log       zerolog.Logger
}

// NewService creates the pipeline service
func NewService(store Store, scorer *anomaly.Scorer, settings Settings, log zerolog.Logger) *Service {
	s := &Service{
		store: store,
		selector: window.NewSelector(
			settings.TrainingWindowDays,
			settings.BufferDays,
			settings.FeatureBufferDays,
			settings.FeatureFirstRunDays,
		),
		engine:    features.NewEngine(log),
		scorer:    scorer,
		explainer: drivers.NewExplainer(settings.DriverLookback),
		settings:  settings,
		now:       time.Now,
		log:       log.With().Str("component", "signal_service").Logger(),
	}
	s.benchmark = features.NewBenchmarkCache(settings.BenchmarkSymbol, s.loadPrices, settings.BenchmarkMaxAge, log)
	return s
}

// SetObserver registers an observer for finished runs
func (s *Service) SetObserver(o Observer) {
	s.observer = o
}

// ResetBenchmark forces the next run to reload the benchmark series
func (s *Service) ResetBenchmark() {
	s.benchmark.Reset()
}

// Universe lists the instruments to process
func (s *Service) Universe(ctx context.Context, limit int) ([]string, error) {
	return s.store.Universe(ctx, limit)
}

// Latest returns the newest persisted signals for symbol
func (s *Service) Latest(ctx context.Context, symbol string, limit int) ([]domain.SignalRow, error) {
	session, err := s.store.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	inst, ok, err := session.Instrument(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []domain.SignalRow{}, nil
	}
	return session.LatestSignals(ctx, inst, limit)
}

func (s *Service) loadPrices(ctx context.Context, symbol string) ([]domain.PricePoint, error) {
	session, err := s.store.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	inst, ok, err := session.Instrument(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("benchmark %s is not in the instrument table", symbol)
	}
	return session.Prices(ctx, inst, time.Time{})
}

// Process extends the feature table and writes every new signal row for one instrument.
// It is safe to call repeatedly for the same instrument and date.
func (s *Service) Process(ctx context.Context, symbol string, mode domain.Mode) Result {
	started := s.now()
	result := Result{Symbol: domain.NormalizeSymbol(symbol), Mode: mode}

	err := s.process(ctx, &result)
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = err
	}
	result.Duration = s.now().Sub(started)

	event := s.log.Info()
	if err != nil {
		event = s.log.Error().Err(err)
	}
	event.
		Str("symbol", result.Symbol).
		Str("mode", string(mode)).
		Str("outcome", string(result.Outcome)).
		Int("features", result.Features).
		Int("signals", result.Signals).
		Dur("duration", result.Duration).
		Msg("Instrument processed")

	if s.observer != nil {
		s.observer.ObserveResult(result)
	}
	return result
}

func (s *Service) process(ctx context.Context, result *Result) error {
	// The benchmark loads on its own connection, so fetch it before holding a session
	bench, err := s.benchmark.Get(ctx)
	if err != nil {
		return err
	}

	session, err := s.store.Acquire(ctx)
	if err != nil {
		return err
	}
	defer session.Close()

	inst, ok, err := session.Instrument(ctx, result.Symbol)
	if err != nil {
		return err
	}
	if !ok {
		s.log.Warn().Str("symbol", result.Symbol).Msg("Unknown instrument")
		result.Outcome = OutcomeSkippedNoHistory
		return nil
	}

	today := domain.Day(s.now())

	written, err := s.extendFeatures(ctx, session, inst, bench, today)
	if err != nil {
		return err
	}
	result.Features = written

	lastSignal, err := session.LastSignalDate(ctx, inst)
	if err != nil {
		return err
	}

	frame, err := session.Features(ctx, inst, s.selector.SignalStart(lastSignal, today))
	if err != nil {
		return err
	}
	if len(frame) == 0 {
		result.Outcome = OutcomeSkippedNoHistory
		return nil
	}

	scores, err := s.scorer.Score(ctx, inst.Symbol, result.Mode, frame)
	if err != nil {
		return err
	}
	result.Trained = scores.Trained

	switch scores.Status {
	case anomaly.StatusInsufficientData:
		result.Outcome = OutcomeInsufficientData
		return nil
	case anomaly.StatusNoModel:
		result.Outcome = OutcomeNoModel
		return nil
	}

	rows := s.buildSignals(frame, scores, lastSignal)
	n, err := session.UpsertSignals(ctx, inst, rows)
	if err != nil {
		return err
	}

	result.Signals = n
	result.Outcome = OutcomeWritten
	return nil
}

// extendFeatures computes features over a buffered price window and upserts only dates
// newer than the last persisted feature
func (s *Service) extendFeatures(ctx context.Context, session Session, inst domain.Instrument, bench *features.Benchmark, today time.Time) (int, error) {
	lastFeature, err := session.LastFeatureDate(ctx, inst)
	if err != nil {
		return 0, err
	}

	prices, err := session.Prices(ctx, inst, s.selector.FeatureStart(lastFeature, today))
	if err != nil {
		return 0, err
	}
	if len(prices) == 0 {
		return 0, nil
	}

	rows := features.After(s.engine.Compute(inst.Symbol, prices, bench), lastFeature)
	if len(rows) == 0 {
		s.log.Debug().Str("symbol", inst.Symbol).Msg("No new feature rows")
		return 0, nil
	}

	return session.UpsertFeatures(ctx, inst, rows)
}

// buildSignals labels, scores and explains every scored row newer than lastSignal.
// Drivers read the whole frame, so earlier rows inform percentiles without being rewritten.
func (s *Service) buildSignals(frame []domain.FeatureRow, scores anomaly.Scores, lastSignal *time.Time) []domain.SignalRow {
	rows := make([]domain.SignalRow, 0)
	for i, f := range frame {
		if !window.NewerThan(f.Date, lastSignal) {
			continue
		}
		risk, ok := scores.Risk(i)
		if !ok {
			continue
		}
		rows = append(rows, domain.SignalRow{
			Date:      f.Date,
			Symbol:    f.Symbol,
			Regime:    regime.ClassifyRow(f),
			RiskScore: risk,
			Drivers:   s.explainer.Explain(frame, i),
		})
	}
	return rows
}
