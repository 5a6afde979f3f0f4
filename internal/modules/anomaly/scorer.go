package anomaly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/aristath/sentinel-signals/internal/domain"
	"github.com/aristath/sentinel-signals/internal/utils"
	"github.com/rs/zerolog"
)

// DefaultMinRows is the fewest valid rows that can be fitted or scored
const DefaultMinRows = 200

// Status describes why a scoring pass did or did not produce values
type Status string

const (
	StatusScored           Status = "scored"
	StatusInsufficientData Status = "insufficient_data"
	StatusNoModel          Status = "no_model"
)

// Scores holds one percentile per input row; NaN marks rows without a score
type Scores struct {
	Status      Status
	Percentiles []float64
	Trained     bool
}

// Risk returns the integer risk score of row i, if defined
func (s Scores) Risk(i int) (int, bool) {
	if i < 0 || i >= len(s.Percentiles) || math.IsNaN(s.Percentiles[i]) {
		return 0, false
	}
	return RiskScore(s.Percentiles[i]), true
}

// Scored counts rows with a defined score
func (s Scores) Scored() int {
	n := 0
	for _, p := range s.Percentiles {
		if !math.IsNaN(p) {
			n++
		}
	}
	return n
}

// Scorer turns feature rows into percentile risk scores, refitting only in periodic mode
type Scorer struct {
	detector      Detector
	repo          Repository
	features      []string
	schemaVersion int
	minRows       int
	log           zerolog.Logger
}

// NewScorer creates a scorer over the full feature schema
func NewScorer(detector Detector, repo Repository, minRows int, log zerolog.Logger) *Scorer {
	if minRows <= 0 {
		minRows = DefaultMinRows
	}
	return &Scorer{
		detector:      detector,
		repo:          repo,
		features:      domain.FeatureNames,
		schemaVersion: domain.FeatureSchemaVersion,
		minRows:       minRows,
		log:           log.With().Str("component", "anomaly_scorer").Logger(),
	}
}

// Score fits (periodic) or loads (frequent) the instrument's model and ranks every valid row.
// Insufficient data and a missing model are reported through Status, not as errors.
func (s *Scorer) Score(ctx context.Context, symbol string, mode domain.Mode, rows []domain.FeatureRow) (Scores, error) {
	scores := Scores{Percentiles: make([]float64, len(rows))}
	for i := range scores.Percentiles {
		scores.Percentiles[i] = math.NaN()
	}

	matrix := Matrix{Features: s.features}
	positions := make([]int, 0, len(rows))
	for i, row := range rows {
		if !row.Valid() {
			continue
		}
		vec, err := row.Vector(s.features)
		if err != nil {
			return scores, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
		}
		matrix.Rows = append(matrix.Rows, vec)
		positions = append(positions, i)
	}

	if len(matrix.Rows) < s.minRows {
		s.log.Debug().
			Str("symbol", symbol).
			Int("valid_rows", len(matrix.Rows)).
			Int("min_rows", s.minRows).
			Msg("Not enough rows to score")
		scores.Status = StatusInsufficientData
		return scores, nil
	}

	artifact, err := s.artifact(ctx, symbol, mode, matrix)
	if errors.Is(err, ErrModelNotFound) {
		s.log.Info().Str("symbol", symbol).Msg("No trained model yet, skipping scoring")
		scores.Status = StatusNoModel
		return scores, nil
	}
	if err != nil {
		return scores, err
	}
	scores.Trained = mode == domain.ModePeriodic

	raw, err := s.detector.Score(ctx, artifact, matrix)
	if err != nil {
		return scores, fmt.Errorf("failed to score %s: %w", symbol, err)
	}

	// raw is higher-is-normal; negate so the highest percentile is the most anomalous
	for i := range raw {
		raw[i] = -raw[i]
	}
	for i, p := range PercentileRanks(raw) {
		scores.Percentiles[positions[i]] = p
	}

	scores.Status = StatusScored
	return scores, nil
}

func (s *Scorer) artifact(ctx context.Context, symbol string, mode domain.Mode, m Matrix) (*Artifact, error) {
	if mode == domain.ModePeriodic {
		done := utils.OperationTimer("fit_"+strings.ToLower(symbol), time.Minute, s.log)
		artifact, err := s.detector.Fit(ctx, m)
		done()
		if err != nil {
			return nil, fmt.Errorf("failed to train %s: %w", symbol, err)
		}
		artifact.Symbol = strings.ToUpper(symbol)
		artifact.SchemaVersion = s.schemaVersion
		if err := s.repo.Save(ctx, symbol, artifact); err != nil {
			return nil, fmt.Errorf("failed to save model for %s: %w", symbol, err)
		}
		return artifact, nil
	}

	artifact, err := s.repo.Load(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if err := artifact.CheckSchema(s.schemaVersion, s.features); err != nil {
		return nil, fmt.Errorf("model for %s: %w", symbol, err)
	}
	return artifact, nil
}
