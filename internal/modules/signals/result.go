package signals

import (
	"time"

	"github.com/aristath/sentinel-signals/internal/domain"
)

// Outcome classifies how an instrument run ended
type Outcome string

const (
	OutcomeSkippedNoHistory Outcome = "skipped_no_history"
	OutcomeInsufficientData Outcome = "insufficient_data"
	OutcomeNoModel          Outcome = "no_model"
	OutcomeWritten          Outcome = "written"
	OutcomeFailed           Outcome = "failed"
)

// Result is the per-instrument outcome of Process. Err is set only for storage,
// schema and model failures; data shortfalls are reported through Outcome.
type Result struct {
	Symbol   string        `json:"symbol"`
	Mode     domain.Mode   `json:"mode"`
	Outcome  Outcome       `json:"outcome"`
	Features int           `json:"features_written"`
	Signals  int           `json:"signals_written"`
	Trained  bool          `json:"trained"`
	Duration time.Duration `json:"duration_ns"`
	Err      error         `json:"-"`
}

// OK reports whether the run finished without a hard failure
func (r Result) OK() bool {
	return r.Err == nil
}

// ErrorMessage returns the failure message, or "" for successful runs
func (r Result) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}
