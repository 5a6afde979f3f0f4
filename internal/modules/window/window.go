// Package window decides how much raw history an incremental run has to read.
package window

import (
	"time"

	"github.com/aristath/sentinel-signals/internal/domain"
)

// Selector computes fetch start dates for the feature and signal steps
type Selector struct {
	TrainingWindowDays  int
	BufferDays          int
	FeatureBufferDays   int
	FeatureFirstRunDays int
}

// NewSelector creates a selector with the given lookbacks (in calendar days)
func NewSelector(trainingWindowDays, bufferDays, featureBufferDays, featureFirstRunDays int) Selector {
	return Selector{
		TrainingWindowDays:  trainingWindowDays,
		BufferDays:          bufferDays,
		FeatureBufferDays:   featureBufferDays,
		FeatureFirstRunDays: featureFirstRunDays,
	}
}

// SignalStart returns the first date of history needed to score new rows.
// With no prior signal it reaches back a full training window; otherwise it
// reaches back far enough for both the rolling buffer and a full refit.
func (s Selector) SignalStart(lastSignal *time.Time, today time.Time) time.Time {
	longLookback := domain.Day(today).AddDate(0, 0, -s.TrainingWindowDays)
	if lastSignal == nil {
		return longLookback
	}

	buffered := domain.Day(*lastSignal).AddDate(0, 0, -s.BufferDays)
	if buffered.Before(longLookback) {
		return buffered
	}
	return longLookback
}

// FeatureStart returns the first date of raw prices needed to extend the feature table
func (s Selector) FeatureStart(lastFeature *time.Time, today time.Time) time.Time {
	if lastFeature == nil {
		return domain.Day(today).AddDate(0, 0, -s.FeatureFirstRunDays)
	}
	return domain.Day(*lastFeature).AddDate(0, 0, -s.FeatureBufferDays)
}

// NewerThan reports whether date is strictly after the last persisted date
func NewerThan(date time.Time, last *time.Time) bool {
	if last == nil {
		return true
	}
	return domain.Day(date).After(domain.Day(*last))
}
