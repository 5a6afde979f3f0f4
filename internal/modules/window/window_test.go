package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func ptr(t time.Time) *time.Time { return &t }

func TestSelector_SignalStart(t *testing.T) {
	s := NewSelector(1500, 400, 180, 1825)
	today := day("2024-06-01")

	tests := []struct {
		name       string
		lastSignal *time.Time
		want       time.Time
	}{
		{"no prior signal uses full training window", nil, day("2020-04-23")},
		{"training window reaches further back than buffer", ptr(day("2024-01-01")), day("2020-04-23")},
		{"old signal reaches further back than training window", ptr(day("2019-01-01")), day("2017-11-27")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.SignalStart(tt.lastSignal, today))
		})
	}
}

func TestSelector_SignalStartIsMinOfBothBounds(t *testing.T) {
	s := NewSelector(1500, 400, 180, 1825)
	today := day("2024-06-01")
	last := day("2024-01-01")

	buffered := last.AddDate(0, 0, -400)
	long := today.AddDate(0, 0, -1500)
	assert.Equal(t, day("2022-11-27"), buffered)

	got := s.SignalStart(&last, today)
	assert.Equal(t, long, got)
	assert.False(t, got.After(buffered))
}

func TestSelector_IgnoresTimeOfDay(t *testing.T) {
	s := NewSelector(10, 5, 3, 20)
	today := time.Date(2024, 6, 1, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, day("2024-05-22"), s.SignalStart(nil, today))
}

func TestSelector_FeatureStart(t *testing.T) {
	s := NewSelector(1500, 400, 180, 1825)
	today := day("2024-06-01")

	assert.Equal(t, day("2019-06-03"), s.FeatureStart(nil, today))
	assert.Equal(t, day("2023-11-23"), s.FeatureStart(ptr(day("2024-05-21")), today))
}

func TestNewerThan(t *testing.T) {
	last := day("2024-03-01")
	assert.True(t, NewerThan(day("2024-03-02"), &last))
	assert.False(t, NewerThan(day("2024-03-01"), &last))
	assert.False(t, NewerThan(day("2024-02-28"), &last))
	assert.True(t, NewerThan(day("1999-01-01"), nil))
}
