// Package domain provides core domain models and types.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the storage and wire layout for trading dates
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDay parses a YYYY-MM-DD date into midnight UTC
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return t, nil
}

// NormalizeSymbol upper-cases and trims an instrument symbol
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// ErrUnknownMode is returned for run modes other than frequent/periodic and their aliases
var ErrUnknownMode = errors.New("unknown mode")

// Mode selects whether a run refits the anomaly model
type Mode string

const (
	// ModeFrequent scores with the most recently persisted model (daily cadence)
	ModeFrequent Mode = "frequent"
	// ModePeriodic refits and persists the model before scoring (monthly cadence)
	ModePeriodic Mode = "periodic"
)

// ParseMode accepts frequent|periodic and the daily|monthly aliases
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "frequent", "daily", "":
		return ModeFrequent, nil
	case "periodic", "monthly":
		return ModePeriodic, nil
	default:
		return ModeFrequent, fmt.Errorf("%q: %w", s, ErrUnknownMode)
	}
}

// Instrument is a tradable symbol tracked by the system
type Instrument struct {
	ID     int64  `json:"id"`
	Symbol string `json:"symbol"`
}

// PricePoint is one trading day of raw close/volume history
type PricePoint struct {
	Date   time.Time `json:"date"`
	Symbol string    `json:"symbol"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}
