package domain

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"frequent", ModeFrequent, false},
		{"DAILY", ModeFrequent, false},
		{"", ModeFrequent, false},
		{"periodic", ModePeriodic, false},
		{" monthly ", ModePeriodic, false},
		{"weekly", ModeFrequent, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnknownMode)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDay(t *testing.T) {
	in := time.Date(2024, 3, 1, 18, 45, 0, 0, time.FixedZone("EST", -5*3600))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), Day(in))

	d, err := ParseDay("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, Day(in), d)

	_, err = ParseDay("03/01/2024")
	assert.Error(t, err)
}

func TestFeatureRow_VectorFollowsSchemaOrder(t *testing.T) {
	row := FeatureRow{
		LogReturn1D: 1, LogReturn7D: 2, LogReturn14D: 3, Vol14D: 4, Vol30D: 5,
		Drawdown30D: 6, RSI14: 7, VolumeZ30D: 8, Corr60D: 9, Beta60D: 10,
	}

	vec, err := row.Vector(FeatureNames)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, vec)

	_, err = row.Vector([]string{"unknown"})
	assert.Error(t, err)
}

func TestFeatureRow_Valid(t *testing.T) {
	row := FeatureRow{RSI14: 50}
	assert.True(t, row.Valid())

	row.Beta60D = math.Inf(1)
	assert.False(t, row.Valid())

	row.Beta60D = math.NaN()
	assert.False(t, row.Valid())
}

func TestSignalRow_PayloadNeverNil(t *testing.T) {
	row := SignalRow{Symbol: "AAPL"}
	assert.NotNil(t, row.Payload().TopDrivers)
	assert.Empty(t, row.Payload().TopDrivers)
}

func TestNormalizeSymbol(t *testing.T) {
	assert.Equal(t, "AAPL", NormalizeSymbol(" aapl "))
}
