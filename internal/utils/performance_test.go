package utils

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestOperationTimer(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf).Level(zerolog.DebugLevel)

	done := OperationTimer("fit_forest", 0, log)
	d := done()
	assert.GreaterOrEqual(t, d, time.Duration(0))
	assert.Contains(t, buf.String(), `"operation":"fit_forest"`)
	assert.Contains(t, buf.String(), "Operation completed")

	buf.Reset()
	slow := OperationTimer("upload", time.Nanosecond, log)
	time.Sleep(time.Millisecond)
	slow()
	assert.Contains(t, buf.String(), "Slow operation detected")
	assert.Contains(t, buf.String(), `"level":"warn"`)
}
