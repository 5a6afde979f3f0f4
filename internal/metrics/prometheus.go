// Package metrics records pipeline outcomes in Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/aristath/sentinel-signals/internal/modules/signals"
)

// Recorder implements signals.Observer using Prometheus.
type Recorder struct {
	instruments *prometheus.CounterVec
	rowsWritten *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	runs        *prometheus.CounterVec
}

// New creates a recorder registered on reg; pass prometheus.DefaultRegisterer in production.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		instruments: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signals_instruments_total",
				Help: "Instruments processed, by mode and outcome",
			},
			[]string{"mode", "outcome"},
		),
		rowsWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signals_rows_written_total",
				Help: "Rows upserted, by kind (features or signals)",
			},
			[]string{"kind"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "signals_process_duration_seconds",
				Help:    "Duration of one instrument run in seconds",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
			[]string{"mode"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signals_batch_runs_total",
				Help: "Batch runs over the universe, by mode",
			},
			[]string{"mode"},
		),
	}
}

// ObserveResult records one finished instrument run.
func (r *Recorder) ObserveResult(res signals.Result) {
	mode := string(res.Mode)
	r.instruments.WithLabelValues(mode, string(res.Outcome)).Inc()
	r.rowsWritten.WithLabelValues("features").Add(float64(res.Features))
	r.rowsWritten.WithLabelValues("signals").Add(float64(res.Signals))
	r.duration.WithLabelValues(mode).Observe(res.Duration.Seconds())
}

// RecordRun records the start of a batch run.
func (r *Recorder) RecordRun(mode string) {
	r.runs.WithLabelValues(mode).Inc()
}
