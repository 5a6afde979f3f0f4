package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-signals/internal/domain"
)

// ErrRunInProgress is returned when a run of the same job is still going
var ErrRunInProgress = errors.New("previous run still in progress")

// Dispatcher starts a run of mode, either in-process or by publishing to workers
type Dispatcher interface {
	Dispatch(ctx context.Context, mode domain.Mode) error
}

// SignalRunJob dispatches one run of the pipeline
type SignalRunJob struct {
	mode       domain.Mode
	dispatcher Dispatcher
	timeout    time.Duration
	parent     context.Context
	running    atomic.Bool
	log        zerolog.Logger
}

// NewSignalRunJob creates a job for mode. timeout <= 0 means no deadline.
func NewSignalRunJob(mode domain.Mode, dispatcher Dispatcher, timeout time.Duration) *SignalRunJob {
	return &SignalRunJob{
		mode:       mode,
		dispatcher: dispatcher,
		timeout:    timeout,
		parent:     context.Background(),
		log:        zerolog.Nop(),
	}
}

// SetContext sets the context runs derive from; cancelling it aborts a run
func (j *SignalRunJob) SetContext(ctx context.Context) {
	j.parent = ctx
}

// SetLogger sets the logger for the job
func (j *SignalRunJob) SetLogger(log zerolog.Logger) {
	j.log = log.With().Str("job", j.Name()).Logger()
}

// Name returns the job name
func (j *SignalRunJob) Name() string {
	return "signals_" + string(j.mode)
}

// Run dispatches the run. Overlapping invocations are rejected.
func (j *SignalRunJob) Run() error {
	if !j.running.CompareAndSwap(false, true) {
		j.log.Warn().Msg("Skipping run, previous run still in progress")
		return ErrRunInProgress
	}
	defer j.running.Store(false)

	ctx := j.parent
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	started := time.Now()
	if err := j.dispatcher.Dispatch(ctx, j.mode); err != nil {
		return err
	}
	j.log.Info().Dur("duration", time.Since(started)).Msg("Signal run dispatched")
	return nil
}
