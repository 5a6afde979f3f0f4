package work

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/aristath/sentinel-signals/internal/domain"
	"github.com/aristath/sentinel-signals/internal/modules/signals"
)

// Processor is the part of signals.Service a run needs
type Processor interface {
	Process(ctx context.Context, symbol string, mode domain.Mode) signals.Result
	Universe(ctx context.Context, limit int) ([]string, error)
	ResetBenchmark()
}

// RunRecorder is notified when a run starts
type RunRecorder interface {
	RecordRun(mode string)
}

// Summary aggregates the results of one run
type Summary struct {
	RunID    string                  `json:"run_id"`
	Mode     domain.Mode             `json:"mode"`
	Started  time.Time               `json:"started_at"`
	Duration time.Duration           `json:"duration_ns"`
	Total    int                     `json:"total"`
	OK       int                     `json:"ok"`
	Failed   int                     `json:"failed"`
	Rows     int                     `json:"rows"`
	Outcomes map[signals.Outcome]int `json:"outcomes"`
	Failures []signals.Result        `json:"failures,omitempty"`
}

func (s *Summary) add(r signals.Result) {
	s.Total++
	s.Outcomes[r.Outcome]++
	s.Rows += r.Features + r.Signals
	if r.OK() {
		s.OK++
		return
	}
	s.Failed++
	s.Failures = append(s.Failures, r)
}

// Runner processes the universe on a bounded pool
type Runner struct {
	proc     Processor
	workers  int
	limit    int
	recorder RunRecorder
	log      zerolog.Logger
}

// NewRunner creates a runner. workers <= 0 sizes the pool to the logical core count;
// limit <= 0 processes the whole universe.
func NewRunner(proc Processor, workers, limit int, log zerolog.Logger) *Runner {
	return &Runner{
		proc:    proc,
		workers: PoolSize(workers),
		limit:   limit,
		log:     log.With().Str("component", "runner").Logger(),
	}
}

// SetRecorder registers a recorder for run starts
func (r *Runner) SetRecorder(rec RunRecorder) {
	r.recorder = rec
}

// Workers returns the pool size
func (r *Runner) Workers() int {
	return r.workers
}

// Run processes every instrument in the universe. The error is non-nil only when the
// universe cannot be listed; per-instrument failures are reported in the Summary.
func (r *Runner) Run(ctx context.Context, mode domain.Mode) (Summary, error) {
	r.proc.ResetBenchmark()

	symbols, err := r.proc.Universe(ctx, r.limit)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to list universe: %w", err)
	}
	return r.RunSymbols(ctx, mode, symbols), nil
}

// Dispatch runs mode in-process. It fails when the universe cannot be listed or
// when any instrument failed.
func (r *Runner) Dispatch(ctx context.Context, mode domain.Mode) error {
	summary, err := r.Run(ctx, mode)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		return fmt.Errorf("%d of %d instruments failed in run %s", summary.Failed, summary.Total, summary.RunID)
	}
	return nil
}

// RunSymbols processes the given symbols. Symbols not yet started when ctx is
// cancelled are recorded as failed with the context error.
func (r *Runner) RunSymbols(ctx context.Context, mode domain.Mode, symbols []string) Summary {
	summary := Summary{
		RunID:    uuid.NewString(),
		Mode:     mode,
		Started:  time.Now(),
		Outcomes: make(map[signals.Outcome]int),
	}
	if r.recorder != nil {
		r.recorder.RecordRun(string(mode))
	}

	log := r.log.With().Str("run_id", summary.RunID).Str("mode", string(mode)).Logger()
	log.Info().Int("instruments", len(symbols)).Int("workers", r.workers).Msg("Run started")

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.workers)

	for _, symbol := range symbols {
		symbol := symbol
		g.Go(func() error {
			var res signals.Result
			if err := ctx.Err(); err != nil {
				res = signals.Result{Symbol: domain.NormalizeSymbol(symbol), Mode: mode, Outcome: signals.OutcomeFailed, Err: err}
			} else {
				res = r.proc.Process(ctx, symbol, mode)
			}

			if res.OK() {
				log.Info().Str("symbol", res.Symbol).Str("outcome", string(res.Outcome)).
					Msgf("[OK] %s features=%d signals=%d", res.Symbol, res.Features, res.Signals)
			} else {
				log.Error().Err(res.Err).Str("symbol", res.Symbol).Msgf("[FAIL] %s", res.Symbol)
			}

			mu.Lock()
			summary.add(res)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(summary.Failures, func(i, j int) bool {
		return summary.Failures[i].Symbol < summary.Failures[j].Symbol
	})
	summary.Duration = time.Since(summary.Started)

	log.Info().
		Int("ok", summary.OK).
		Int("failed", summary.Failed).
		Int("rows", summary.Rows).
		Dur("duration", summary.Duration).
		Msg("Run finished")
	return summary
}
