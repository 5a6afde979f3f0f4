// Package scheduler triggers signal runs and maintenance jobs on cron schedules.
package scheduler

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job represents a scheduled job
type Job interface {
	Run() error
	Name() string
}

// JobStatus is the schedule and last outcome of a registered job
type JobStatus struct {
	Name         string    `json:"name"`
	Schedule     string    `json:"schedule"`
	NextRun      time.Time `json:"next_run"`
	LastRun      time.Time `json:"last_run"`
	LastDuration string    `json:"last_duration,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	Runs         int       `json:"runs"`
	Failures     int       `json:"failures"`
}

type registered struct {
	id     cron.EntryID
	job    Job
	status JobStatus
}

// Scheduler runs jobs on six-field cron schedules (seconds first) and keeps
// a status record per job.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger

	mu   sync.Mutex
	jobs []*registered
}

// New creates a scheduler. A panicking job is logged and does not stop the cron loop.
func New(log zerolog.Logger) *Scheduler {
	l := log.With().Str("component", "scheduler").Logger()
	cl := cronLogger{log: l}
	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl)),
		),
		log: l,
	}
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", s.Entries()).Msg("Scheduler started")
}

// Stop stops the scheduler and waits for running jobs
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers job under schedule, e.g. "0 30 22 * * MON-FRI" or "@every 1h"
func (s *Scheduler) AddJob(schedule string, job Job) error {
	r := &registered{job: job, status: JobStatus{Name: job.Name(), Schedule: schedule}}
	id, err := s.cron.AddFunc(schedule, func() {
		_ = s.run(r)
	})
	if err != nil {
		return err
	}
	r.id = id

	s.mu.Lock()
	s.jobs = append(s.jobs, r)
	s.mu.Unlock()

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")
	return nil
}

// Entries returns the number of registered jobs
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// Jobs returns the status of every registered job in registration order
func (s *Scheduler) Jobs() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, r := range s.jobs {
		st := r.status
		st.NextRun = s.cron.Entry(r.id).Next
		out = append(out, st)
	}
	return out
}

// RunNow executes a job immediately. Registered jobs record the run in their status.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	if r := s.lookup(job); r != nil {
		return s.run(r)
	}
	return job.Run()
}

func (s *Scheduler) lookup(job Job) *registered {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.jobs {
		if r.job == job {
			return r
		}
	}
	return nil
}

func (s *Scheduler) run(r *registered) error {
	name := r.job.Name()
	s.log.Debug().Str("job", name).Msg("Running job")

	started := time.Now()
	err := r.job.Run()
	elapsed := time.Since(started)

	s.mu.Lock()
	r.status.Runs++
	r.status.LastRun = started.UTC()
	r.status.LastDuration = elapsed.Round(time.Millisecond).String()
	r.status.LastError = ""
	if err != nil {
		r.status.Failures++
		r.status.LastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error().Err(err).Str("job", name).Dur("duration", elapsed).Msg("Job failed")
		return err
	}
	s.log.Debug().Str("job", name).Dur("duration", elapsed).Msg("Job completed")
	return nil
}

// cronLogger routes cron's internal logging into zerolog. Its wake-up chatter goes to debug.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
