package di

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-signals/internal/config"
	"github.com/aristath/sentinel-signals/internal/database"
	"github.com/aristath/sentinel-signals/internal/domain"
	"github.com/aristath/sentinel-signals/internal/scheduler"
)

// JobInstances holds the scheduled jobs for manual triggering
type JobInstances struct {
	Frequent *scheduler.SignalRunJob
	Periodic *scheduler.SignalRunJob
	// WALCheck is nil when the store is not SQLite
	WALCheck *scheduler.CheckWALCheckpointsJob
}

// Dispatcher picks Kafka fan-out when configured, the in-process runner otherwise
func (c *Container) Dispatcher() scheduler.Dispatcher {
	if c.Producer != nil {
		return c.Producer
	}
	return c.Runner
}

// RegisterJobs creates the jobs and adds them to sched. Runs are cancelled with ctx.
func RegisterJobs(ctx context.Context, sched *scheduler.Scheduler, container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	dispatcher := container.Dispatcher()
	jobs := &JobInstances{
		Frequent: scheduler.NewSignalRunJob(domain.ModeFrequent, dispatcher, cfg.RunTimeout),
		Periodic: scheduler.NewSignalRunJob(domain.ModePeriodic, dispatcher, cfg.RunTimeout),
	}
	for _, job := range []*scheduler.SignalRunJob{jobs.Frequent, jobs.Periodic} {
		job.SetLogger(log)
		job.SetContext(ctx)
	}

	if err := sched.AddJob(cfg.DailySchedule, jobs.Frequent); err != nil {
		return nil, err
	}
	if err := sched.AddJob(cfg.MonthlySchedule, jobs.Periodic); err != nil {
		return nil, err
	}

	if container.SQLiteDB != nil {
		jobs.WALCheck = scheduler.NewCheckWALCheckpointsJob(map[string]*database.DB{
			"signals": container.SQLiteDB,
		})
		jobs.WALCheck.SetLogger(log.With().Str("job", "check_wal_checkpoints").Logger())
		if err := sched.AddJob("0 0 * * * *", jobs.WALCheck); err != nil {
			return nil, err
		}
	}

	return jobs, nil
}

// Job returns the run job for mode
func (j *JobInstances) Job(mode domain.Mode) *scheduler.SignalRunJob {
	if mode == domain.ModePeriodic {
		return j.Periodic
	}
	return j.Frequent
}
