// Package main is the entry point for the signal service.
//
// The binary runs in one of three ways:
//   - default: HTTP API plus the cron scheduler that triggers daily and monthly runs
//   - JOB=daily|monthly: a single run of that mode, then exit
//   - "consume" argument: a Kafka worker that processes one instrument per message
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-signals/internal/config"
	"github.com/aristath/sentinel-signals/internal/di"
	"github.com/aristath/sentinel-signals/internal/domain"
	"github.com/aristath/sentinel-signals/internal/scheduler"
	"github.com/aristath/sentinel-signals/internal/server"
	"github.com/aristath/sentinel-signals/pkg/logger"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:   cfg.LogLevel,
		Pretty:  cfg.LogPretty,
		Service: "sentinel-signals",
		Version: version,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("store", cfg.StoreDriver).Msg("Starting sentinel-signals")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer func() {
		if err := container.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close resources")
		}
	}()

	switch {
	case len(os.Args) > 1 && os.Args[1] == "consume":
		err = runConsumer(ctx, container, cfg, log)
	case cfg.Job != "":
		err = runOnce(ctx, container, cfg, log)
	default:
		err = serve(ctx, container, cfg, log)
	}
	if err != nil {
		log.Error().Err(err).Msg("Exiting with error")
		stop()
		_ = container.Close()
		os.Exit(1)
	}
}

// runOnce dispatches a single run of the JOB mode
func runOnce(ctx context.Context, container *di.Container, cfg *config.Config, log zerolog.Logger) error {
	mode, err := domain.ParseMode(cfg.Job)
	if err != nil {
		return err
	}

	job := scheduler.NewSignalRunJob(mode, container.Dispatcher(), cfg.RunTimeout)
	job.SetLogger(log)
	job.SetContext(ctx)

	return scheduler.New(log).RunNow(job)
}

// runConsumer processes Kafka messages until the context is cancelled
func runConsumer(ctx context.Context, container *di.Container, cfg *config.Config, log zerolog.Logger) error {
	if !cfg.Kafka.Enabled() {
		return errors.New("KAFKA_BROKERS is required to consume")
	}
	consumer, err := di.NewConsumer(container, cfg, log)
	if err != nil {
		return err
	}
	defer consumer.Close()

	return consumer.Run(ctx)
}

// serve runs the HTTP API and the scheduler until the context is cancelled
func serve(ctx context.Context, container *di.Container, cfg *config.Config, log zerolog.Logger) error {
	sched := scheduler.New(log)
	if _, err := di.RegisterJobs(ctx, sched, container, cfg, log); err != nil {
		return err
	}

	srv := server.New(server.Config{
		Log:         log,
		Service:     container.Service,
		Runner:      container.Runner,
		Jobs:        sched,
		HealthCheck: container.HealthCheck,
		Metrics:     promhttp.HandlerFor(container.Registry, promhttp.HandlerOpts{}),
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		Version:     version,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	sched.Start()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down server...")
	case runErr = <-errCh:
		log.Error().Err(runErr).Msg("HTTP server failed")
	}

	// ctx is done here, so in-flight scheduled runs are winding down
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
	return runErr
}
