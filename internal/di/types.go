// Package di provides dependency injection wiring and initialization.
package di

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aristath/sentinel-signals/internal/database"
	"github.com/aristath/sentinel-signals/internal/delivery"
	"github.com/aristath/sentinel-signals/internal/metrics"
	"github.com/aristath/sentinel-signals/internal/modelstore"
	"github.com/aristath/sentinel-signals/internal/modules/anomaly"
	"github.com/aristath/sentinel-signals/internal/modules/signals"
	"github.com/aristath/sentinel-signals/internal/storage/postgres"
	"github.com/aristath/sentinel-signals/internal/work"
)

// Container holds every long-lived dependency of the service
type Container struct {
	// Exactly one of SQLiteDB and PostgresPool is set
	SQLiteDB     *database.DB
	PostgresPool *postgres.Pool

	Store      signals.Store
	ModelStore modelstore.Store
	Artifacts  anomaly.Repository
	Scorer     *anomaly.Scorer
	Service    *signals.Service
	Runner     *work.Runner

	Registry *prometheus.Registry
	Metrics  *metrics.Recorder

	// Producer is nil when Kafka is not configured
	Producer *delivery.Producer
}

// HealthCheck pings the active store
func (c *Container) HealthCheck(ctx context.Context) error {
	switch {
	case c.SQLiteDB != nil:
		return c.SQLiteDB.HealthCheck(ctx)
	case c.PostgresPool != nil:
		return c.PostgresPool.Ping(ctx)
	default:
		return errors.New("no store configured")
	}
}

// Close releases the producer and the store
func (c *Container) Close() error {
	var errs []error
	if c.Producer != nil {
		errs = append(errs, c.Producer.Close())
	}
	if c.SQLiteDB != nil {
		errs = append(errs, c.SQLiteDB.Close())
	}
	if c.PostgresPool != nil {
		c.PostgresPool.Close()
	}
	return errors.Join(errs...)
}
