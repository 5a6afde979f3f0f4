package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/aristath/sentinel-signals/internal/config"
	"github.com/aristath/sentinel-signals/internal/delivery"
	"github.com/aristath/sentinel-signals/internal/metrics"
	"github.com/aristath/sentinel-signals/internal/modelstore"
	"github.com/aristath/sentinel-signals/internal/modules/anomaly"
	"github.com/aristath/sentinel-signals/internal/modules/signals"
	"github.com/aristath/sentinel-signals/internal/work"
)

// InitializeServices builds the model store, scorer, pipeline, runner and producer
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	store, err := newModelStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	container.ModelStore = store

	tmpDir := filepath.Join(cfg.DataDir, "tmp")
	if err := os.MkdirAll(tmpDir, 0755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	container.Artifacts = anomaly.NewArtifactRepository(store, cfg.ModelPrefix, tmpDir, log)
	container.Scorer = anomaly.NewScorer(anomaly.NewIsolationForest(cfg.Forest()), container.Artifacts, cfg.MinTrainRows, log)

	container.Registry = prometheus.NewRegistry()
	container.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	container.Metrics = metrics.New(container.Registry)

	container.Service = signals.NewService(container.Store, container.Scorer, cfg.Pipeline(), log)
	container.Service.SetObserver(container.Metrics)

	container.Runner = work.NewRunner(container.Service, cfg.Workers, cfg.RunLimit, log)
	container.Runner.SetRecorder(container.Metrics)

	if cfg.Kafka.Enabled() {
		producer, err := delivery.NewProducer(container.Service, log,
			delivery.WithBrokers(cfg.Kafka.Brokers),
			delivery.WithTopic(cfg.Kafka.Topic),
			delivery.WithLimit(cfg.RunLimit),
		)
		if err != nil {
			return fmt.Errorf("failed to create kafka producer: %w", err)
		}
		container.Producer = producer
	}

	log.Info().
		Str("model_store", cfg.ModelStore).
		Int("workers", container.Runner.Workers()).
		Bool("kafka", cfg.Kafka.Enabled()).
		Msg("Services initialized")
	return nil
}

func newModelStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (modelstore.Store, error) {
	if cfg.ModelStore == config.ModelStoreS3 {
		return modelstore.NewS3Store(ctx, modelstore.S3Config{
			Bucket:          cfg.ModelBucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		}, log)
	}
	return modelstore.NewFileStore(cfg.ModelDir(), log)
}

// NewConsumer builds a Kafka consumer that feeds the pipeline
func NewConsumer(container *Container, cfg *config.Config, log zerolog.Logger) (*delivery.Consumer, error) {
	return delivery.NewConsumer(container.Service, log,
		delivery.WithConsumerBrokers(cfg.Kafka.Brokers),
		delivery.WithConsumerTopic(cfg.Kafka.Topic),
		delivery.WithGroupID(cfg.Kafka.GroupID),
	)
}
