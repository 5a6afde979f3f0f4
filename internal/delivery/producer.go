package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/aristath/sentinel-signals/internal/domain"
)

// MessageWriter is the subset of *kafka.Writer the producer uses
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// UniverseLister lists the instruments to fan out
type UniverseLister interface {
	Universe(ctx context.Context, limit int) ([]string, error)
}

// ProducerOption configures Producer
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	Limit        int
	BatchSize    int
	WriteTimeout time.Duration
	Writer       MessageWriter
}

// WithBrokers sets Kafka brokers
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Brokers = brokers
	}
}

// WithTopic sets the topic messages are published to
func WithTopic(topic string) ProducerOption {
	return func(c *ProducerConfig) {
		if topic != "" {
			c.Topic = topic
		}
	}
}

// WithLimit caps the number of instruments published per run
func WithLimit(limit int) ProducerOption {
	return func(c *ProducerConfig) {
		c.Limit = limit
	}
}

// WithBatchSize sets how many messages go into one write
func WithBatchSize(n int) ProducerOption {
	return func(c *ProducerConfig) {
		if n > 0 {
			c.BatchSize = n
		}
	}
}

// WithWriter replaces the Kafka writer, mainly for tests
func WithWriter(w MessageWriter) ProducerOption {
	return func(c *ProducerConfig) {
		c.Writer = w
	}
}

// Producer publishes one message per instrument in the universe
type Producer struct {
	cfg      *ProducerConfig
	writer   MessageWriter
	universe UniverseLister
	log      zerolog.Logger
}

// NewProducer creates a producer
func NewProducer(universe UniverseLister, log zerolog.Logger, opts ...ProducerOption) (*Producer, error) {
	cfg := &ProducerConfig{
		Topic:        DefaultTopic,
		BatchSize:    100,
		WriteTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	writer := cfg.Writer
	if writer == nil {
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("brokers are required")
		}
		writer = &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			WriteTimeout: cfg.WriteTimeout,
			BatchSize:    cfg.BatchSize,
		}
	}

	return &Producer{
		cfg:      cfg,
		writer:   writer,
		universe: universe,
		log:      log.With().Str("component", "kafka_producer").Str("topic", cfg.Topic).Logger(),
	}, nil
}

// Dispatch publishes a run of mode over the whole universe
func (p *Producer) Dispatch(ctx context.Context, mode domain.Mode) error {
	_, _, err := p.Publish(ctx, mode)
	return err
}

// Publish lists the universe and writes one message per instrument in batches.
// It returns the run id and the number of messages written.
func (p *Producer) Publish(ctx context.Context, mode domain.Mode) (string, int, error) {
	symbols, err := p.universe.Universe(ctx, p.cfg.Limit)
	if err != nil {
		return "", 0, fmt.Errorf("failed to list universe: %w", err)
	}
	runID := uuid.NewString()
	log := p.log.With().Str("run_id", runID).Str("mode", string(mode)).Logger()

	batch := make([]kafka.Message, 0, p.cfg.BatchSize)
	sent := 0
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := p.writer.WriteMessages(ctx, batch...); err != nil {
			return fmt.Errorf("failed to publish batch after %d messages: %w", sent, err)
		}
		sent += len(batch)
		batch = batch[:0]
		return nil
	}

	for _, symbol := range symbols {
		msg, err := Encode(symbol, mode, runID)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Skipping instrument")
			continue
		}
		batch = append(batch, msg)
		if len(batch) >= p.cfg.BatchSize {
			if err := flush(); err != nil {
				return runID, sent, err
			}
		}
	}
	if err := flush(); err != nil {
		return runID, sent, err
	}

	log.Info().Int("messages", sent).Msg("Run published")
	return runID, sent, nil
}

// Close closes the writer
func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
