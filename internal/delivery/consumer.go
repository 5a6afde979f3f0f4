package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/aristath/sentinel-signals/internal/domain"
	"github.com/aristath/sentinel-signals/internal/modules/anomaly"
	"github.com/aristath/sentinel-signals/internal/modules/signals"
)

// MessageReader is the subset of *kafka.Reader the consumer uses
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Processor runs the pipeline for one instrument
type Processor interface {
	Process(ctx context.Context, symbol string, mode domain.Mode) signals.Result
}

// ConsumerOption configures Consumer
type ConsumerOption func(*ConsumerConfig)

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
	Reader   MessageReader
}

// WithConsumerBrokers sets Kafka brokers
func WithConsumerBrokers(brokers []string) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Brokers = brokers
	}
}

// WithConsumerTopic sets the topic to read
func WithConsumerTopic(topic string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if topic != "" {
			c.Topic = topic
		}
	}
}

// WithGroupID sets the consumer group
func WithGroupID(groupID string) ConsumerOption {
	return func(c *ConsumerConfig) {
		if groupID != "" {
			c.GroupID = groupID
		}
	}
}

// WithReader replaces the Kafka reader, mainly for tests
func WithReader(r MessageReader) ConsumerOption {
	return func(c *ConsumerConfig) {
		c.Reader = r
	}
}

// Consumer reads instrument messages and runs the pipeline for each
type Consumer struct {
	cfg    *ConsumerConfig
	reader MessageReader
	proc   Processor
	log    zerolog.Logger
}

// NewConsumer creates a consumer
func NewConsumer(proc Processor, log zerolog.Logger, opts ...ConsumerOption) (*Consumer, error) {
	cfg := &ConsumerConfig{
		Topic:    DefaultTopic,
		GroupID:  "sentinel-signals",
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	reader := cfg.Reader
	if reader == nil {
		if len(cfg.Brokers) == 0 {
			return nil, fmt.Errorf("brokers are required")
		}
		reader = kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		})
	}

	return &Consumer{
		cfg:    cfg,
		reader: reader,
		proc:   proc,
		log:    log.With().Str("component", "kafka_consumer").Str("topic", cfg.Topic).Logger(),
	}, nil
}

// Run consumes until ctx is cancelled. Successful, undecodable and permanently failing
// messages are committed. Any other failure returns without committing so the group
// redelivers the message after a restart; upserts make the replay safe.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().Str("group_id", c.cfg.GroupID).Msg("Consumer started")
	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.log.Info().Msg("Consumer stopped")
				return nil
			}
			return fmt.Errorf("failed to fetch message: %w", err)
		}

		res := c.Handle(ctx, km)
		if ctx.Err() != nil {
			c.log.Info().Int64("offset", km.Offset).Msg("Consumer stopped before commit")
			return nil
		}
		if Retryable(res) {
			return fmt.Errorf("%s at offset %d left uncommitted for redelivery: %w", res.Symbol, km.Offset, res.Err)
		}

		if err := c.commit(ctx, km); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.log.Error().Err(err).Int64("offset", km.Offset).Msg("Failed to commit offset")
		}
	}
}

// Handle processes one Kafka message and returns the pipeline result.
// Undecodable messages yield a failed result without touching the pipeline.
func (c *Consumer) Handle(ctx context.Context, km kafka.Message) signals.Result {
	msg, mode, err := Decode(km.Value, c.log)
	if err != nil {
		c.log.Error().Err(err).Int("partition", km.Partition).Int64("offset", km.Offset).Msg("Dropping undecodable message")
		return signals.Result{Outcome: signals.OutcomeFailed, Err: fmt.Errorf("%w: %w", ErrMalformed, err)}
	}

	res := c.proc.Process(ctx, msg.Symbol, mode)
	event := c.log.Info()
	if !res.OK() {
		event = c.log.Error().Err(res.Err)
	}
	event.Str("run_id", msg.RunID).
		Str("symbol", res.Symbol).
		Str("outcome", string(res.Outcome)).
		Msg("Message handled")
	return res
}

// Retryable reports whether a failed result may succeed on redelivery.
// Malformed messages and schema mismatches fail the same way every time.
func Retryable(res signals.Result) bool {
	if res.Err == nil {
		return false
	}
	return !errors.Is(res.Err, ErrMalformed) && !errors.Is(res.Err, anomaly.ErrSchemaMismatch)
}

func (c *Consumer) commit(ctx context.Context, km kafka.Message) error {
	var err error
	for attempt := 1; attempt <= 3; attempt++ {
		err = c.reader.CommitMessages(ctx, km)
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
		}
	}
	return err
}

// Close closes the reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
