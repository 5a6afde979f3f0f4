// Package delivery fans instrument runs out over Kafka and consumes them in workers.
package delivery

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/aristath/sentinel-signals/internal/domain"
)

// DefaultTopic is used when no topic is configured
const DefaultTopic = "signals.instruments"

var (
	// ErrEmptySymbol is returned for messages without a symbol
	ErrEmptySymbol = errors.New("message has no symbol")
	// ErrMalformed marks messages that can never be processed, whatever their retry count
	ErrMalformed = errors.New("malformed message")
)

// Message asks a worker to process one instrument
type Message struct {
	Symbol string `json:"symbol"`
	Mode   string `json:"mode"`
	RunID  string `json:"run_id,omitempty"`
}

// Encode builds the Kafka message for one instrument, keyed by symbol so that
// runs for the same instrument land on one partition.
func Encode(symbol string, mode domain.Mode, runID string) (kafka.Message, error) {
	symbol = domain.NormalizeSymbol(symbol)
	if symbol == "" {
		return kafka.Message{}, ErrEmptySymbol
	}
	value, err := json.Marshal(Message{Symbol: symbol, Mode: string(mode), RunID: runID})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal message: %w", err)
	}
	return kafka.Message{
		Key:   []byte(symbol),
		Value: value,
		Time:  time.Now(),
	}, nil
}

// Decode parses a message value. Unknown modes fall back to frequent with a warning.
func Decode(value []byte, log zerolog.Logger) (Message, domain.Mode, error) {
	var msg Message
	if err := json.Unmarshal(value, &msg); err != nil {
		return Message{}, "", fmt.Errorf("unmarshal message: %w", err)
	}
	msg.Symbol = domain.NormalizeSymbol(msg.Symbol)
	if msg.Symbol == "" {
		return Message{}, "", ErrEmptySymbol
	}
	return msg, resolveMode(msg.Mode, log), nil
}

func resolveMode(raw string, log zerolog.Logger) domain.Mode {
	mode, err := domain.ParseMode(raw)
	if err != nil {
		log.Warn().Str("mode", raw).Msg("Unknown mode, falling back to frequent")
		return domain.ModeFrequent
	}
	return mode
}
