// Package logger builds the structured zerolog logger shared by every component.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration
type Config struct {
	Level   string // trace, debug, info, warn, error; anything else is info
	Pretty  bool   // human-readable console output instead of JSON
	Service string // added as "service" when set
	Version string // added as "version" when set
}

// New creates a logger writing to stdout
func New(cfg Config) zerolog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a logger writing to out and sets the global level
func NewWithWriter(cfg Config, out io.Writer) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.DurationFieldUnit = time.Millisecond

	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(out).With().Timestamp().Caller()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	if cfg.Version != "" {
		ctx = ctx.Str("version", cfg.Version)
	}
	return ctx.Logger()
}

// ParseLevel maps a configured level name to a zerolog level, defaulting to info
func ParseLevel(s string) zerolog.Level {
	switch lvl, err := zerolog.ParseLevel(strings.TrimSpace(s)); {
	case err != nil, lvl == zerolog.NoLevel, lvl > zerolog.ErrorLevel, lvl < zerolog.TraceLevel:
		return zerolog.InfoLevel
	default:
		return lvl
	}
}

// SetGlobalLogger installs l as the package-level logger and as the
// fallback for zerolog.Ctx on contexts without a logger.
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
	zerolog.DefaultContextLogger = &l
}
