// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/aristath/sentinel-signals/internal/domain"
	"github.com/aristath/sentinel-signals/internal/modules/anomaly"
	"github.com/aristath/sentinel-signals/internal/modules/signals"
	"github.com/aristath/sentinel-signals/internal/utils"
)

// Store drivers
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Model store backends
const (
	ModelStoreFile = "file"
	ModelStoreS3   = "s3"
)

// Config holds application configuration
type Config struct {
	DataDir   string // Base directory for the SQLite store and local models (always absolute)
	LogLevel  string
	LogPretty bool
	Port      int
	DevMode   bool

	StoreDriver string
	DatabaseURL string

	ModelStore  string
	ModelBucket string
	ModelPrefix string
	S3          S3Config

	BenchmarkSymbol     string
	TrainingWindowDays  int
	BufferDays          int
	FeatureBufferDays   int
	FeatureFirstRunDays int
	DriverLookback      int
	MinTrainRows        int
	BenchmarkMaxAge     time.Duration

	ForestTrees      int
	ForestMaxSamples int
	ForestSeed       int64

	RunLimit   int
	Workers    int
	RunTimeout time.Duration

	Kafka KafkaConfig

	DailySchedule   string
	MonthlySchedule string
	Job             string
}

// S3Config holds object storage settings for model artifacts
type S3Config struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// KafkaConfig holds fan-out settings. Empty Brokers disables Kafka.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Enabled reports whether brokers are configured
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("SIGNALS_DATA_DIR", "./data")
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	defaults := signals.DefaultSettings()
	cfg := &Config{
		DataDir:   absDataDir,
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogPretty: getEnvAsBool("LOG_PRETTY", false),
		Port:      getEnvAsInt("GO_PORT", 8001),
		DevMode:   getEnvAsBool("DEV_MODE", false),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", StoreSQLite)),
		DatabaseURL: getEnv("DB_URL", ""),

		ModelStore:  strings.ToLower(getEnv("MODEL_STORE", ModelStoreFile)),
		ModelBucket: getEnv("MODEL_BUCKET", ""),
		ModelPrefix: strings.Trim(getEnv("MODEL_PREFIX", "stocks/models"), "/"),
		S3: S3Config{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},

		BenchmarkSymbol:     domain.NormalizeSymbol(getEnv("BENCHMARK_SYMBOL", defaults.BenchmarkSymbol)),
		TrainingWindowDays:  getEnvAsInt("TRAINING_WINDOW_DAYS", defaults.TrainingWindowDays),
		BufferDays:          getEnvAsInt("BUFFER_DAYS", defaults.BufferDays),
		FeatureBufferDays:   getEnvAsInt("FEATURE_BUFFER_DAYS", defaults.FeatureBufferDays),
		FeatureFirstRunDays: getEnvAsInt("FEATURE_FIRST_RUN_DAYS", defaults.FeatureFirstRunDays),
		DriverLookback:      getEnvAsInt("DRIVER_LOOKBACK", defaults.DriverLookback),
		MinTrainRows:        getEnvAsInt("MIN_TRAIN_ROWS", defaults.MinTrainRows),
		BenchmarkMaxAge:     getEnvAsDuration("BENCHMARK_MAX_AGE", defaults.BenchmarkMaxAge),

		ForestTrees:      getEnvAsInt("FOREST_TREES", anomaly.DefaultTrees),
		ForestMaxSamples: getEnvAsInt("FOREST_MAX_SAMPLES", anomaly.DefaultMaxSamples),
		ForestSeed:       int64(getEnvAsInt("FOREST_SEED", anomaly.DefaultSeed)),

		RunLimit:   getEnvAsInt("RUN_LIMIT", 0),
		Workers:    getEnvAsInt("WORKERS", 0),
		RunTimeout: getEnvAsDuration("RUN_TIMEOUT", 6*time.Hour),

		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "signals.instruments"),
			GroupID: getEnv("KAFKA_GROUP_ID", "sentinel-signals"),
		},

		DailySchedule:   getEnv("DAILY_SCHEDULE", "0 30 22 * * MON-FRI"),
		MonthlySchedule: getEnv("MONTHLY_SCHEDULE", "0 0 3 1 * *"),
		Job:             strings.ToLower(getEnv("JOB", "")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present and consistent
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DB_URL is required when STORE_DRIVER=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q (want %s or %s)", c.StoreDriver, StoreSQLite, StorePostgres)
	}

	switch c.ModelStore {
	case ModelStoreFile:
	case ModelStoreS3:
		if c.ModelBucket == "" {
			return fmt.Errorf("MODEL_BUCKET is required when MODEL_STORE=%s", ModelStoreS3)
		}
	default:
		return fmt.Errorf("unsupported MODEL_STORE %q (want %s or %s)", c.ModelStore, ModelStoreFile, ModelStoreS3)
	}

	if c.BenchmarkSymbol == "" {
		return fmt.Errorf("BENCHMARK_SYMBOL must not be empty")
	}
	positive := map[string]int{
		"TRAINING_WINDOW_DAYS":   c.TrainingWindowDays,
		"FEATURE_FIRST_RUN_DAYS": c.FeatureFirstRunDays,
		"DRIVER_LOOKBACK":        c.DriverLookback,
		"MIN_TRAIN_ROWS":         c.MinTrainRows,
		"FOREST_TREES":           c.ForestTrees,
		"FOREST_MAX_SAMPLES":     c.ForestMaxSamples,
	}
	for key, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", key, v)
		}
	}
	if c.BufferDays < 0 || c.FeatureBufferDays < 0 {
		return fmt.Errorf("BUFFER_DAYS and FEATURE_BUFFER_DAYS must not be negative")
	}

	if c.Job != "" {
		if _, err := domain.ParseMode(c.Job); err != nil {
			return fmt.Errorf("invalid JOB: %w", err)
		}
	}

	return nil
}

// Pipeline projects the configuration into pipeline settings
func (c *Config) Pipeline() signals.Settings {
	return signals.Settings{
		BenchmarkSymbol:     c.BenchmarkSymbol,
		TrainingWindowDays:  c.TrainingWindowDays,
		BufferDays:          c.BufferDays,
		FeatureBufferDays:   c.FeatureBufferDays,
		FeatureFirstRunDays: c.FeatureFirstRunDays,
		DriverLookback:      c.DriverLookback,
		MinTrainRows:        c.MinTrainRows,
		BenchmarkMaxAge:     c.BenchmarkMaxAge,
	}
}

// Forest projects the configuration into isolation forest settings
func (c *Config) Forest() anomaly.ForestConfig {
	return anomaly.ForestConfig{
		Trees:         c.ForestTrees,
		MaxSamples:    c.ForestMaxSamples,
		Seed:          c.ForestSeed,
		SchemaVersion: domain.FeatureSchemaVersion,
	}
}

// SQLitePath is the location of the SQLite store
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "signals.db")
}

// ModelDir is the root of the local model store
func (c *Config) ModelDir() string {
	return filepath.Join(c.DataDir, "models")
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty items
func getEnvAsList(key string, defaultValue []string) []string {
	if list := utils.ParseList(os.Getenv(key)); len(list) > 0 {
		return list
	}
	return defaultValue
}
