package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-signals/internal/domain"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SIGNALS_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, StoreSQLite, cfg.StoreDriver)
	assert.Equal(t, ModelStoreFile, cfg.ModelStore)
	assert.Equal(t, "stocks/models", cfg.ModelPrefix)
	assert.Equal(t, "SPY", cfg.BenchmarkSymbol)
	assert.Equal(t, 1500, cfg.TrainingWindowDays)
	assert.Equal(t, 400, cfg.BufferDays)
	assert.Equal(t, 180, cfg.FeatureBufferDays)
	assert.Equal(t, 1825, cfg.FeatureFirstRunDays)
	assert.Equal(t, 252, cfg.DriverLookback)
	assert.Equal(t, 200, cfg.MinTrainRows)
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "0 30 22 * * MON-FRI", cfg.DailySchedule)
	assert.Equal(t, "0 0 3 1 * *", cfg.MonthlySchedule)
	assert.Equal(t, filepath.Join(dir, "signals.db"), cfg.SQLitePath())
	assert.Equal(t, filepath.Join(dir, "models"), cfg.ModelDir())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SIGNALS_DATA_DIR", t.TempDir())
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("DB_URL", "postgres://localhost/signals")
	t.Setenv("MODEL_STORE", "s3")
	t.Setenv("MODEL_BUCKET", "models")
	t.Setenv("MODEL_PREFIX", "/prod/models/")
	t.Setenv("BENCHMARK_SYMBOL", "qqq")
	t.Setenv("TRAINING_WINDOW_DAYS", "900")
	t.Setenv("WORKERS", "4")
	t.Setenv("RUN_LIMIT", "50")
	t.Setenv("BENCHMARK_MAX_AGE", "15m")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,,")
	t.Setenv("JOB", "Monthly")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, "prod/models", cfg.ModelPrefix)
	assert.Equal(t, "QQQ", cfg.BenchmarkSymbol)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 50, cfg.RunLimit)
	assert.Equal(t, 15*time.Minute, cfg.BenchmarkMaxAge)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, "monthly", cfg.Job)
	assert.True(t, cfg.LogPretty)

	settings := cfg.Pipeline()
	assert.Equal(t, "QQQ", settings.BenchmarkSymbol)
	assert.Equal(t, 900, settings.TrainingWindowDays)
	assert.Equal(t, 15*time.Minute, settings.BenchmarkMaxAge)

	forest := cfg.Forest()
	assert.Equal(t, 200, forest.Trees)
	assert.Equal(t, domain.FeatureSchemaVersion, forest.SchemaVersion)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("SIGNALS_DATA_DIR", t.TempDir())
	t.Setenv("GO_PORT", "eighty")
	t.Setenv("DEV_MODE", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8001, cfg.Port)
	assert.False(t, cfg.DevMode)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			StoreDriver:         StoreSQLite,
			ModelStore:          ModelStoreFile,
			BenchmarkSymbol:     "SPY",
			TrainingWindowDays:  1500,
			FeatureFirstRunDays: 1825,
			DriverLookback:      252,
			MinTrainRows:        200,
			ForestTrees:         200,
			ForestMaxSamples:    256,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"postgres without url", func(c *Config) { c.StoreDriver = StorePostgres }, "DB_URL"},
		{"unknown driver", func(c *Config) { c.StoreDriver = "mysql" }, "STORE_DRIVER"},
		{"s3 without bucket", func(c *Config) { c.ModelStore = ModelStoreS3 }, "MODEL_BUCKET"},
		{"unknown model store", func(c *Config) { c.ModelStore = "gcs" }, "MODEL_STORE"},
		{"empty benchmark", func(c *Config) { c.BenchmarkSymbol = "" }, "BENCHMARK_SYMBOL"},
		{"zero training window", func(c *Config) { c.TrainingWindowDays = 0 }, "TRAINING_WINDOW_DAYS"},
		{"negative buffer", func(c *Config) { c.BufferDays = -1 }, "BUFFER_DAYS"},
		{"bad job", func(c *Config) { c.Job = "weekly" }, "invalid JOB"},
		{"daily job", func(c *Config) { c.Job = "daily" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetEnvAsList(t *testing.T) {
	t.Setenv("LIST_KEY", " , ")
	assert.Equal(t, []string{"fallback"}, getEnvAsList("LIST_KEY", []string{"fallback"}))
	assert.Nil(t, getEnvAsList("LIST_KEY_UNSET", nil))
}
