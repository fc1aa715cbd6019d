package config_test

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/paveg/whenthen/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_DefaultValues(t *testing.T) {
	cfg := config.NewConfig()

	assert.Equal(t, 0, cfg.WorkerPoolSize) // 0 means auto-detect
	assert.Equal(t, 0, cfg.PartitionCount) // 0 follows the worker count
	assert.False(t, cfg.MetricsCollection)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, runtime.NumCPU(), cfg.Workers())
	assert.Equal(t, runtime.NumCPU(), cfg.Partitions())
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*config.Config)
		expectedError string
	}{
		{
			name:   "valid config",
			mutate: func(c *config.Config) { c.WorkerPoolSize = 4 },
		},
		{
			name:          "negative worker pool size",
			mutate:        func(c *config.Config) { c.WorkerPoolSize = -1 },
			expectedError: "WorkerPoolSize must be non-negative, got -1",
		},
		{
			name:          "negative partition count",
			mutate:        func(c *config.Config) { c.PartitionCount = -2 },
			expectedError: "PartitionCount must be non-negative, got -2",
		},
		{
			name:          "unknown log level",
			mutate:        func(c *config.Config) { c.Log.Level = "trace" },
			expectedError: `Log.Level must be one of debug, info, warn, error, got "trace"`,
		},
		{
			name:          "unknown log format",
			mutate:        func(c *config.Config) { c.Log.Format = "xml" },
			expectedError: `Log.Format must be console or json, got "xml"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.expectedError == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.expectedError, err.Error())
		})
	}
}

func TestConfig_ResolvedCounts(t *testing.T) {
	cfg := config.Config{WorkerPoolSize: 3}
	assert.Equal(t, 3, cfg.Workers())
	assert.Equal(t, 3, cfg.Partitions())

	cfg.PartitionCount = 7
	assert.Equal(t, 7, cfg.Partitions())
}

func TestConfig_LoadFromJSON(t *testing.T) {
	cfg, err := config.LoadFromJSON([]byte(`{"worker_pool_size": 6, "metrics_collection": true, "log": {"level": "debug"}}`))
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.WorkerPoolSize)
	assert.True(t, cfg.MetricsCollection)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestConfig_LoadFromFile(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{
			name: "json",
			file: "engine.json",
			data: `{"worker_pool_size": 4, "partition_count": 8, "log": {"format": "json"}}`,
		},
		{
			name: "yaml",
			file: "engine.yaml",
			data: "worker_pool_size: 4\npartition_count: 8\nlog:\n  format: json\n",
		},
		{
			name: "toml",
			file: "engine.toml",
			data: "worker_pool_size = 4\npartition_count = 8\n\n[log]\nformat = \"json\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0o600))

			cfg, err := config.LoadFromFile(path)
			require.NoError(t, err)

			assert.Equal(t, 4, cfg.WorkerPoolSize)
			assert.Equal(t, 8, cfg.PartitionCount)
			assert.Equal(t, "json", cfg.Log.Format)
			assert.Equal(t, "info", cfg.Log.Level)
		})
	}
}

func TestConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("WHENTHEN_WORKER_POOL_SIZE", "12")
	t.Setenv("WHENTHEN_PARTITION_COUNT", "3")
	t.Setenv("WHENTHEN_METRICS_COLLECTION", "true")
	t.Setenv("WHENTHEN_LOG_LEVEL", "WARN")

	cfg := config.LoadFromEnv()

	assert.Equal(t, 12, cfg.WorkerPoolSize)
	assert.Equal(t, 3, cfg.PartitionCount)
	assert.True(t, cfg.MetricsCollection)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestConfig_EnvironmentVariableParsing(t *testing.T) {
	t.Setenv("WHENTHEN_WORKER_POOL_SIZE", "many")
	t.Setenv("WHENTHEN_METRICS_COLLECTION", "maybe")

	cfg := config.LoadFromEnv()

	assert.Equal(t, 0, cfg.WorkerPoolSize)
	assert.False(t, cfg.MetricsCollection)
}

func TestGlobalConfig_SetAndGet(t *testing.T) {
	original := config.GetGlobalConfig()
	defer config.SetGlobalConfig(original)

	custom := config.NewConfig()
	custom.WorkerPoolSize = 2
	config.SetGlobalConfig(custom)

	assert.Equal(t, 2, config.GetGlobalConfig().WorkerPoolSize)
}

func TestConfig_UnsupportedFileFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.ini")
	require.NoError(t, os.WriteFile(path, []byte("x=1"), 0o600))

	_, err := config.LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file format: .ini")
}

func TestConfig_InvalidJSON(t *testing.T) {
	_, err := config.LoadFromJSON([]byte(`{"worker_pool_size": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing JSON configuration")
}

func TestConfig_LoadFromNonExistentFile(t *testing.T) {
	_, err := config.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
