// Package config provides configuration management for the whenthen engine
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/paveg/whenthen/internal/logutil"
	"gopkg.in/yaml.v3"
)

// Config represents the global configuration for expression evaluation
type Config struct {
	// Parallel Processing Configuration
	WorkerPoolSize int `json:"worker_pool_size" yaml:"worker_pool_size" toml:"worker_pool_size"` // Number of pooled goroutines (0 = auto-detect)
	PartitionCount int `json:"partition_count" yaml:"partition_count" toml:"partition_count"`    // Partitions for partitioned aggregation (0 = worker count)

	// Debugging Configuration
	MetricsCollection bool              `json:"metrics_collection" yaml:"metrics_collection" toml:"metrics_collection"` // Enable metrics collection
	Log               logutil.LogConfig `json:"log" yaml:"log" toml:"log"`
}

// Global configuration instance
var (
	globalConfig Config
	configMutex  sync.RWMutex
)

// Default configuration values
const (
	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// Initialize global configuration with defaults
func init() {
	globalConfig = NewConfig()
}

// NewConfig creates a new configuration with default values
func NewConfig() Config {
	return Config{
		WorkerPoolSize:    0, // Auto-detect
		PartitionCount:    0, // Follows the worker count
		MetricsCollection: false,
		Log: logutil.LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	if c.WorkerPoolSize < 0 {
		return fmt.Errorf("WorkerPoolSize must be non-negative, got %d", c.WorkerPoolSize)
	}

	if c.PartitionCount < 0 {
		return fmt.Errorf("PartitionCount must be non-negative, got %d", c.PartitionCount)
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("Log.Level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}

	switch c.Log.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("Log.Format must be console or json, got %q", c.Log.Format)
	}

	return nil
}

// WithDefaults returns a new configuration with default values filled in for zero values
func (c Config) WithDefaults() Config {
	defaults := NewConfig()

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	return c
}

// Workers resolves the effective worker count.
func (c Config) Workers() int {
	if c.WorkerPoolSize > 0 {
		return c.WorkerPoolSize
	}
	return runtime.NumCPU()
}

// Partitions resolves the effective partition count for partitioned aggregation.
func (c Config) Partitions() int {
	if c.PartitionCount > 0 {
		return c.PartitionCount
	}
	return c.Workers()
}

// SetGlobalConfig sets the global configuration
func SetGlobalConfig(config Config) {
	configMutex.Lock()
	defer configMutex.Unlock()
	globalConfig = config
}

// GetGlobalConfig returns the current global configuration
func GetGlobalConfig() Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// LoadFromJSON loads configuration from JSON data
func LoadFromJSON(data []byte) (Config, error) {
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing JSON configuration: %w", err)
	}
	return config.WithDefaults(), nil
}

// LoadFromFile loads configuration from a file (supports JSON, YAML, TOML)
func LoadFromFile(filename string) (Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", filename, err)
	}

	var config Config
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".json":
		err = json.Unmarshal(data, &config)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	case ".toml":
		_, err = toml.Decode(string(data), &config)
	default:
		return Config{}, fmt.Errorf("unsupported config file format: %s", ext)
	}

	if err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", filename, err)
	}

	return config.WithDefaults(), nil
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() Config {
	config := NewConfig()

	if val := os.Getenv("WHENTHEN_WORKER_POOL_SIZE"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.WorkerPoolSize = parsed
		}
	}

	if val := os.Getenv("WHENTHEN_PARTITION_COUNT"); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			config.PartitionCount = parsed
		}
	}

	if val := os.Getenv("WHENTHEN_METRICS_COLLECTION"); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			config.MetricsCollection = parsed
		}
	}

	if val := os.Getenv("WHENTHEN_LOG_LEVEL"); val != "" {
		config.Log.Level = strings.ToLower(val)
	}

	if val := os.Getenv("WHENTHEN_LOG_FILE"); val != "" {
		config.Log.Filename = val
	}

	return config
}
