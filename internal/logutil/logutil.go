// Package logutil wires the process-wide zap logger used by the engine.
package logutil

import (
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig describes where and how the engine logs.
type LogConfig struct {
	Level      string `json:"level" yaml:"level" toml:"level"`                   // debug, info, warn, error
	Format     string `json:"format" yaml:"format" toml:"format"`                // console or json
	Filename   string `json:"filename" yaml:"filename" toml:"filename"`          // empty logs to stderr
	MaxSize    int    `json:"max_size" yaml:"max_size" toml:"max_size"`          // megabytes before rotation
	MaxDays    int    `json:"max_days" yaml:"max_days" toml:"max_days"`          // days to keep rotated files
	MaxBackups int    `json:"max_backups" yaml:"max_backups" toml:"max_backups"` // rotated files to keep
}

var globalLogger atomic.Value

func init() {
	globalLogger.Store(zap.NewNop())
}

// GetGlobalLogger returns the logger installed by SetupLogger, or a no-op logger.
func GetGlobalLogger() *zap.Logger {
	return globalLogger.Load().(*zap.Logger)
}

// SetGlobalLogger replaces the process-wide logger.
func SetGlobalLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	globalLogger.Store(logger)
}

// SetupLogger builds a logger from cfg and installs it globally.
func SetupLogger(cfg LogConfig) (*zap.Logger, error) {
	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	SetGlobalLogger(logger)
	return logger, nil
}

// Build constructs a zap logger without installing it.
func (cfg LogConfig) Build() (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, err
		}
	}

	core := zapcore.NewCore(getLoggerEncoder(cfg.Format), cfg.getSyncer(), level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.FatalLevel)), nil
}

func (cfg LogConfig) getSyncer() zapcore.WriteSyncer {
	if cfg.Filename == "" {
		return getConsoleSyncer()
	}
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxAge:     cfg.MaxDays,
		MaxBackups: cfg.MaxBackups,
	})
}

func getConsoleSyncer() zapcore.WriteSyncer {
	return zapcore.Lock(os.Stderr)
}

func getLoggerEncoder(format string) zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "json" {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func Debug(msg string, fields ...zap.Field) {
	GetGlobalLogger().WithOptions(zap.AddCallerSkip(1)).Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	GetGlobalLogger().WithOptions(zap.AddCallerSkip(1)).Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	GetGlobalLogger().WithOptions(zap.AddCallerSkip(1)).Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	GetGlobalLogger().WithOptions(zap.AddCallerSkip(1)).Error(msg, fields...)
}
