package logutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogConfig_Build(t *testing.T) {
	tests := []struct {
		name      string
		cfg       LogConfig
		wantLevel zapcore.Level
		wantErr   bool
	}{
		{name: "default level", cfg: LogConfig{}, wantLevel: zapcore.InfoLevel},
		{name: "debug console", cfg: LogConfig{Level: "debug", Format: "console"}, wantLevel: zapcore.DebugLevel},
		{name: "warn json", cfg: LogConfig{Level: "warn", Format: "json"}, wantLevel: zapcore.WarnLevel},
		{name: "bad level", cfg: LogConfig{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := tt.cfg.Build()
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, logger.Core().Enabled(tt.wantLevel))
			assert.False(t, logger.Core().Enabled(tt.wantLevel-1))
		})
	}
}

func TestLogConfig_FileSyncer(t *testing.T) {
	cfg := LogConfig{Level: "info", Filename: filepath.Join(t.TempDir(), "engine.log"), MaxSize: 1}
	logger, err := cfg.Build()
	require.NoError(t, err)
	logger.Info("written to file")
	assert.NoError(t, logger.Sync())
}

func TestGlobalLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	previous := GetGlobalLogger()
	SetGlobalLogger(zap.New(core))
	defer SetGlobalLogger(previous)

	Debug("combiner case", zap.String("case", "A"))
	Warn("slow partition", zap.Int("partition", 2))

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "combiner case", logs.All()[0].Message)
	assert.Equal(t, "A", logs.All()[0].ContextMap()["case"])
	assert.Equal(t, zapcore.WarnLevel, logs.All()[1].Level)

	SetGlobalLogger(nil)
	assert.NotNil(t, GetGlobalLogger())
}
