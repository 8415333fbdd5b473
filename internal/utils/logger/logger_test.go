package logger_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/ruther77/MassaCorp-sub001/internal/config"
	"github.com/ruther77/MassaCorp-sub001/internal/utils/logger"
)

func TestNewLogger_Levels(t *testing.T) {
	l, err := logger.NewLogger(config.LoggingConfig{Level: "warn"}, config.EnvDevelopment)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))

	l, err = logger.NewLogger(config.LoggingConfig{Level: "nonsense"}, config.EnvProduction)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))
}

func TestNewLogger_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "authcore.log")
	l, err := logger.NewLogger(config.LoggingConfig{
		Level: "info",
		File:  config.LogFileConfig{Path: path, MaxSizeMB: 1},
	}, config.EnvProduction)
	require.NoError(t, err)

	logger.WithComponent(l, "test").Info("hello")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"component":"test"`)
}
