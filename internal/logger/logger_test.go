package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("console only", func(t *testing.T) {
		logger, err := New(Config{Level: "info", Console: true})
		require.NoError(t, err)
		require.NotNil(t, logger)
		logger.Close()
	})

	t.Run("file output writes entries", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "helmsman.log")

		logger, err := New(Config{Level: "debug", File: logFile})
		require.NoError(t, err)

		logger.Info().Str("component", "controller").Msg("run started")
		logger.Close()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "run started")
		assert.Contains(t, string(content), `"component":"controller"`)
	})

	t.Run("redaction enabled", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "helmsman.log")

		logger, err := New(Config{Level: "info", File: logFile, Redaction: true})
		require.NoError(t, err)
		assert.NotNil(t, logger.redactor)
		logger.Close()
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logger, err := New(Config{Level: "shouting", Console: false})
		require.NoError(t, err)
		defer logger.Close()

		assert.Equal(t, zerolog.InfoLevel, logger.GetZerolog().GetLevel())
	})
}

func TestLoggerLevels(t *testing.T) {
	logger, err := New(Config{Level: "debug", File: filepath.Join(t.TempDir(), "helmsman.log")})
	require.NoError(t, err)
	defer logger.Close()

	for name, event := range map[string]*zerolog.Event{
		"debug": logger.Debug(),
		"info":  logger.Info(),
		"warn":  logger.Warn(),
		"error": logger.Error(),
	} {
		require.NotNil(t, event, name)
		event.Msg(name + " message")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Console)
	assert.True(t, cfg.Pretty)
	assert.True(t, cfg.Redaction)
	assert.Equal(t, 100, cfg.MaxSize)
	assert.Equal(t, 7, cfg.MaxAge)
	assert.True(t, cfg.Compress)
}

func TestLoggerWith(t *testing.T) {
	logger, err := New(Config{Level: "info"})
	require.NoError(t, err)
	defer logger.Close()

	child := logger.With().Str("component", "delivery").Logger()
	assert.NotNil(t, child)
}

func TestGetZerolog(t *testing.T) {
	logger, err := New(Config{Level: "warn"})
	require.NoError(t, err)
	defer logger.Close()

	assert.Equal(t, zerolog.WarnLevel, logger.GetZerolog().GetLevel())
}
