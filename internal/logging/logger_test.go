package logging

import (
	"log/slog"
	"testing"

	"github.com/aobuilder/aob/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNew_JSONFormat(t *testing.T) {
	l := New(config.LoggingConfig{Level: "info", Format: "json"})
	assert.NotNil(t, l)
	assert.True(t, l.Enabled(nil, slog.LevelInfo))
	assert.False(t, l.Enabled(nil, slog.LevelDebug))
}

func TestNew_TextFormatDebugLevel(t *testing.T) {
	l := New(config.LoggingConfig{Level: "debug", Format: "text"})
	assert.NotNil(t, l)
	assert.True(t, l.Enabled(nil, slog.LevelDebug))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel("nonsense"))
}

func TestInit_SetsDefault(t *testing.T) {
	l := Init(config.LoggingConfig{Level: "warn", Format: "json"})
	assert.Same(t, l, slog.Default())
}
