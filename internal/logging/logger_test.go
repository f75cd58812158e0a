package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		level   string
		logged  []string
		dropped []string
	}{
		{level: "trace", logged: []string{"trace", "debug", "info"}},
		{level: "debug", logged: []string{"debug", "info"}, dropped: []string{"trace"}},
		{level: "info", logged: []string{"info", "warn"}, dropped: []string{"trace", "debug"}},
		{level: "warn", logged: []string{"warn", "error"}, dropped: []string{"debug", "info"}},
		{level: "error", logged: []string{"error"}, dropped: []string{"info", "warn"}},
		{level: "bogus", logged: []string{"info"}, dropped: []string{"debug"}},
		{level: "off", dropped: []string{"error"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := New(Config{Level: tt.level, Output: &buf})

			logger.Trace().Msg("trace message")
			logger.Debug().Msg("debug message")
			logger.Info().Msg("info message")
			logger.Warn().Msg("warn message")
			logger.Error().Msg("error message")

			out := buf.String()
			for _, l := range tt.logged {
				assert.Contains(t, out, l+" message")
			}
			for _, l := range tt.dropped {
				assert.NotContains(t, out, l+" message")
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	l, ok := ParseLevel("WARNING")
	assert.True(t, ok)
	assert.Equal(t, zerolog.WarnLevel, l)

	_, ok = ParseLevel("verbose")
	assert.False(t, ok)
}

func TestNewWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithComponent(Config{Level: "info", Output: &buf}, "intercept")
	logger.Info().Msg("installed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "intercept", entry["component"])
	assert.Equal(t, Name, entry["app"])
	assert.Equal(t, "installed", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNewPretty(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: "info", Pretty: true, Output: &buf})
	logger.Info().Str("fn", "cuInit").Msg("hooked")

	out := buf.String()
	assert.Contains(t, out, "hooked")
	assert.Contains(t, out, "fn=")
	assert.False(t, json.Valid(buf.Bytes()))
}
