package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alumni-chat/config"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&config.Config{
		ServiceName: "alumni-chat",
		Environment: "test",
		LogLevel:    "warn",
		LogFormat:   "json",
	}, &buf)

	log.Info().Msg("dropped")
	log.Warn().Str("conversation_id", "c1").Msg("emit failed")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "alumni-chat", entry["service"])
	assert.Equal(t, "test", entry["environment"])
	assert.Equal(t, "c1", entry["conversation_id"])
	assert.Equal(t, "emit failed", entry["message"])
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud"))
}
