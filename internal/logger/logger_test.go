package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_TextHandlerFiltersBelowLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, "warn", "text")

	log.Info("hidden")
	log.Warn("shown", "event_id", "evt-1")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "level=WARN")
	require.Contains(t, buf.String(), "event_id=evt-1")
}

func TestNew_JSONHandler(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, "debug", "JSON")

	log.Debug("event published", "topic", "ConventionFullySigned")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "DEBUG", line["level"])
	require.Equal(t, "event published", line["msg"])
	require.Equal(t, "ConventionFullySigned", line["topic"])
}

func TestNew_UnknownLevelDefaultsToInfo(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := New(&buf, "verbose", "text")

	log.Debug("hidden")
	log.Info("shown")

	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}
