package log

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		_ = Configure("info", "text")
	})

	require.NoError(t, Configure("debug", "json"))
	assert.Equal(t, "debug", GetLogLevel())

	LogDebugWithFields("session", "expiry persisted", map[string]any{"ttl_minutes": 5})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "expiry persisted", entry["msg"])
	assert.Equal(t, "session", entry["component"])
	assert.Contains(t, entry, "timestamp")
}

func TestConfigureRejectsUnknownValues(t *testing.T) {
	assert.Error(t, Configure("loud", ""))
	assert.Error(t, Configure("", "xml"))
}

func TestTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		_ = Configure("info", "text")
	})

	require.NoError(t, Configure("info", "text"))
	LogTraceWithFields("watcher", "tick", nil)
	assert.Empty(t, buf.String())

	require.NoError(t, SetLogLevel("trace"))
	buf.Reset()
	LogTraceWithFields("watcher", "tick", nil)
	assert.Contains(t, buf.String(), "level=TRACE")
}
