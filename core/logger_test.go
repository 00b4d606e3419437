package core

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleLoggerSortsAttrsAndFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewConsoleLogger(&buf).WithLevel(LevelInfo).With(map[string]interface{}{"session": "s1"})

	log.Debug("hidden")
	log.Info("turn done", "stage", "generation", "ms", 12)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[INFO] turn done | ms=12 session=s1 stage=generation")
}

func TestLoggerFormatsNonPairArgs(t *testing.T) {
	var buf bytes.Buffer
	NewConsoleLogger(&buf).Infof("loaded %d scenarios", 3)
	assert.Contains(t, buf.String(), "loaded 3 scenarios")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel(" debug "))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("nonsense"))
}

func TestJSONLoggerStringifiesErrors(t *testing.T) {
	var buf bytes.Buffer
	NewJSONLogger(&buf).Error("synthesis failed", "error", &SynthesisError{Err: os.ErrClosed})

	var entry LogEntry
	require.NoError(t, sonic.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ERROR", entry.Level)
	assert.Equal(t, "synthesis failed", entry.Message)
	assert.Contains(t, entry.Attrs["error"], "file already closed")
}

func TestOrDefault(t *testing.T) {
	var l *Logger
	assert.Same(t, GetLogger(), l.OrDefault())
}

func TestSessionLogWriterWritesMetadataThenEntries(t *testing.T) {
	dir := t.TempDir()
	w, err := NewSessionLogWriter(dir, SessionMetadata{SessionID: "abc", Scenario: "cafe", MaxExchanges: 32})
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "abc.active"))

	var console bytes.Buffer
	log := NewSessionLogger(NewConsoleLogger(&console), w)
	log.Info("hello", "turn", 1)
	w.Close()

	assert.NoFileExists(t, filepath.Join(dir, "abc.active"))
	assert.Contains(t, console.String(), "hello")

	data, err := os.ReadFile(filepath.Join(dir, "abc.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var meta SessionMetadata
	require.NoError(t, sonic.UnmarshalString(lines[0], &meta))
	assert.Equal(t, "abc", meta.SessionID)
	assert.NotEmpty(t, meta.StartedAt)

	var entry LogEntry
	require.NoError(t, sonic.UnmarshalString(lines[1], &entry))
	assert.Equal(t, "hello", entry.Message)
	assert.EqualValues(t, 1, entry.Attrs["turn"])
}
