package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newCaptured builds a logger writing into a buffer through the writer
// override instead of stdout/stderr.
func newCaptured(t *testing.T, level, format string) (*Logger, *bytes.Buffer) {
	t.Helper()

	buf := &bytes.Buffer{}
	l, err := New(&Config{
		Level:      level,
		Format:     format,
		Output:     "stdout",
		TimeFormat: time.RFC3339,
		writer:     buf,
	})
	require.NoError(t, err)
	return l, buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestWriterOverride(t *testing.T) {
	// The override takes precedence over the Output setting; without it
	// nothing would be capturable here.
	l, buf := newCaptured(t, "info", "json")

	l.Info("Job enqueued", slog.String("job_id", "j-1"))
	assert.NotZero(t, buf.Len())
}

func TestJSONFormat(t *testing.T) {
	l, buf := newCaptured(t, "debug", "json")

	l.Info("Job status updated",
		slog.String("job_id", "j-1"),
		slog.String("status", "processing"),
	)

	entry := lastEntry(t, buf)
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "Job status updated", entry["msg"])
	assert.Equal(t, "j-1", entry["job_id"])
	assert.Equal(t, "processing", entry["status"])
	assert.Contains(t, entry, "time")
}

func TestConsoleFormat(t *testing.T) {
	l, buf := newCaptured(t, "info", "console")

	l.Warn("Transfer failed, retrying", slog.String("key", "scans/a.stl"))

	// tint renders abbreviated level names.
	out := buf.String()
	assert.Contains(t, out, "WRN")
	assert.Contains(t, out, "Transfer failed, retrying")
	assert.Contains(t, out, "scans/a.stl")
}

func TestUnknownFormatFallsBackToJSON(t *testing.T) {
	l, buf := newCaptured(t, "info", "logfmt")

	l.Info("Object store ready")

	entry := lastEntry(t, buf)
	assert.Equal(t, "Object store ready", entry["msg"])
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		want  []string
	}{
		{level: "debug", want: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{level: "info", want: []string{"INFO", "WARN", "ERROR"}},
		{level: "warn", want: []string{"WARN", "ERROR"}},
		{level: "error", want: []string{"ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			l, buf := newCaptured(t, tt.level, "json")

			l.Debug("d")
			l.Info("i")
			l.Warn("w")
			l.Error("e")

			lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
			require.Len(t, lines, len(tt.want))
			for i, line := range lines {
				var entry map[string]interface{}
				require.NoError(t, json.Unmarshal([]byte(line), &entry))
				assert.Equal(t, tt.want[i], entry["level"])
			}
		})
	}
}

func TestSourceLocation(t *testing.T) {
	buf := &bytes.Buffer{}
	l, err := New(&Config{
		Level:        "info",
		Format:       "json",
		EnableSource: true,
		writer:       buf,
	})
	require.NoError(t, err)

	l.Info("Processing job")

	entry := lastEntry(t, buf)
	require.Contains(t, entry, "source")
	source := entry["source"].(map[string]interface{})
	assert.Contains(t, source["file"], "logger_test.go")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "info", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "warning", want: slog.LevelWarn},
		{input: "error", want: slog.LevelError},
		{input: "ERROR", want: slog.LevelInfo}, // case-sensitive, falls back
		{input: "verbose", want: slog.LevelInfo},
		{input: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run("level "+tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestNewDefault(t *testing.T) {
	l := NewDefault()
	require.NotNil(t, l)
	assert.NotNil(t, l.Logger)
}

func TestWith(t *testing.T) {
	l, buf := newCaptured(t, "info", "json")

	l.With(slog.Int("loop", 2)).Info("Worker loop started")

	entry := lastEntry(t, buf)
	assert.Equal(t, float64(2), entry["loop"])
	assert.Equal(t, "Worker loop started", entry["msg"])
}

func TestWithAttrs(t *testing.T) {
	l, buf := newCaptured(t, "info", "json")

	l.WithAttrs(
		slog.String("job_id", "j-1"),
		slog.String("input_key", "scans/a.stl"),
	).Info("Processing job")

	entry := lastEntry(t, buf)
	assert.Equal(t, "j-1", entry["job_id"])
	assert.Equal(t, "scans/a.stl", entry["input_key"])
}

func TestWithGroup(t *testing.T) {
	l, buf := newCaptured(t, "info", "json")

	l.WithGroup("transfer").Info("Object uploaded", slog.String("key", "stl/j-1/mold.stl"))

	entry := lastEntry(t, buf)
	require.Contains(t, entry, "transfer")
	group := entry["transfer"].(map[string]interface{})
	assert.Equal(t, "stl/j-1/mold.stl", group["key"])
}
