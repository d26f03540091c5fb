package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, out *bytes.Buffer) []map[string]interface{} {
	t.Helper()

	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel string
	}{
		{name: "debug lets everything through", level: "debug", wantLevel: "DEBUG"},
		{name: "info drops debug", level: "info", wantLevel: "INFO"},
		{name: "warn drops info", level: "warn", wantLevel: "WARN"},
		{name: "error drops warn", level: "error", wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			l, err := New(&Config{Level: tt.level, Format: "json", writer: out})
			require.NoError(t, err)

			l.Debug("debug message")
			l.Info("info message")
			l.Warn("warn message")
			l.Error("error message", slog.Int64("connection_id", 7))

			entries := decodeLines(t, out)
			require.NotEmpty(t, entries)
			assert.Equal(t, tt.wantLevel, entries[0]["level"])
			assert.Equal(t, float64(7), entries[len(entries)-1]["connection_id"])
		})
	}
}

func TestNew_ConsoleFormat(t *testing.T) {
	out := &bytes.Buffer{}
	l, err := New(&Config{Level: "info", Format: "console", writer: out})
	require.NoError(t, err)

	l.Info("import finished", slog.Int("imported", 12))

	assert.Contains(t, out.String(), "INF")
	assert.Contains(t, out.String(), "import finished")
	assert.Contains(t, out.String(), "imported")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "importer.log")

	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("written to file", slog.String("run_id", "abc"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id":"abc"`)
}

func TestNew_FileOutputUnwritable(t *testing.T) {
	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "x.log")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"DEBUG", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestLogger_With(t *testing.T) {
	out := &bytes.Buffer{}
	l, err := New(&Config{Level: "info", Format: "json", writer: out})
	require.NoError(t, err)

	scoped := l.With(slog.String("service", "worker"))
	scoped.Info("claimed", slog.String("run_id", "r-1"))
	require.NoError(t, scoped.Close())

	entries := decodeLines(t, out)
	require.Len(t, entries, 1)
	assert.Equal(t, "worker", entries[0]["service"])
	assert.Equal(t, "r-1", entries[0]["run_id"])
}

func TestContextRoundTrip(t *testing.T) {
	fallback := slog.New(slog.NewTextHandler(io.Discard, nil))
	scoped := fallback.With(slog.String("run_id", "r-2"))

	assert.Same(t, fallback, FromContext(context.Background(), fallback))
	assert.Same(t, scoped, FromContext(IntoContext(context.Background(), scoped), fallback))
}
