package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_JSONLevels(t *testing.T) {
	tests := []struct {
		level  string
		levels []string
	}{
		{level: "debug", levels: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		{level: "info", levels: []string{"INFO", "WARN", "ERROR"}},
		{level: "WARN", levels: []string{"WARN", "ERROR"}},
		{level: "error", levels: []string{"ERROR"}},
		{level: "bogus", levels: []string{"INFO", "WARN", "ERROR"}},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(&Config{Level: tt.level, Format: "json", writer: &buf})
			require.NoError(t, err)

			l.Debug("claiming job")
			l.Info("claimed job", slog.String("job_id", "j-1"))
			l.Warn("claim conflict")
			l.Error("commit failed")

			var got []string
			for _, e := range decodeLines(t, &buf) {
				got = append(got, e["level"].(string))
			}
			assert.Equal(t, tt.levels, got)
		})
	}
}

func TestNew_JSONAttributes(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: "info", Format: "json", EnableSource: true, writer: &buf})
	require.NoError(t, err)

	l.Info("Job completed",
		slog.String("job_id", "2f0c9d3e"),
		slog.Int("files", 3),
		slog.Bool("rolled_back", false),
	)

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "Job completed", entries[0]["msg"])
	assert.Equal(t, "2f0c9d3e", entries[0]["job_id"])
	assert.EqualValues(t, 3, entries[0]["files"])
	assert.Equal(t, false, entries[0]["rolled_back"])
	assert.Contains(t, entries[0], "source")
}

func TestNew_ConsoleFormat(t *testing.T) {
	for _, format := range []string{"console", "text", ""} {
		t.Run("format="+format, func(t *testing.T) {
			var buf bytes.Buffer
			l, err := New(&Config{Level: "info", Format: format, writer: &buf})
			require.NoError(t, err)

			l.Info("worker started", slog.String("agent_id", "a-1"))

			out := buf.String()
			assert.Contains(t, out, "worker started")
			assert.Contains(t, out, "agent_id")
			assert.False(t, json.Valid([]byte(strings.TrimSpace(out))))
		})
	}
}

func TestLogger_Component(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&Config{Level: "info", Format: "json", writer: &buf})
	require.NoError(t, err)

	l.Component("runner").Info("running job", slog.String("job_id", "j-9"))

	entries := decodeLines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "runner", entries[0]["component"])
	assert.Equal(t, "j-9", entries[0]["job_id"])
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")

	l, err := New(&Config{Level: "info", Format: "console", Output: path})
	require.NoError(t, err)

	l.Info("written to file")
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
	assert.NotContains(t, string(data), "\x1b[", "file output should not carry color codes")
}

func TestNew_FileOutputBadPath(t *testing.T) {
	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "api.log")})
	assert.Error(t, err)
}

func TestLogger_CloseStdout(t *testing.T) {
	l, err := New(&Config{Output: "stdout"})
	require.NoError(t, err)
	assert.NoError(t, l.Close())
}
