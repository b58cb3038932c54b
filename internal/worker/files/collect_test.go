package files

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCollector() *Collector {
	return NewCollector(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCollect(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "report.md", "# report")
	writeFile(t, root, "b/data.csv", "a,b")
	writeFile(t, root, "a/notes.txt", "notes")
	writeFile(t, root, ".hidden", "x")
	writeFile(t, root, ".git/config", "x")
	writeFile(t, root, "CODEX.md", "scaffold")
	require.NoError(t, os.Symlink(filepath.Join(root, "report.md"), filepath.Join(root, "link.md")))

	got, err := newTestCollector().Collect(root, "CODEX.md")
	require.NoError(t, err)

	var gotNames []string
	for _, f := range got {
		gotNames = append(gotNames, f.Name)
	}
	assert.Equal(t, []string{"a/notes.txt", "b/data.csv", "report.md"}, gotNames)
	assert.Equal(t, int64(len("# report")), got[2].Size)
	assert.True(t, filepath.IsAbs(got[2].Path))
}

func TestCollect_MissingRoot(t *testing.T) {
	got, err := newTestCollector().Collect(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCollect_EmptyDir(t *testing.T) {
	got, err := newTestCollector().Collect(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteFallback(t *testing.T) {
	dir := t.TempDir()

	got, err := WriteFallback(dir, "response.txt", "  \n")
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = WriteFallback(dir, "response.txt", "hello")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "response.txt", got[0].Name)
	assert.Equal(t, int64(5), got[0].Size)

	data, err := os.ReadFile(got[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
