package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/config"
	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// fakeBinary writes an executable shell script and returns its path. The
// script records its arguments in .args inside the work dir.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-cli")
	script := "#!/bin/sh\nfor a in \"$@\"; do printf '%s\\n---\\n' \"$a\"; done > .args\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func recordedArgs(t *testing.T, workDir string) []string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(workDir, ".args"))
	require.NoError(t, err)
	args := strings.Split(strings.TrimSuffix(string(data), "\n---\n"), "\n---\n")
	return args
}

func outputNames(files []domain.OutputFile) []string {
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}
	return names
}

func newRunner(t *testing.T, cfg config.RunnerConfig) TaskRunner {
	t.Helper()
	r, err := New(cfg, testLogger)
	require.NoError(t, err)
	return r
}

func testJob() *domain.Job {
	return &domain.Job{
		JobID:  "job-1",
		Prompt: "write a haiku",
		Params: map[string]any{"topic": "autumn"},
	}
}

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]any
		want   string
	}{
		{"no params", nil, "p"},
		{"string param", map[string]any{"lang": "en"}, "p\nlang=en"},
		{"sorted mixed values", map[string]any{"b": 2, "a": "x", "c": map[string]any{"k": true}}, "p\na=x b=2 c={\"k\":true}"},
		{"list value", map[string]any{"tags": []any{"x", "y"}}, "p\ntags=[\"x\",\"y\"]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildPrompt(&domain.Job{Prompt: "p", Params: tt.params}))
		})
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		kind string
		name string
	}{
		{config.RunnerClaude, "claude"},
		{config.RunnerCodex, "codex"},
		{config.RunnerGemini, "gemini"},
		{config.RunnerCodeReview, "code-review"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			r := newRunner(t, config.RunnerConfig{Kind: tt.kind, MaxTurns: 25})
			assert.Equal(t, tt.name, r.Name())
		})
	}

	_, err := New(config.RunnerConfig{Kind: "cobol"}, testLogger)
	assert.Error(t, err)

	_, err = New(config.RunnerConfig{Kind: config.RunnerShell}, testLogger)
	assert.Error(t, err)

	_, err = New(config.RunnerConfig{Kind: config.RunnerClaude, SystemPromptFile: filepath.Join(t.TempDir(), "missing.md")}, testLogger)
	assert.Error(t, err)
}

func TestClaudeRunner(t *testing.T) {
	promptFile := filepath.Join(t.TempDir(), "system.md")
	require.NoError(t, os.WriteFile(promptFile, []byte("be brief"), 0o644))

	bin := fakeBinary(t, "echo '# haiku' > haiku.md")
	r := newRunner(t, config.RunnerConfig{Kind: config.RunnerClaude, Binary: bin, MaxTurns: 7, SystemPromptFile: promptFile})
	workDir := t.TempDir()

	out, err := r.Run(context.Background(), testJob(), workDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"haiku.md"}, outputNames(out))

	assert.Equal(t, []string{
		"--dangerously-skip-permissions",
		"--append-system-prompt", "be brief",
		"--max-turns", "7",
		"-p", "write a haiku\ntopic=autumn",
	}, recordedArgs(t, workDir))
}

func TestClaudeRunner_FallsBackToStdout(t *testing.T) {
	bin := fakeBinary(t, "echo 'just text'")
	r := newRunner(t, config.RunnerConfig{Kind: config.RunnerClaude, Binary: bin, MaxTurns: 25})
	workDir := t.TempDir()

	out, err := r.Run(context.Background(), testJob(), workDir)
	require.NoError(t, err)
	require.Equal(t, []string{"response.txt"}, outputNames(out))

	data, err := os.ReadFile(filepath.Join(workDir, "response.txt"))
	require.NoError(t, err)
	assert.Equal(t, "just text\n", string(data))
}

func TestGeminiRunner_NoOutput(t *testing.T) {
	bin := fakeBinary(t, "true")
	r := newRunner(t, config.RunnerConfig{Kind: config.RunnerGemini, Binary: bin})
	workDir := t.TempDir()

	out, err := r.Run(context.Background(), testJob(), workDir)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Equal(t, []string{"-p", "write a haiku\ntopic=autumn", "--yolo"}, recordedArgs(t, workDir))
}

func TestCodexRunner_SeedsScaffoldAndExcludesIt(t *testing.T) {
	bin := fakeBinary(t, "cp CODEX.md seen.md")
	r := newRunner(t, config.RunnerConfig{Kind: config.RunnerCodex, Binary: bin})
	workDir := t.TempDir()

	out, err := r.Run(context.Background(), testJob(), workDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"seen.md"}, outputNames(out))

	seen, err := os.ReadFile(filepath.Join(workDir, "seen.md"))
	require.NoError(t, err)
	assert.Equal(t, defaultCodexScaffold, string(seen))
	assert.Equal(t, []string{"exec", "--yolo", "write a haiku\ntopic=autumn"}, recordedArgs(t, workDir))
}

func TestCodeReviewRunner(t *testing.T) {
	bin := fakeBinary(t, "echo 'looks fine'")
	r := newRunner(t, config.RunnerConfig{Kind: config.RunnerCodeReview, Binary: bin})
	workDir := t.TempDir()

	job := &domain.Job{
		JobID:  "job-2",
		Prompt: "focus on errors",
		Params: map[string]any{"code": "package main", "language": "go"},
	}

	out, err := r.Run(context.Background(), job, workDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"review.md"}, outputNames(out))

	input, err := os.ReadFile(filepath.Join(workDir, "input.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main", string(input))

	args := recordedArgs(t, workDir)
	require.Len(t, args, 3)
	assert.Equal(t, "--dangerously-skip-permissions", args[0])
	assert.Equal(t, "-p", args[1])
	assert.True(t, strings.HasPrefix(args[2], "Review the code in input.go."))
	assert.True(t, strings.HasSuffix(args[2], "\n\nAdditional focus: focus on errors"))
}

func TestCodeReviewRunner_MissingCode(t *testing.T) {
	r := newRunner(t, config.RunnerConfig{Kind: config.RunnerCodeReview, Binary: "/nonexistent"})

	_, err := r.Run(context.Background(), &domain.Job{JobID: "job-3", Params: map[string]any{"code": "  "}}, t.TempDir())
	assert.ErrorIs(t, err, domain.ErrInvalidParams)
	assert.Contains(t, err.Error(), "Missing or empty 'code' parameter")
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, ".py", extensionFor("python"))
	assert.Equal(t, ".rs", extensionFor("rust"))
	assert.Equal(t, ".txt", extensionFor("cobol"))
	assert.Equal(t, ".txt", extensionFor(""))
}

func TestShellRunner(t *testing.T) {
	r := newRunner(t, config.RunnerConfig{
		Kind:    config.RunnerShell,
		Command: []string{"sh", "-c", `printf '%s' "$0" > result.txt`},
	})
	workDir := t.TempDir()

	out, err := r.Run(context.Background(), testJob(), workDir)
	require.NoError(t, err)
	assert.Equal(t, []string{"result.txt"}, outputNames(out))

	data, err := os.ReadFile(filepath.Join(workDir, "result.txt"))
	require.NoError(t, err)
	assert.Equal(t, "write a haiku\ntopic=autumn", string(data))
}

func TestShellRunner_Failures(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		wantReason string
	}{
		{"stderr wins", "echo boom >&2; exit 3", "boom"},
		{"exit code when stderr is empty", "exit 4", "sh exited with code 4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRunner(t, config.RunnerConfig{Kind: config.RunnerShell, Command: []string{"sh", "-c", tt.script}})

			_, err := r.Run(context.Background(), testJob(), t.TempDir())
			var cmdErr *domain.CommandError
			require.True(t, errors.As(err, &cmdErr))
			assert.Equal(t, tt.wantReason, cmdErr.Reason())
		})
	}
}

func TestRunCommand_Timeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := runCommand(ctx, "sh", "sh", t.TempDir(), []string{"-c", "exec sleep 10"})
	assert.ErrorIs(t, err, domain.ErrJobTimeout)
	assert.Less(t, time.Since(start), 8*time.Second)
}

func TestRunCommand_MissingBinary(t *testing.T) {
	_, err := runCommand(context.Background(), "ghost", filepath.Join(t.TempDir(), "ghost"), t.TempDir(), nil)
	require.Error(t, err)
	var cmdErr *domain.CommandError
	assert.False(t, errors.As(err, &cmdErr))
}
