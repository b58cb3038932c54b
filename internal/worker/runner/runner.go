package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/cuongbtq/agent-jobs/internal/config"
	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
	"github.com/cuongbtq/agent-jobs/internal/worker/files"
)

// TaskRunner executes one job inside its work directory and returns the
// files to upload. An empty result means the job produced no output.
type TaskRunner interface {
	Name() string
	Run(ctx context.Context, job *domain.Job, workDir string) ([]domain.OutputFile, error)
}

// New builds the runner selected by cfg.Kind.
func New(cfg config.RunnerConfig, logger *slog.Logger) (TaskRunner, error) {
	base := cliRunner{
		logger:    logger,
		collector: files.NewCollector(logger),
	}

	switch cfg.Kind {
	case config.RunnerClaude:
		prompt, err := loadSystemPrompt(cfg.SystemPromptFile, defaultClaudeSystemPrompt)
		if err != nil {
			return nil, err
		}
		base.name, base.binary, base.fallback = "claude", binaryOr(cfg.Binary, "claude"), "response.txt"
		return &ClaudeRunner{cliRunner: base, maxTurns: cfg.MaxTurns, systemPrompt: prompt}, nil

	case config.RunnerCodex:
		scaffold, err := loadSystemPrompt(cfg.SystemPromptFile, defaultCodexScaffold)
		if err != nil {
			return nil, err
		}
		base.name, base.binary, base.fallback = "codex", binaryOr(cfg.Binary, "codex"), "response.txt"
		base.exclude = []string{CodexScaffoldName}
		return &CodexRunner{cliRunner: base, scaffold: scaffold}, nil

	case config.RunnerGemini:
		base.name, base.binary, base.fallback = "gemini", binaryOr(cfg.Binary, "gemini"), "response.txt"
		return &GeminiRunner{cliRunner: base}, nil

	case config.RunnerCodeReview:
		base.name, base.binary, base.fallback = "claude", binaryOr(cfg.Binary, "claude"), "review.md"
		return &CodeReviewRunner{cliRunner: base}, nil

	case config.RunnerShell:
		if len(cfg.Command) == 0 {
			return nil, fmt.Errorf("shell runner requires a command")
		}
		base.name, base.binary, base.fallback = cfg.Command[0], cfg.Command[0], "output.txt"
		return &ShellRunner{cliRunner: base, args: cfg.Command[1:]}, nil
	}

	return nil, fmt.Errorf("unsupported runner kind: %q", cfg.Kind)
}

// BuildPrompt appends the job params to the prompt as one line of
// key=value pairs. Non-string values are JSON encoded and keys are sorted.
func BuildPrompt(job *domain.Job) string {
	if len(job.Params) == 0 {
		return job.Prompt
	}

	keys := make([]string, 0, len(job.Params))
	for k := range job.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+renderParam(job.Params[k]))
	}

	return job.Prompt + "\n" + strings.Join(parts, " ")
}

func renderParam(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

// cliRunner holds what every command line flavor shares.
type cliRunner struct {
	name      string
	binary    string
	fallback  string
	exclude   []string
	logger    *slog.Logger
	collector *files.Collector
}

func (r *cliRunner) Name() string {
	return r.name
}

func (r *cliRunner) exec(ctx context.Context, job *domain.Job, workDir string, args ...string) (string, error) {
	r.logger.Info("Running command",
		slog.String("runner", r.name),
		slog.String("job_id", job.JobID),
		slog.String("binary", r.binary),
	)
	return runCommand(ctx, r.name, r.binary, workDir, args)
}

// outputs returns the collected work dir files, or the fallback file holding
// stdout when the command wrote nothing.
func (r *cliRunner) outputs(workDir, stdout string, keep func(domain.OutputFile) bool) ([]domain.OutputFile, error) {
	collected, err := r.collector.Collect(workDir, r.exclude...)
	if err != nil {
		return nil, err
	}

	if keep != nil {
		filtered := collected[:0]
		for _, f := range collected {
			if keep(f) {
				filtered = append(filtered, f)
			}
		}
		collected = filtered
	}

	if len(collected) > 0 {
		return collected, nil
	}

	return files.WriteFallback(workDir, r.fallback, stdout)
}

func binaryOr(binary, fallback string) string {
	if binary != "" {
		return binary
	}
	return fallback
}

func loadSystemPrompt(path, fallback string) (string, error) {
	if path == "" {
		return fallback, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read system prompt file: %w", err)
	}
	return string(data), nil
}
