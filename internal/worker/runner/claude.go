package runner

import (
	"context"
	"strconv"

	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
)

const defaultClaudeSystemPrompt = `You are running as an unattended job executor.
Work only inside the current directory. Write every deliverable as a file in
the current directory. Do not ask questions; make reasonable assumptions and
note them in your output.`

// ClaudeRunner runs the Claude Code CLI with the executor system prompt
// appended to its own.
type ClaudeRunner struct {
	cliRunner
	maxTurns     int
	systemPrompt string
}

func (r *ClaudeRunner) Run(ctx context.Context, job *domain.Job, workDir string) ([]domain.OutputFile, error) {
	stdout, err := r.exec(ctx, job, workDir,
		"--dangerously-skip-permissions",
		"--append-system-prompt", r.systemPrompt,
		"--max-turns", strconv.Itoa(r.maxTurns),
		"-p", BuildPrompt(job),
	)
	if err != nil {
		return nil, err
	}
	return r.outputs(workDir, stdout, nil)
}
