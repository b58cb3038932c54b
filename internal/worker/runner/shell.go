package runner

import (
	"context"

	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
)

// ShellRunner runs a configured command with the built prompt as its last
// argument.
type ShellRunner struct {
	cliRunner
	args []string
}

func (r *ShellRunner) Run(ctx context.Context, job *domain.Job, workDir string) ([]domain.OutputFile, error) {
	args := append(append([]string{}, r.args...), BuildPrompt(job))

	stdout, err := r.exec(ctx, job, workDir, args...)
	if err != nil {
		return nil, err
	}
	return r.outputs(workDir, stdout, nil)
}
