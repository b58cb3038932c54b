package runner

import (
	"context"

	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
)

// GeminiRunner runs the Gemini CLI in non-interactive mode.
type GeminiRunner struct {
	cliRunner
}

func (r *GeminiRunner) Run(ctx context.Context, job *domain.Job, workDir string) ([]domain.OutputFile, error) {
	stdout, err := r.exec(ctx, job, workDir, "-p", BuildPrompt(job), "--yolo")
	if err != nil {
		return nil, err
	}
	return r.outputs(workDir, stdout, nil)
}
