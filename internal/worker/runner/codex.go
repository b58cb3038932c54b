package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
)

// CodexScaffoldName is the instructions file seeded into codex work dirs.
// It is never uploaded.
const CodexScaffoldName = "CODEX.md"

const defaultCodexScaffold = `# Executor instructions

You are running as an unattended job executor. Work only inside this
directory and write every deliverable as a file here. Do not edit this file.
`

// CodexRunner runs "codex exec" after seeding the instructions file.
type CodexRunner struct {
	cliRunner
	scaffold string
}

func (r *CodexRunner) Run(ctx context.Context, job *domain.Job, workDir string) ([]domain.OutputFile, error) {
	if err := os.WriteFile(filepath.Join(workDir, CodexScaffoldName), []byte(r.scaffold), 0o644); err != nil {
		return nil, fmt.Errorf("failed to seed %s: %w", CodexScaffoldName, err)
	}

	stdout, err := r.exec(ctx, job, workDir, "exec", "--yolo", BuildPrompt(job))
	if err != nil {
		return nil, err
	}
	return r.outputs(workDir, stdout, nil)
}
