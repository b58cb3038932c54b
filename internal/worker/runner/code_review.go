package runner

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
)

var languageExtensions = map[string]string{
	"python":     ".py",
	"javascript": ".js",
	"typescript": ".ts",
	"go":         ".go",
	"rust":       ".rs",
}

// CodeReviewRunner writes params.code to an input file and asks Claude to
// review it into review.md.
type CodeReviewRunner struct {
	cliRunner
}

func (r *CodeReviewRunner) Run(ctx context.Context, job *domain.Job, workDir string) ([]domain.OutputFile, error) {
	code, _ := job.Params["code"].(string)
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: Missing or empty 'code' parameter", domain.ErrInvalidParams)
	}

	language, _ := job.Params["language"].(string)
	inputName := "input" + extensionFor(language)
	if err := os.WriteFile(filepath.Join(workDir, inputName), []byte(code), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", inputName, err)
	}

	stdout, err := r.exec(ctx, job, workDir, "--dangerously-skip-permissions", "-p", reviewPrompt(inputName, job.Prompt))
	if err != nil {
		return nil, err
	}

	return r.outputs(workDir, stdout, func(f domain.OutputFile) bool {
		base := path.Base(f.Name)
		return strings.TrimSuffix(base, path.Ext(base)) != "input"
	})
}

func extensionFor(language string) string {
	if ext, ok := languageExtensions[language]; ok {
		return ext
	}
	return ".txt"
}

func reviewPrompt(inputName, focus string) string {
	prompt := fmt.Sprintf("Review the code in %s. "+
		"Provide a structured review covering: correctness, security, "+
		"performance, readability, and suggestions. "+
		"Write the review to review.md.", inputName)
	if focus != "" {
		prompt += "\n\nAdditional focus: " + focus
	}
	return prompt
}

func (r *CodeReviewRunner) Name() string {
	return "code-review"
}
