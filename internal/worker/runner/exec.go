package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/cuongbtq/agent-jobs/internal/worker/domain"
)

// waitDelay bounds how long output pipes may linger after the process is
// killed.
const waitDelay = 5 * time.Second

// runCommand runs binary in dir and returns its stdout. The process is
// killed when ctx expires.
func runCommand(ctx context.Context, name, binary, dir string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.String(), nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", domain.ErrJobTimeout
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("%s interrupted: %w", name, ctx.Err())
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return "", &domain.CommandError{
			Name:     name,
			ExitCode: exitErr.ExitCode(),
			Stderr:   strings.TrimSpace(stderr.String()),
		}
	}

	return "", fmt.Errorf("failed to start %s: %w", name, err)
}
