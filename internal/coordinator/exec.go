package coordinator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// CommandRunner invokes an external collaborator and reports its exit code.
// The error return is reserved for failures to start at all; a non-zero exit
// comes back as (code, nil).
type CommandRunner interface {
	Run(ctx context.Context, argv []string) (exitCode int, err error)
}

// ExecRunner runs collaborators as real subprocesses. The child inherits the
// full environment (CUDA_VISIBLE_DEVICES and model-path variables included)
// and writes straight to this process's stdout/stderr so inference progress
// stays visible.
type ExecRunner struct {
	// Dir is the working directory for the child; empty means inherit.
	Dir string
}

func (r *ExecRunner) Run(ctx context.Context, argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, fmt.Errorf("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = os.Environ()
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 0, fmt.Errorf("start %s: %w", argv[0], err)
	}
	return 0, nil
}
