// Package command adapts external package-manager invocations to the engine's
// work unit contract. Each work unit runs one process and captures its
// combined output.
package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
)

// WorkUnit executes a single external command. The zero value is not usable;
// Name must be set.
type WorkUnit struct {
	// Name is the program to run, resolved via PATH when not absolute.
	Name string

	// Args are passed to the program verbatim.
	Args []string

	// Dir is the working directory; empty means the engine's own.
	Dir string

	// Env entries are appended to the engine's environment.
	Env []string
}

// New creates a work unit for the given command line.
func New(name string, args ...string) *WorkUnit {
	return &WorkUnit{Name: name, Args: args}
}

// Execute runs the command and returns its combined stdout and stderr.
// Cancellation of ctx kills the process; the context error is surfaced so the
// caller sees a timeout instead of "signal: killed".
func (w *WorkUnit) Execute(ctx context.Context) ([]byte, error) {
	cmd := exec.CommandContext(ctx, w.Name, w.Args...)
	cmd.Dir = w.Dir
	if len(w.Env) > 0 {
		cmd.Env = append(os.Environ(), w.Env...)
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return output, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, fmt.Errorf("command %q exited with code %d", w.Name, exitErr.ExitCode())
		}
		return output, fmt.Errorf("command %q failed: %w", w.Name, err)
	}
	return output, nil
}
