// Package toolexec runs external diagnostic tools (traceroute, ping) and
// captures their output.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

type Output struct {
	Command  string `json:"command"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode int    `json:"exit_code"`
}

func (o Output) OK() bool { return o.ExitCode == 0 }

type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string, args ...string) (Output, error)

func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) (Output, error) {
	return f(ctx, name, args...)
}

// Exec runs commands on the local host. A non-zero exit is reported in
// Output.ExitCode, not as an error; errors mean the command could not run.
type Exec struct{}

func (Exec) Run(ctx context.Context, name string, args ...string) (Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	out := Output{Command: cmd.String()}
	err := cmd.Run()
	out.Stdout = stdout.String()
	out.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.ExitCode = exitErr.ExitCode()
	default:
		return out, fmt.Errorf("run %s: %w", name, err)
	}
	return out, nil
}
