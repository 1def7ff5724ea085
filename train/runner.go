package train

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner runs an external program to completion.
type Runner interface {
	// Run runs name with args, writing the combined stdout and stderr to output.
	Run(ctx context.Context, name string, args []string, output io.Writer) error
}

// ExecRunner runs programs as child processes. Cancelling the context kills the process.
type ExecRunner struct {
	Dir string   // Working directory; empty selects the current directory.
	Env []string // Additional environment, appended to the inherited one.
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, name string, args []string, output io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	cmd.Stdout = output
	cmd.Stderr = output

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s %s: %w", name, strings.Join(firstArgs(args, 2), " "), err)
	}
	return nil
}

func firstArgs(args []string, n int) []string {
	if len(args) < n {
		return args
	}
	return args[:n]
}
