// Package exec provides an interface for command execution.
package exec

import (
	"context"
	"fmt"
	"strings"
)

// CommandRunner defines the interface for running external commands.
// This abstraction allows mocking command execution in tests.
type CommandRunner interface {
	// Run executes a command and returns its stdout. When the command
	// cannot start or exits non-zero the error is a *CommandError.
	// The working directory is set to workDir if non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) (stdout []byte, err error)

	// LookPath reports where the named binary resolves on PATH.
	LookPath(name string) (string, error)
}

// CommandError describes a failed command invocation.
type CommandError struct {
	Name string
	Args []string
	// ExitCode is -1 when the command never started.
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Name, strings.Join(e.Args, " "), e.Err)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg += ": " + stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Started reports whether the process was launched at all.
func (e *CommandError) Started() bool {
	return e.ExitCode >= 0
}
