package exec

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestExecRunner_Run(t *testing.T) {
	r := NewRunner()

	out, err := r.Run(context.Background(), t.TempDir(), "sh", "-c", "echo out; echo err >&2")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if strings.TrimSpace(string(out)) != "out" {
		t.Errorf("Run() stdout = %q, stderr must not be mixed in", out)
	}
}

func TestExecRunner_RunFailure(t *testing.T) {
	r := NewRunner()

	_, err := r.Run(context.Background(), "", "sh", "-c", "echo boom >&2; exit 3")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Run() error = %v, want *CommandError", err)
	}
	if cmdErr.ExitCode != 3 || !cmdErr.Started() {
		t.Errorf("ExitCode = %d, want 3", cmdErr.ExitCode)
	}
	if !strings.Contains(cmdErr.Error(), "boom") {
		t.Errorf("Error() = %q, want stderr included", cmdErr.Error())
	}
}

func TestExecRunner_MissingBinary(t *testing.T) {
	r := NewRunner()

	_, err := r.Run(context.Background(), "", "nova-definitely-not-installed")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("Run() error = %v, want *CommandError", err)
	}
	if cmdErr.Started() {
		t.Error("missing binary should report not started")
	}
	if _, err := r.LookPath("nova-definitely-not-installed"); err == nil {
		t.Error("LookPath() should fail for a missing binary")
	}
}
