// Package agent supervises the worker processes that carry out tasks.
package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

var (
	// ErrSpawn indicates the worker process could not be started.
	ErrSpawn = errors.New("spawn worker")
	// ErrTimeout indicates the worker exceeded its ceiling and was killed.
	ErrTimeout = errors.New("worker timed out")
	// ErrInterrupted indicates the supervisor's context was cancelled while
	// the worker ran.
	ErrInterrupted = errors.New("worker interrupted")
)

// defaultKillGrace is the time between SIGTERM and SIGKILL.
const defaultKillGrace = 10 * time.Second

// lockedWriter serializes writes from the stdout and stderr copiers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

// processSpec describes one worker invocation.
type processSpec struct {
	Command   string
	Args      []string
	Dir       string
	Timeout   time.Duration
	KillGrace time.Duration
	// Log receives stdout and stderr as they arrive.
	Log io.Writer
	// OnStart is called with the pid once the process is running.
	OnStart func(pid int)
}

// processResult is the raw outcome of a worker invocation.
type processResult struct {
	Stdout   []byte
	ExitCode int
	// Err is nil on a zero exit. It wraps ErrSpawn, ErrTimeout or
	// ErrInterrupted, or is the *exec.ExitError of a non-zero exit.
	Err error
}

// runProcess starts the worker in its own process group and waits for it.
// When the timeout or ctx fires the group receives SIGTERM, then SIGKILL
// once the grace period has passed.
func runProcess(ctx context.Context, spec processSpec) processResult {
	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if spec.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
	}
	defer cancel()

	grace := spec.KillGrace
	if grace <= 0 {
		grace = defaultKillGrace
	}

	log := spec.Log
	if log == nil {
		log = io.Discard
	}
	shared := &lockedWriter{w: log}
	var stdout bytes.Buffer

	cmd := exec.CommandContext(runCtx, spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Stdout = io.MultiWriter(&stdout, shared)
	cmd.Stderr = shared
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
	}
	cmd.WaitDelay = grace

	if err := cmd.Start(); err != nil {
		return processResult{ExitCode: -1, Err: fmt.Errorf("%w: %w", ErrSpawn, err)}
	}
	if spec.OnStart != nil {
		spec.OnStart(cmd.Process.Pid)
	}

	waitErr := cmd.Wait()
	res := processResult{Stdout: stdout.Bytes(), ExitCode: -1}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}
	if waitErr == nil {
		return res
	}

	if runCtx.Err() != nil {
		// Reap anything in the group that survived SIGTERM.
		_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if ctx.Err() != nil {
			res.Err = fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
		} else {
			res.Err = fmt.Errorf("%w after %s", ErrTimeout, spec.Timeout)
		}
		return res
	}
	res.Err = waitErr
	return res
}
