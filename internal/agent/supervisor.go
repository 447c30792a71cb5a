package agent

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/nova/internal/logging"
	"github.com/ShayCichocki/nova/internal/metrics"
	"github.com/ShayCichocki/nova/pkg/models"
)

// Persister writes a task's terminal status and attempt record.
type Persister interface {
	Persist(ctx context.Context, id string, status models.TaskStatus, record *models.AttemptRecord) error
}

// Supervisor owns the lifecycle of one worker process per task.
type Supervisor struct {
	// Command is the worker binary, e.g. claude.
	Command string
	// Args precede the task prompt, which is always the last argument.
	Args []string
	// WorkDir is the worker's working directory.
	WorkDir string
	// LogDir receives one <task-id>.log per task, truncated per attempt.
	// Empty disables log capture.
	LogDir string
	// DefaultTimeout applies when a task sets none. Zero means no ceiling.
	DefaultTimeout time.Duration
	// KillGrace is the time between SIGTERM and SIGKILL on timeout.
	KillGrace time.Duration
	Pricing   metrics.Pricing
	Adapter   Persister
	Logger    *slog.Logger
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Result is the outcome of one supervised attempt.
type Result struct {
	TaskID  string
	Status  models.TaskStatus
	Record  models.AttemptRecord
	LogPath string
	// Err is the worker-level failure, nil when the task completed.
	Err error
	// PersistErr is set when the terminal persist failed.
	PersistErr error
}

func (s *Supervisor) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Supervisor) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return logging.Discard()
}

// LogPath returns where the output of taskID is captured, or "" when log
// capture is disabled.
func (s *Supervisor) LogPath(taskID string) string {
	return LogPath(s.LogDir, taskID)
}

// Run executes one attempt of task and persists its terminal status
// exactly once. Worker failures never surface as errors to the caller;
// they resolve to a failed Result.
func (s *Supervisor) Run(ctx context.Context, task *models.Task) Result {
	log := s.logger().With("task", task.ID)
	rec := models.AttemptRecord{
		Type:      models.RecordTypeMetrics,
		AttemptID: uuid.NewString(),
		StartedAt: s.now(),
		ExitCode:  -1,
	}

	logPath, logFile := s.openLog(task.ID, log)
	if logFile != nil {
		defer logFile.Close()
	}

	timeout := task.Timeout
	if timeout <= 0 {
		timeout = s.DefaultTimeout
	}
	args := append(append([]string{}, s.Args...), task.Prompt())

	var logWriter io.Writer = io.Discard
	if logFile != nil {
		logWriter = logFile
	}
	proc := runProcess(ctx, processSpec{
		Command:   s.Command,
		Args:      args,
		Dir:       s.WorkDir,
		Timeout:   timeout,
		KillGrace: s.KillGrace,
		Log:       logWriter,
		OnStart: func(pid int) {
			log.Info("worker started", "pid", pid, "attempt", rec.AttemptID, "timeout", timeout)
		},
	})

	rec.FinishedAt = s.now()
	rec.ExitCode = proc.ExitCode
	duration := rec.FinishedAt.Sub(rec.StartedAt).Seconds()
	s.classify(&rec, proc, duration, log)

	res := Result{
		TaskID:  task.ID,
		Status:  rec.Outcome,
		Record:  rec,
		LogPath: logPath,
		Err:     proc.Err,
	}
	if res.Status == models.TaskStatusFailed && res.Err == nil {
		res.Err = errors.New(rec.FailureReason)
	}

	// Persist even when ctx was cancelled so an interrupted attempt does
	// not leave the task stuck in_progress.
	if err := s.Adapter.Persist(context.WithoutCancel(ctx), task.ID, rec.Outcome, &rec); err != nil {
		log.Error("persist terminal status", "status", rec.Outcome, "error", err)
		res.PersistErr = err
	}

	log.Info("worker finished",
		"status", rec.Outcome,
		"exit_code", rec.ExitCode,
		"duration_s", fmt.Sprintf("%.1f", duration),
		"timed_out", rec.TimedOut,
		"reason", rec.FailureReason,
	)
	return res
}

// classify sets the outcome, failure reason and metrics of rec.
func (s *Supervisor) classify(rec *models.AttemptRecord, proc processResult, duration float64, log *slog.Logger) {
	if errors.Is(proc.Err, ErrSpawn) {
		rec.Outcome = models.TaskStatusFailed
		rec.FailureReason = proc.Err.Error()
		rec.Metrics = s.Pricing.Metrics(models.TokenUsage{}, duration)
		return
	}

	dec := metrics.NewClaudeDecoder(bytes.NewReader(proc.Stdout))
	usage, stats, parseErr := metrics.Extract(dec)
	if parseErr != nil {
		log.Warn("worker output not parseable", "error", parseErr, "malformed_lines", dec.Malformed())
	} else {
		log.Debug("extracted usage", "records", stats.Records, "total_tokens", usage.Total())
	}

	switch {
	case errors.Is(proc.Err, ErrTimeout):
		rec.Outcome = models.TaskStatusFailed
		rec.TimedOut = true
		rec.FailureReason = proc.Err.Error()
		rec.Metrics = s.Pricing.Metrics(usage, duration)
	case proc.Err != nil:
		rec.Outcome = models.TaskStatusFailed
		rec.FailureReason = proc.Err.Error()
		rec.Metrics = s.Pricing.Metrics(usage, duration)
	case parseErr != nil:
		rec.Outcome = models.TaskStatusFailed
		rec.FailureReason = "malformed output: " + parseErr.Error()
		rec.Metrics = nil
	default:
		rec.Outcome = models.TaskStatusCompleted
		rec.Metrics = s.Pricing.Metrics(usage, duration)
	}
}

// openLog truncates the task's log file. Capture failures are logged and
// the attempt proceeds without a log.
func (s *Supervisor) openLog(taskID string, log *slog.Logger) (string, *os.File) {
	path := s.LogPath(taskID)
	if path == "" {
		return "", nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.Warn("create log dir", "error", err)
		return "", nil
	}
	f, err := os.Create(path)
	if err != nil {
		log.Warn("create worker log", "error", err)
		return "", nil
	}
	return path, f
}
