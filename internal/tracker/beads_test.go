package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ShayCichocki/nova/internal/exec"
	"github.com/ShayCichocki/nova/pkg/models"
)

// fakeRunner answers bd invocations from a table keyed by joined args.
type fakeRunner struct {
	mu        sync.Mutex
	responses map[string]string
	failures  map[string]error
	calls     []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{responses: make(map[string]string), failures: make(map[string]error)}
}

func (f *fakeRunner) Run(ctx context.Context, workDir, name string, args ...string) ([]byte, error) {
	key := strings.Join(args, " ")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, key)
	if err, ok := f.failures[key]; ok {
		return nil, err
	}
	if out, ok := f.responses[key]; ok {
		return []byte(out), nil
	}
	return []byte("[]"), nil
}

func (f *fakeRunner) LookPath(name string) (string, error) {
	return "/usr/local/bin/" + name, nil
}

func (f *fakeRunner) called(prefix string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

const sampleGraph = `{
  "root": {"id": "Nova-abc", "title": "Test Epic", "status": "open"},
  "issues": [
    {"id": "Nova-abc", "title": "Test Epic", "status": "open"},
    {"id": "Nova-abc.1", "title": "Task 1", "status": "closed", "priority": 2,
     "created_at": "2026-01-31T10:00:00", "labels": ["group:backend"]},
    {"id": "Nova-abc.2", "title": "Task 2", "description": "do the thing", "status": "blocked",
     "priority": 1, "created_at": "2026-01-31T10:05:00Z", "labels": ["timeout:90s", "timeout:bogus"]},
    {"id": "Nova-abc.3", "title": "Task 3", "status": "deferred"}
  ],
  "layout": {
    "Layers": [["Nova-abc"], ["Nova-abc.1"], ["Nova-abc.2", "Nova-abc.3"]],
    "Nodes": {
      "Nova-abc": {"DependsOn": []},
      "Nova-abc.1": {"DependsOn": null},
      "Nova-abc.2": {"DependsOn": ["Nova-abc.1"]},
      "Nova-abc.3": {"DependsOn": ["Nova-abc.1"]}
    }
  }
}`

func TestBeadsSource_Graph(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["graph Nova-abc --json"] = sampleGraph
	runner.responses["comments Nova-abc.2 --json"] = `[
	  {"text": "looks hard"},
	  {"text": "{\"type\":\"metrics\",\"attempt_id\":\"a1\",\"outcome\":\"failed\",\"metrics\":null}"},
	  {"text": "{\"type\":\"reopen\",\"at\":\"2026-01-31T11:00:00Z\"}"},
	  {"text": "{\"type\":\"reopen\",\"at\":\"2026-01-31T12:00:00Z\"}"}
	]`
	runner.responses["comments Nova-abc.3 --json"] = "null"

	src := NewBeadsSource(runner, BeadsConfig{Concurrency: 2}, nil)
	snap, err := NewAdapter(src, nil).Load(context.Background(), "Nova-abc")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if snap.Len() != 3 {
		t.Fatalf("Len() = %d, want 3 (root excluded)", snap.Len())
	}

	t1 := snap.Task("Nova-abc.1")
	if t1.Status != models.TaskStatusCompleted || t1.Path.Level1 != "layer-1" || t1.Path.Level2 != "backend" {
		t.Errorf("task 1 = %s %+v", t1.Status, t1.Path)
	}
	if t1.CreatedAt.IsZero() {
		t.Error("task 1 created_at without zone should still parse")
	}

	t2 := snap.Task("Nova-abc.2")
	if t2.Status != models.TaskStatusFailed {
		t.Errorf("blocked bead should map to failed, got %s", t2.Status)
	}
	if t2.Timeout != 90*time.Second {
		t.Errorf("Timeout = %v, want 90s", t2.Timeout)
	}
	if t2.RetryCount != 2 || len(t2.Attempts) != 1 {
		t.Errorf("retry = %d attempts = %d, want 2 and 1", t2.RetryCount, len(t2.Attempts))
	}
	if t2.Prompt() != "do the thing" || t2.Priority == nil || *t2.Priority != 1 {
		t.Errorf("task 2 prompt/priority = %q %v", t2.Prompt(), t2.Priority)
	}
	if t2.Path.Level1 != "layer-2" || t2.Path.Level2 != DefaultGroup {
		t.Errorf("task 2 path = %+v", t2.Path)
	}

	if got := snap.Task("Nova-abc.3").Status; got != models.TaskStatusPending {
		t.Errorf("deferred bead should map to pending, got %s", got)
	}
	if got := len(runner.called("comments Nova-abc ")); got != 0 {
		t.Errorf("root comments fetched %d times", got)
	}
}

func TestBeadsSource_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{
			name: "unknown root",
			err: &exec.CommandError{Name: "bd", ExitCode: 1, Stderr: "Error: issue Nova-zzz not found",
				Err: errors.New("exit status 1")},
			wantErr: ErrNotFound,
		},
		{
			name:    "binary missing",
			err:     &exec.CommandError{Name: "bd", ExitCode: -1, Err: errors.New("executable file not found")},
			wantErr: ErrUnavailable,
		},
		{
			name: "database locked",
			err: &exec.CommandError{Name: "bd", ExitCode: 1, Stderr: "database is locked",
				Err: errors.New("exit status 1")},
			wantErr: ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newFakeRunner()
			runner.failures["graph Nova-zzz --json"] = tt.err
			src := NewBeadsSource(runner, BeadsConfig{}, nil)
			_, err := src.Graph(context.Background(), "Nova-zzz")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Graph() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestBeadsSource_EmptyRoot(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["graph Nova-zzz --json"] = `{}`
	src := NewBeadsSource(runner, BeadsConfig{}, nil)
	if _, err := src.Graph(context.Background(), "Nova-zzz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Graph() error = %v, want ErrNotFound", err)
	}
}

func TestBeadsSource_Writes(t *testing.T) {
	runner := newFakeRunner()
	runner.responses["show Nova-abc.1 --json"] = `[{"id":"Nova-abc.1","status":"blocked"}]`
	src := NewBeadsSource(runner, BeadsConfig{}, nil)
	src.nowFunc = func() time.Time { return time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	status, err := src.TaskStatus(ctx, "Nova-abc.1")
	if err != nil || status != models.TaskStatusFailed {
		t.Fatalf("TaskStatus() = %s, %v", status, err)
	}
	if _, err := src.TaskStatus(ctx, "Nova-abc.9"); !errors.Is(err, ErrNotFound) {
		t.Errorf("TaskStatus(unknown) error = %v, want ErrNotFound", err)
	}

	for _, s := range []models.TaskStatus{
		models.TaskStatusInProgress, models.TaskStatusCompleted, models.TaskStatusFailed,
	} {
		if err := src.UpdateStatus(ctx, "Nova-abc.1", s); err != nil {
			t.Fatalf("UpdateStatus(%s) error = %v", s, err)
		}
	}
	if err := src.AppendMetrics(ctx, "Nova-abc.1", []byte(`{"type":"metrics"}`)); err != nil {
		t.Fatalf("AppendMetrics() error = %v", err)
	}
	if err := src.Reopen(ctx, "Nova-abc.1"); err != nil {
		t.Fatalf("Reopen() error = %v", err)
	}

	want := []string{
		"show Nova-abc.1 --json",
		"show Nova-abc.9 --json",
		"update Nova-abc.1 --status=in_progress",
		"close Nova-abc.1",
		"update Nova-abc.1 --status=blocked",
		`comments add Nova-abc.1 {"type":"metrics"}`,
		"update Nova-abc.1 --status=open",
		`comments add Nova-abc.1 {"at":"2026-02-01T00:00:00Z","type":"reopen"}`,
	}
	if fmt.Sprint(runner.calls) != fmt.Sprint(want) {
		t.Errorf("calls =\n%v\nwant\n%v", runner.calls, want)
	}
}
