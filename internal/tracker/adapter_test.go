package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ShayCichocki/nova/pkg/models"
)

func intPtr(i int) *int { return &i }

func newSource() *MemorySource {
	src := NewMemorySource()
	src.AddRoot("epic", "Test Epic")
	return src
}

func TestAdapter_LoadHierarchy(t *testing.T) {
	src := newSource()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	src.AddTask("epic", RawNode{ID: "a", Title: "A", CreatedAt: base})
	src.AddTask("epic", RawNode{ID: "b", Title: "B", CreatedAt: base.Add(time.Minute)}, "a")
	src.AddTask("epic", RawNode{ID: "c", Title: "C", CreatedAt: base.Add(2 * time.Minute)}, "a", "epic")
	src.SetGroup("c", "api")
	src.SetBranch("a", "setup")

	snap, err := NewAdapter(src, nil).Load(context.Background(), "epic")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if snap.RootTitle != "Test Epic" || snap.Len() != 3 {
		t.Fatalf("snapshot = %q with %d tasks", snap.RootTitle, snap.Len())
	}

	tests := []struct {
		id   string
		want models.HierarchyPath
	}{
		{"a", models.HierarchyPath{Level0: "epic", Level1: "setup", Level2: "all"}},
		{"b", models.HierarchyPath{Level0: "epic", Level1: "layer-2", Level2: "all"}},
		{"c", models.HierarchyPath{Level0: "epic", Level1: "layer-2", Level2: "api"}},
	}
	for _, tt := range tests {
		if got := snap.Task(tt.id).Path; got != tt.want {
			t.Errorf("Path(%s) = %+v, want %+v", tt.id, got, tt.want)
		}
	}

	if deps := snap.Task("c").Dependencies; len(deps) != 1 || deps[0] != "a" {
		t.Errorf("c dependencies = %v, edge to root must be dropped", deps)
	}
	if got := snap.Branches(); len(got) != 2 || got[0] != "setup" || got[1] != "layer-2" {
		t.Errorf("Branches() = %v", got)
	}
	if got := snap.Groups(); len(got) != 3 {
		t.Errorf("Groups() = %v, want 3 keys", got)
	}
}

func TestAdapter_LoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*MemorySource)
		root    string
		wantErr error
	}{
		{
			name:    "unknown root",
			setup:   func(*MemorySource) {},
			root:    "missing",
			wantErr: ErrNotFound,
		},
		{
			name: "self dependency",
			setup: func(src *MemorySource) {
				src.AddTask("epic", RawNode{ID: "a"}, "a")
			},
			root:    "epic",
			wantErr: ErrCyclicGraph,
		},
		{
			name: "cycle",
			setup: func(src *MemorySource) {
				src.AddTask("epic", RawNode{ID: "a"}, "c")
				src.AddTask("epic", RawNode{ID: "b"}, "a")
				src.AddTask("epic", RawNode{ID: "c"}, "b")
			},
			root:    "epic",
			wantErr: ErrCyclicGraph,
		},
		{
			name: "edge leaving the graph",
			setup: func(src *MemorySource) {
				src.AddTask("epic", RawNode{ID: "a"}, "elsewhere")
			},
			root:    "epic",
			wantErr: ErrInvalidGraph,
		},
		{
			name: "store down",
			setup: func(src *MemorySource) {
				src.SetGraphError(fmt.Errorf("%w: connection refused", ErrUnavailable))
			},
			root:    "epic",
			wantErr: ErrUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newSource()
			tt.setup(src)
			_, err := NewAdapter(src, nil).Load(context.Background(), tt.root)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Load() error = %v, want %v", err, tt.wantErr)
			}
			var te *Error
			if !errors.As(err, &te) || te.Op != "load" || te.ID != tt.root {
				t.Errorf("Load() error = %#v, want *Error{Op: load}", err)
			}
		})
	}
}

func TestAdapter_CycleInLargeGraph(t *testing.T) {
	src := newSource()
	for i := 0; i < 10; i++ {
		var deps []string
		if i > 0 {
			deps = append(deps, fmt.Sprintf("t%d", i-1))
		}
		if i == 2 {
			deps = append(deps, "t7")
		}
		src.AddTask("epic", RawNode{ID: fmt.Sprintf("t%d", i)}, deps...)
	}

	_, err := NewAdapter(src, nil).Load(context.Background(), "epic")
	if !errors.Is(err, ErrCyclicGraph) {
		t.Fatalf("Load() error = %v, want ErrCyclicGraph", err)
	}
}

func TestAdapter_DecodeRecords(t *testing.T) {
	src := newSource()
	node := RawNode{ID: "a", Status: models.TaskStatusCompleted}
	node.Records = []json.RawMessage{
		json.RawMessage(`{"type":"metrics","attempt_id":"x1","outcome":"failed","metrics":null}`),
		json.RawMessage(`{"type":"note","text":"hello"}`),
		json.RawMessage(`{"type":"metrics","attempt_id":42}`),
		json.RawMessage(`{"type":"metrics","token_usage":{"input_tokens":100,"output_tokens":50},"cost_usd":0.001,"duration_seconds":10}`),
	}
	src.AddTask("epic", node)

	snap, err := NewAdapter(src, nil).Load(context.Background(), "epic")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	attempts := snap.Task("a").Attempts
	if len(attempts) != 2 {
		t.Fatalf("Attempts = %+v, want 2 decoded records", attempts)
	}
	if attempts[0].AttemptID != "x1" || attempts[0].Metrics != nil {
		t.Errorf("first attempt = %+v", attempts[0])
	}
	legacy := attempts[1]
	if legacy.Metrics == nil || legacy.Metrics.TokenUsage.Input != 100 || legacy.Metrics.DurationSeconds != 10 {
		t.Errorf("legacy attempt = %+v", legacy)
	}
	if legacy.Outcome != models.TaskStatusCompleted {
		t.Errorf("legacy outcome = %s, want completed", legacy.Outcome)
	}
}

func TestSnapshot_ReadyAndDisplay(t *testing.T) {
	src := newSource()
	src.AddTask("epic", RawNode{ID: "a", Status: models.TaskStatusCompleted})
	src.AddTask("epic", RawNode{ID: "b"}, "a")
	src.AddTask("epic", RawNode{ID: "c"}, "b")
	src.AddTask("epic", RawNode{ID: "d", Status: models.TaskStatusInProgress})

	snap, err := NewAdapter(src, nil).Load(context.Background(), "epic")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	ready := snap.Ready()
	if len(ready) != 1 || ready[0].ID != "b" {
		t.Errorf("Ready() = %v, want [b]", ready)
	}
	if got := snap.DisplayStatus(snap.Task("c")); got != models.TaskStatusBlocked {
		t.Errorf("DisplayStatus(c) = %s, want blocked", got)
	}
	if got := snap.DisplayStatus(snap.Task("b")); got != models.TaskStatusPending {
		t.Errorf("DisplayStatus(b) = %s, want pending", got)
	}
	if got := snap.InProgress(); len(got) != 1 || got[0].ID != "d" {
		t.Errorf("InProgress() = %v", got)
	}
}

func TestAdapter_PersistOrder(t *testing.T) {
	src := newSource()
	src.AddTask("epic", RawNode{ID: "a"})
	a := NewAdapter(src, nil)
	ctx := context.Background()

	if err := a.Persist(ctx, "a", models.TaskStatusInProgress, nil); err != nil {
		t.Fatalf("Persist(in_progress) error = %v", err)
	}
	rec := &models.AttemptRecord{AttemptID: "r1", Outcome: models.TaskStatusCompleted, Metrics: &models.Metrics{}}
	if err := a.Persist(ctx, "a", models.TaskStatusCompleted, rec); err != nil {
		t.Fatalf("Persist(completed) error = %v", err)
	}

	calls := src.Calls()
	want := []Call{
		{Op: "update_status", ID: "a", Status: models.TaskStatusInProgress},
		{Op: "append_metrics", ID: "a"},
		{Op: "update_status", ID: "a", Status: models.TaskStatusCompleted},
	}
	if len(calls) != len(want) {
		t.Fatalf("Calls() = %+v, want %+v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}

	var stored models.AttemptRecord
	if err := json.Unmarshal(src.Records("a")[0], &stored); err != nil {
		t.Fatalf("stored record: %v", err)
	}
	if stored.Type != models.RecordTypeMetrics || stored.AttemptID != "r1" {
		t.Errorf("stored record = %+v", stored)
	}
}

func TestAdapter_PersistRejectsInvalidTransition(t *testing.T) {
	src := newSource()
	src.AddTask("epic", RawNode{ID: "a", Status: models.TaskStatusCompleted})
	a := NewAdapter(src, nil)

	err := a.Persist(context.Background(), "a", models.TaskStatusInProgress, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Persist() error = %v, want ErrInvalidTransition", err)
	}
	if err := a.Persist(context.Background(), "a", models.TaskStatusBlocked, nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("Persist(blocked) error = %v, want ErrInvalidTransition", err)
	}
	if src.Status("a") != models.TaskStatusCompleted {
		t.Errorf("status changed to %s", src.Status("a"))
	}
}

func TestAdapter_Reopen(t *testing.T) {
	src := newSource()
	src.AddTask("epic", RawNode{ID: "a", Status: models.TaskStatusFailed, Priority: intPtr(1)})
	src.AddTask("epic", RawNode{ID: "b", Status: models.TaskStatusCompleted})
	a := NewAdapter(src, nil)
	ctx := context.Background()

	if err := a.Reopen(ctx, "a"); err != nil {
		t.Fatalf("Reopen(a) error = %v", err)
	}
	if err := a.Reopen(ctx, "b"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Reopen(b) error = %v, want ErrInvalidTransition", err)
	}
	if err := a.Reopen(ctx, "zzz"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Reopen(zzz) error = %v, want ErrNotFound", err)
	}

	snap, err := a.Load(ctx, "epic")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	task := snap.Task("a")
	if task.Status != models.TaskStatusPending || task.RetryCount != 1 {
		t.Errorf("reopened task = %s retry %d", task.Status, task.RetryCount)
	}
}
