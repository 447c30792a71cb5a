package graph

import (
	"errors"
	"testing"

	"github.com/ShayCichocki/nova/pkg/models"
)

func task(id string, status models.TaskStatus, deps ...string) *models.Task {
	return &models.Task{ID: id, Status: status, Dependencies: deps}
}

func TestBuild_UnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{task("a", models.TaskStatusPending, "ghost")})
	if !errors.Is(err, ErrUnknownDependency) {
		t.Fatalf("Build() error = %v, want ErrUnknownDependency", err)
	}
}

func TestBuild_Cycles(t *testing.T) {
	tests := []struct {
		name  string
		tasks []*models.Task
	}{
		{
			name:  "self dependency",
			tasks: []*models.Task{task("a", models.TaskStatusPending, "a")},
		},
		{
			name: "two node cycle",
			tasks: []*models.Task{
				task("a", models.TaskStatusPending, "b"),
				task("b", models.TaskStatusPending, "a"),
			},
		},
		{
			name: "cycle behind a chain",
			tasks: []*models.Task{
				task("a", models.TaskStatusPending),
				task("b", models.TaskStatusPending, "a", "d"),
				task("c", models.TaskStatusPending, "b"),
				task("d", models.TaskStatusPending, "c"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			err := g.Build(tt.tasks)
			if !errors.Is(err, ErrCycleDetected) {
				t.Fatalf("Build() error = %v, want ErrCycleDetected", err)
			}
			cycle := g.FindCycle()
			if len(cycle) < 2 || cycle[0] != cycle[len(cycle)-1] {
				t.Errorf("FindCycle() = %v, want closed path", cycle)
			}
		})
	}
}

func TestGetReady(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{
		task("a", models.TaskStatusCompleted),
		task("b", models.TaskStatusPending, "a"),
		task("c", models.TaskStatusPending, "a", "d"),
		task("d", models.TaskStatusInProgress),
		task("e", models.TaskStatusFailed),
		task("f", models.TaskStatusPending, "e"),
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	ready := g.GetReady()
	if len(ready) != 1 || ready[0] != "b" {
		t.Errorf("GetReady() = %v, want [b]", ready)
	}
	if !g.IsBlocked("c") || !g.IsBlocked("f") {
		t.Error("c and f should be blocked")
	}
	if g.IsBlocked("b") || g.IsBlocked("d") {
		t.Error("b and d should not be blocked")
	}
}

func TestTopologicalSort(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{
		task("c", models.TaskStatusPending, "b"),
		task("b", models.TaskStatusPending, "a"),
		task("a", models.TaskStatusPending),
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	order, err := g.TopologicalSort()
	if err != nil {
		t.Fatalf("TopologicalSort() error = %v", err)
	}
	pos := make(map[string]int)
	for i, id := range order {
		pos[id] = i
	}
	if !(pos["a"] < pos["b"] && pos["b"] < pos["c"]) {
		t.Errorf("TopologicalSort() = %v, dependencies out of order", order)
	}
}

func TestGetDependencies(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{
		task("a", models.TaskStatusPending),
		task("b", models.TaskStatusPending, "a", "a"),
		task("c", models.TaskStatusPending, "a"),
	})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if got := g.GetDependencies("b"); len(got) != 1 {
		t.Errorf("GetDependencies(b) = %v, duplicate edge not collapsed", got)
	}
	if got := g.GetDependencies("c"); len(got) != 1 || got[0] != "a" {
		t.Errorf("GetDependencies(c) = %v, want [a]", got)
	}
}
