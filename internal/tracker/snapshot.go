package tracker

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ShayCichocki/nova/internal/graph"
	"github.com/ShayCichocki/nova/pkg/models"
)

// Snapshot is the task set of one root as loaded at the start of a tick.
// It is read-only once built and is passed explicitly through the
// scheduler, rollup and projection instead of living in a shared cache.
type Snapshot struct {
	// RootID is the root the snapshot was loaded for.
	RootID string
	// RootTitle is the root's display title.
	RootTitle string

	tasks []*models.Task
	byID  map[string]*models.Task
	graph *graph.DependencyGraph
	topo  []string
}

// NewSnapshot orders tasks by creation time then listing sequence and
// validates their dependencies. Returns ErrInvalidGraph for a dependency on
// an unknown task and ErrCyclicGraph for a cycle, including a self-edge.
func NewSnapshot(rootID, rootTitle string, tasks []*models.Task) (*Snapshot, error) {
	ordered := make([]*models.Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.Seq < b.Seq
	})

	g := graph.New()
	if err := g.Build(ordered); err != nil {
		switch {
		case errors.Is(err, graph.ErrCycleDetected):
			return nil, fmt.Errorf("%w: %w", ErrCyclicGraph, err)
		case errors.Is(err, graph.ErrUnknownDependency):
			return nil, fmt.Errorf("%w: %w", ErrInvalidGraph, err)
		default:
			return nil, err
		}
	}
	topo, err := g.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCyclicGraph, err)
	}

	byID := make(map[string]*models.Task, len(ordered))
	for _, t := range ordered {
		byID[t.ID] = t
	}

	return &Snapshot{
		RootID:    rootID,
		RootTitle: rootTitle,
		tasks:     ordered,
		byID:      byID,
		graph:     g,
		topo:      topo,
	}, nil
}

// Tasks returns every task in creation order.
func (s *Snapshot) Tasks() []*models.Task {
	return s.tasks
}

// Len returns the number of tasks.
func (s *Snapshot) Len() int {
	return len(s.tasks)
}

// Task returns the task with the given ID, or nil.
func (s *Snapshot) Task(id string) *models.Task {
	return s.byID[id]
}

// Ready returns pending tasks whose dependencies are all completed, in
// creation order.
func (s *Snapshot) Ready() []*models.Task {
	ids := s.graph.GetReady()
	ready := make([]*models.Task, 0, len(ids))
	for _, id := range ids {
		ready = append(ready, s.byID[id])
	}
	return ready
}

// InProgress returns tasks whose persisted status is in_progress.
func (s *Snapshot) InProgress() []*models.Task {
	var out []*models.Task
	for _, t := range s.tasks {
		if t.Status == models.TaskStatusInProgress {
			out = append(out, t)
		}
	}
	return out
}

// DisplayStatus returns the task's status with blocked derived for pending
// tasks that still wait on a dependency.
func (s *Snapshot) DisplayStatus(t *models.Task) models.TaskStatus {
	if s.graph.IsBlocked(t.ID) {
		return models.TaskStatusBlocked
	}
	return t.Status
}

// Branches returns the distinct level 1 IDs in dependency order.
func (s *Snapshot) Branches() []string {
	return s.distinct(func(t *models.Task) string { return t.Path.Level1 })
}

// Groups returns the distinct level 2 group keys in dependency order.
func (s *Snapshot) Groups() []string {
	return s.distinct(func(t *models.Task) string { return t.Path.GroupKey() })
}

func (s *Snapshot) distinct(key func(*models.Task) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, id := range s.topo {
		k := key(s.byID[id])
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// depths returns each task's longest dependency chain length, counting the
// task itself, so tasks without dependencies sit at depth 1.
func (s *Snapshot) depths() map[string]int {
	depth := make(map[string]int, len(s.topo))
	for _, id := range s.topo {
		d := 1
		for _, dep := range s.graph.GetDependencies(id) {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[id] = d
	}
	return depth
}
