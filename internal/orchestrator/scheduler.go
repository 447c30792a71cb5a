package orchestrator

import (
	"sort"

	"github.com/ShayCichocki/nova/internal/tracker"
	"github.com/ShayCichocki/nova/pkg/models"
)

// Scheduler decides which ready tasks to dispatch on a tick.
type Scheduler struct {
	// maxWorkers is the maximum number of tasks in_progress at once.
	maxWorkers int
}

// NewScheduler creates a Scheduler bounded to maxWorkers concurrent tasks.
// Values below 1 are treated as 1.
func NewScheduler(maxWorkers int) *Scheduler {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Scheduler{maxWorkers: maxWorkers}
}

// MaxWorkers returns the concurrency bound.
func (s *Scheduler) MaxWorkers() int {
	return s.maxWorkers
}

// Select returns the tasks to dispatch, in dispatch order.
//
// A slot is occupied by every task this process is running (inflight) and
// every task the snapshot shows in_progress, so workers owned by another
// process or orphaned by a crash still count against the bound.
func (s *Scheduler) Select(snap *tracker.Snapshot, inflight map[string]bool) []*models.Task {
	occupied := make(map[string]bool, len(inflight))
	for id := range inflight {
		occupied[id] = true
	}
	for _, t := range snap.InProgress() {
		occupied[t.ID] = true
	}
	slots := s.maxWorkers - len(occupied)
	if slots <= 0 {
		return nil
	}

	var candidates []*models.Task
	for _, t := range snap.Ready() {
		if !occupied[t.ID] {
			candidates = append(candidates, t)
		}
	}
	SortForDispatch(candidates)
	if len(candidates) > slots {
		candidates = candidates[:slots]
	}
	return candidates
}

// SortForDispatch orders tasks by the dispatch tie-break: tasks with a
// priority before tasks without, lower priority first, then creation time,
// creation sequence and finally ID.
func SortForDispatch(tasks []*models.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return dispatchLess(tasks[i], tasks[j])
	})
}

func dispatchLess(a, b *models.Task) bool {
	if (a.Priority != nil) != (b.Priority != nil) {
		return a.Priority != nil
	}
	if a.Priority != nil && *a.Priority != *b.Priority {
		return *a.Priority < *b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.ID < b.ID
}
