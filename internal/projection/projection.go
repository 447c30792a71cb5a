// Package projection builds the read model served to dashboard clients:
// per-task views plus the three levels of rollups.
package projection

import (
	"github.com/ShayCichocki/nova/internal/agent"
	"github.com/ShayCichocki/nova/internal/metrics"
	"github.com/ShayCichocki/nova/internal/milestones"
	"github.com/ShayCichocki/nova/internal/rollup"
	"github.com/ShayCichocki/nova/internal/tracker"
	"github.com/ShayCichocki/nova/pkg/models"
)

// Root identifies the projected graph.
type Root struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// TaskView is the dashboard's view of one task.
type TaskView struct {
	ID            string               `json:"id"`
	Title         string               `json:"title"`
	Status        models.TaskStatus    `json:"status"`
	DisplayStatus models.TaskStatus    `json:"display_status"`
	Dependencies  []string             `json:"dependencies"`
	Hierarchy     models.HierarchyPath `json:"hierarchy"`
	Priority      *int                 `json:"priority,omitempty"`
	RetryCount    int                  `json:"retry_count"`
	Attempts      int                  `json:"attempts"`
	// LastFailureReason is the reason of the most recent failed attempt.
	LastFailureReason string `json:"last_failure_reason,omitempty"`
	TimedOut          bool   `json:"timed_out,omitempty"`
	// Metrics are those of the latest attempt.
	Metrics *models.Metrics `json:"metrics"`
	LogPath string          `json:"log_path,omitempty"`
}

// Status is the full read model for one root.
type Status struct {
	Root    Root                    `json:"root"`
	Tasks   map[string]TaskView     `json:"tasks"`
	Rollups models.HierarchyRollups `json:"rollups"`
	// Order lists task IDs in creation order.
	Order []string `json:"order"`
	// Branches and Groups list the level 1 and level 2 keys in dependency
	// order.
	Branches []string `json:"branches"`
	Groups   []string `json:"groups"`
	// Counts maps each display status to its number of tasks.
	Counts     map[models.TaskStatus]int `json:"counts"`
	Milestones []milestones.Reached      `json:"milestones"`
}

// Options tune Build.
type Options struct {
	Pricing    metrics.Pricing
	Milestones *milestones.Set
	// LogDir is where worker output is captured; empty omits log paths.
	LogDir string
}

// Build assembles the read model from snap. It is pure: the same snapshot
// always yields the same Status.
func Build(snap *tracker.Snapshot, opts Options) *Status {
	tasks := snap.Tasks()
	st := &Status{
		Root:       Root{ID: snap.RootID, Title: snap.RootTitle},
		Tasks:      make(map[string]TaskView, len(tasks)),
		Rollups:    rollup.Compute(tasks, opts.Pricing),
		Order:      make([]string, 0, len(tasks)),
		Branches:   nonNil(snap.Branches()),
		Groups:     nonNil(snap.Groups()),
		Counts:     make(map[models.TaskStatus]int),
		Milestones: opts.Milestones.Evaluate(tasks),
	}
	if st.Milestones == nil {
		st.Milestones = []milestones.Reached{}
	}

	for _, t := range tasks {
		view := TaskView{
			ID:            t.ID,
			Title:         t.Title,
			Status:        t.Status,
			DisplayStatus: snap.DisplayStatus(t),
			Dependencies:  nonNil(t.Dependencies),
			Hierarchy:     t.Path,
			Priority:      t.Priority,
			RetryCount:    t.RetryCount,
			Attempts:      len(t.Attempts),
			Metrics:       t.Metrics(),
		}
		if f := t.LastFailure(); f != nil {
			view.LastFailureReason = f.FailureReason
			view.TimedOut = f.TimedOut
		}
		if opts.LogDir != "" && (len(t.Attempts) > 0 || t.Status == models.TaskStatusInProgress) {
			view.LogPath = agent.LogPath(opts.LogDir, t.ID)
		}
		st.Tasks[t.ID] = view
		st.Order = append(st.Order, t.ID)
		st.Counts[view.DisplayStatus]++
	}
	return st
}

// Progress returns the fraction of tasks completed, 0 for an empty graph.
func (s *Status) Progress() float64 {
	if len(s.Tasks) == 0 {
		return 0
	}
	return float64(s.Counts[models.TaskStatusCompleted]) / float64(len(s.Tasks))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
