package models

import "time"

// TaskStatus represents the persisted state of a task.
type TaskStatus string

const (
	// TaskStatusPending indicates the task has not started.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusInProgress indicates a worker is bound to the task.
	TaskStatusInProgress TaskStatus = "in_progress"
	// TaskStatusCompleted indicates the last attempt succeeded.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the last attempt failed.
	TaskStatusFailed TaskStatus = "failed"

	// TaskStatusBlocked is a display-only value for a pending task whose
	// dependencies are not all completed. It is never persisted.
	TaskStatusBlocked TaskStatus = "blocked"
)

// Valid returns true if the status can be persisted.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true for completed and failed.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// transitions lists every allowed status change.
var transitions = map[TaskStatus][]TaskStatus{
	TaskStatusPending:    {TaskStatusInProgress},
	TaskStatusInProgress: {TaskStatusCompleted, TaskStatusFailed},
	TaskStatusFailed:     {TaskStatusPending},
}

// CanTransition reports whether a task may move from one status to another.
// failed -> pending is the only re-entry (an explicit reopen).
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// HierarchyPath locates a task in the project -> branch -> group nesting.
type HierarchyPath struct {
	// Level0 is the project (root) ID.
	Level0 string `json:"level0"`
	// Level1 is the branch ID.
	Level1 string `json:"level1"`
	// Level2 is the group name within the branch.
	Level2 string `json:"level2"`
}

// GroupKey returns the branch-qualified group key used for level 2 rollups.
func (p HierarchyPath) GroupKey() string {
	return p.Level1 + "/" + p.Level2
}

// Task represents a unit of dispatchable work.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description is handed verbatim to the worker process.
	Description string `json:"description,omitempty"`
	// Status is the persisted state of the task.
	Status TaskStatus `json:"status"`
	// Dependencies lists task IDs that must be completed before this task runs.
	Dependencies []string `json:"dependencies,omitempty"`
	// Priority orders dispatch when present; lower runs first.
	Priority *int `json:"priority,omitempty"`
	// CreatedAt is when the task was created in the tracker.
	CreatedAt time.Time `json:"created_at"`
	// Seq is the task's position in the tracker's listing, used as a stable
	// tie-break after CreatedAt.
	Seq int `json:"-"`
	// Path locates the task in the rollup hierarchy.
	Path HierarchyPath `json:"hierarchy_path"`
	// Timeout overrides the supervisor's default ceiling when non-zero.
	Timeout time.Duration `json:"timeout,omitempty"`
	// RetryCount is the number of times the task was reopened after failure.
	RetryCount int `json:"retry_count"`
	// Attempts is the append-only history of terminal attempt records.
	Attempts []AttemptRecord `json:"attempts,omitempty"`
}

// Prompt returns the text handed to the worker process.
func (t *Task) Prompt() string {
	if t.Description != "" {
		return t.Description
	}
	return t.Title
}

// LastAttempt returns the most recent attempt record, or nil.
func (t *Task) LastAttempt() *AttemptRecord {
	if len(t.Attempts) == 0 {
		return nil
	}
	return &t.Attempts[len(t.Attempts)-1]
}

// Metrics returns the metrics of the most recent attempt, or nil.
func (t *Task) Metrics() *Metrics {
	if a := t.LastAttempt(); a != nil {
		return a.Metrics
	}
	return nil
}

// LastFailure returns the most recent failed attempt, or nil.
func (t *Task) LastFailure() *AttemptRecord {
	for i := len(t.Attempts) - 1; i >= 0; i-- {
		if t.Attempts[i].Outcome == TaskStatusFailed {
			return &t.Attempts[i]
		}
	}
	return nil
}
