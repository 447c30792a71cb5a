// Package tracker adapts an external task store to the orchestrator's task model.
package tracker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ShayCichocki/nova/pkg/models"
)

// Source is the narrow interface to the external dependency tracker.
// Implementations must serialize their own writes; the Adapter holds no
// state between calls.
type Source interface {
	// Graph returns the nodes, edges and layout under rootID.
	// Returns an error wrapping ErrNotFound for an unknown root.
	Graph(ctx context.Context, rootID string) (*RawGraph, error)
	// UpdateStatus writes a persisted status.
	UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error
	// AppendMetrics appends an immutable attempt record.
	AppendMetrics(ctx context.Context, id string, record []byte) error
	// Reopen moves a failed task back to pending and increments its retry count.
	Reopen(ctx context.Context, id string) error
	// TaskStatus returns the current persisted status of one task.
	TaskStatus(ctx context.Context, id string) (models.TaskStatus, error)
}

// Edge is a dependency edge: From depends on To.
type Edge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RawNode is a task as the store reports it.
type RawNode struct {
	ID          string
	Title       string
	Description string
	Status      models.TaskStatus
	Priority    *int
	CreatedAt   time.Time
	// Timeout is a per-task worker ceiling, zero for the default.
	Timeout    time.Duration
	RetryCount int
	// Records holds the raw attempt records in append order.
	Records []json.RawMessage
}

// RawGraph is the store's view of one root's subtree.
type RawGraph struct {
	Root  RawNode
	Nodes []RawNode
	Edges []Edge
	// Layers lists node IDs by layout layer; layer 0 holds the root.
	Layers [][]string
	// Groups maps node ID to its group within a branch.
	Groups map[string]string
	// Branches optionally names a node's branch, overriding its layer.
	Branches map[string]string
}
