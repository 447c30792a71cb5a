package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ShayCichocki/nova/pkg/models"
)

// Call records one write made against a MemorySource.
type Call struct {
	Op     string
	ID     string
	Status models.TaskStatus
}

type memNode struct {
	RawNode
	root   string
	deps   []string
	group  string
	branch string
}

// MemorySource is an in-memory Source for tests and dry runs.
// Writes are serialized by a mutex and recorded in order.
type MemorySource struct {
	mu        sync.Mutex
	roots     map[string]RawNode
	nodes     map[string]*memNode
	order     []string
	calls     []Call
	graphErr  error
	peak      int
	inFlight  int
	statusErr map[string]error
}

// NewMemorySource creates an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		roots:     make(map[string]RawNode),
		nodes:     make(map[string]*memNode),
		statusErr: make(map[string]error),
	}
}

// AddRoot registers a root.
func (m *MemorySource) AddRoot(id, title string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roots[id] = RawNode{ID: id, Title: title, Status: models.TaskStatusPending}
}

// AddTask registers a task under rootID depending on deps. Dependencies on
// unknown IDs are kept so invalid graphs can be modelled.
func (m *MemorySource) AddTask(rootID string, node RawNode, deps ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if node.Status == "" {
		node.Status = models.TaskStatusPending
	}
	if _, exists := m.nodes[node.ID]; !exists {
		m.order = append(m.order, node.ID)
	}
	m.nodes[node.ID] = &memNode{RawNode: node, root: rootID, deps: deps}
	if node.Status == models.TaskStatusInProgress {
		m.inFlight++
		if m.inFlight > m.peak {
			m.peak = m.inFlight
		}
	}
}

// SetGroup assigns a task's level 2 group.
func (m *MemorySource) SetGroup(id, group string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		n.group = group
	}
}

// SetBranch assigns a task's level 1 branch.
func (m *MemorySource) SetBranch(id, branch string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		n.branch = branch
	}
}

// SetGraphError makes Graph fail with err until it is cleared with nil.
func (m *MemorySource) SetGraphError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graphErr = err
}

// SetStatusError makes UpdateStatus for id fail with err until cleared.
func (m *MemorySource) SetStatusError(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.statusErr, id)
		return
	}
	m.statusErr[id] = err
}

// SetStatus changes a status without recording a call, as an external
// actor editing the store would.
func (m *MemorySource) SetStatus(id string, status models.TaskStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		m.setStatusLocked(n, status)
	}
}

func (m *MemorySource) setStatusLocked(n *memNode, status models.TaskStatus) {
	if n.Status == models.TaskStatusInProgress {
		m.inFlight--
	}
	if status == models.TaskStatusInProgress {
		m.inFlight++
		if m.inFlight > m.peak {
			m.peak = m.inFlight
		}
	}
	n.Status = status
}

// Graph implements Source.
func (m *MemorySource) Graph(ctx context.Context, rootID string) (*RawGraph, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.graphErr != nil {
		return nil, m.graphErr
	}
	root, ok := m.roots[rootID]
	if !ok {
		return nil, fmt.Errorf("root %s: %w", rootID, ErrNotFound)
	}

	g := &RawGraph{
		Root:     root,
		Groups:   make(map[string]string),
		Branches: make(map[string]string),
	}
	for _, id := range m.order {
		n := m.nodes[id]
		if n.root != rootID {
			continue
		}
		node := n.RawNode
		node.Records = append([]json.RawMessage(nil), n.Records...)
		g.Nodes = append(g.Nodes, node)
		for _, dep := range n.deps {
			g.Edges = append(g.Edges, Edge{From: id, To: dep})
		}
		if n.group != "" {
			g.Groups[id] = n.group
		}
		if n.branch != "" {
			g.Branches[id] = n.branch
		}
	}
	return g, nil
}

// UpdateStatus implements Source.
func (m *MemorySource) UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	if err := m.statusErr[id]; err != nil {
		return err
	}
	m.calls = append(m.calls, Call{Op: "update_status", ID: id, Status: status})
	m.setStatusLocked(n, status)
	return nil
}

// AppendMetrics implements Source.
func (m *MemorySource) AppendMetrics(ctx context.Context, id string, record []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	m.calls = append(m.calls, Call{Op: "append_metrics", ID: id})
	n.Records = append(n.Records, json.RawMessage(append([]byte(nil), record...)))
	return nil
}

// Reopen implements Source.
func (m *MemorySource) Reopen(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	m.calls = append(m.calls, Call{Op: "reopen", ID: id, Status: models.TaskStatusPending})
	m.setStatusLocked(n, models.TaskStatusPending)
	n.RetryCount++
	return nil
}

// TaskStatus implements Source.
func (m *MemorySource) TaskStatus(ctx context.Context, id string) (models.TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ok := m.nodes[id]
	if !ok {
		return "", fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return n.Status, nil
}

// Status returns a task's current status, or "" for an unknown task.
func (m *MemorySource) Status(id string) models.TaskStatus {
	status, _ := m.TaskStatus(context.Background(), id)
	return status
}

// Records returns the attempt records appended for id.
func (m *MemorySource) Records(id string) []json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.nodes[id]; ok {
		return append([]json.RawMessage(nil), n.Records...)
	}
	return nil
}

// Calls returns every recorded write in order.
func (m *MemorySource) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// CallCount returns the number of recorded writes with op for id.
func (m *MemorySource) CallCount(op, id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, c := range m.calls {
		if c.Op == op && c.ID == id {
			count++
		}
	}
	return count
}

// PeakInProgress returns the highest number of tasks that were in_progress
// at the same time.
func (m *MemorySource) PeakInProgress() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peak
}

var _ Source = (*MemorySource)(nil)
