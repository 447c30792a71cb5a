package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ShayCichocki/nova/internal/logging"
	"github.com/ShayCichocki/nova/pkg/models"
)

// DefaultGroup is the level 2 group of tasks the store assigns none.
const DefaultGroup = "all"

// Adapter translates between a Source and the task model.
// It holds no state between calls and is safe for concurrent use when the
// Source is.
type Adapter struct {
	source Source
	logger *slog.Logger
}

// NewAdapter creates an Adapter over source.
func NewAdapter(source Source, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Adapter{source: source, logger: logger}
}

// Load fetches the subtree under rootID and builds a validated snapshot.
func (a *Adapter) Load(ctx context.Context, rootID string) (*Snapshot, error) {
	raw, err := a.source.Graph(ctx, rootID)
	if err != nil {
		return nil, wrap("load", rootID, err)
	}
	snap, err := a.build(rootID, raw)
	if err != nil {
		return nil, wrap("load", rootID, err)
	}
	return snap, nil
}

func (a *Adapter) build(rootID string, raw *RawGraph) (*Snapshot, error) {
	byID := make(map[string]*models.Task, len(raw.Nodes))
	tasks := make([]*models.Task, 0, len(raw.Nodes))
	for i, n := range raw.Nodes {
		if n.ID == rootID {
			continue
		}
		if _, dup := byID[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node %s", ErrInvalidGraph, n.ID)
		}
		t := &models.Task{
			ID:          n.ID,
			Title:       n.Title,
			Description: n.Description,
			Status:      n.Status,
			Priority:    n.Priority,
			CreatedAt:   n.CreatedAt,
			Seq:         i,
			Timeout:     n.Timeout,
			RetryCount:  n.RetryCount,
			Attempts:    a.decodeRecords(n),
		}
		if !t.Status.Valid() {
			return nil, fmt.Errorf("%w: node %s has status %q", ErrInvalidGraph, n.ID, n.Status)
		}
		byID[n.ID] = t
		tasks = append(tasks, t)
	}

	for _, e := range raw.Edges {
		// Edges to the root are membership, not dependencies.
		if e.To == rootID || e.From == rootID {
			continue
		}
		from, ok := byID[e.From]
		if !ok {
			return nil, fmt.Errorf("%w: edge %s -> %s leaves the graph", ErrInvalidGraph, e.From, e.To)
		}
		if _, ok := byID[e.To]; !ok {
			return nil, fmt.Errorf("%w: edge %s -> %s leaves the graph", ErrInvalidGraph, e.From, e.To)
		}
		from.Dependencies = append(from.Dependencies, e.To)
	}

	title := raw.Root.Title
	if title == "" {
		title = rootID
	}
	snap, err := NewSnapshot(rootID, title, tasks)
	if err != nil {
		return nil, err
	}

	layers := make(map[string]int)
	for idx, layer := range raw.Layers {
		for _, id := range layer {
			layers[id] = idx
		}
	}
	depths := snap.depths()
	for _, t := range snap.Tasks() {
		t.Path = models.HierarchyPath{
			Level0: rootID,
			Level1: raw.Branches[t.ID],
			Level2: raw.Groups[t.ID],
		}
		if t.Path.Level1 == "" {
			layer, ok := layers[t.ID]
			if !ok {
				layer = depths[t.ID]
			}
			t.Path.Level1 = fmt.Sprintf("layer-%d", layer)
		}
		if t.Path.Level2 == "" {
			t.Path.Level2 = DefaultGroup
		}
	}
	return snap, nil
}

// decodeRecords keeps the attempt records of a node in append order.
// Records of other types are ignored; undecodable ones are logged and dropped.
func (a *Adapter) decodeRecords(n RawNode) []models.AttemptRecord {
	var attempts []models.AttemptRecord
	for _, raw := range n.Records {
		var head struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			a.logger.Debug("skipping non-JSON record", "task", n.ID)
			continue
		}
		if head.Type != models.RecordTypeMetrics {
			continue
		}
		var rec models.AttemptRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			a.logger.Warn("discarding undecodable attempt record", "task", n.ID, "error", err)
			continue
		}
		if rec.AttemptID == "" && rec.Metrics == nil {
			rec = legacyRecord(raw, rec)
		}
		attempts = append(attempts, rec)
	}
	return attempts
}

// legacyRecord upgrades the flat comment shape older orchestrators wrote on
// completion: {"type":"metrics","token_usage":{...},"cost_usd":..,"duration_seconds":..}.
func legacyRecord(raw json.RawMessage, rec models.AttemptRecord) models.AttemptRecord {
	var flat struct {
		TokenUsage      *models.TokenUsage `json:"token_usage"`
		CostUSD         float64            `json:"cost_usd"`
		DurationSeconds float64            `json:"duration_seconds"`
	}
	if err := json.Unmarshal(raw, &flat); err != nil || flat.TokenUsage == nil {
		return rec
	}
	rec.Metrics = &models.Metrics{
		TokenUsage:      *flat.TokenUsage,
		DurationSeconds: flat.DurationSeconds,
		CostUSD:         flat.CostUSD,
	}
	if rec.Outcome == "" {
		rec.Outcome = models.TaskStatusCompleted
	}
	return rec
}

// Persist writes one status transition. When record is non-nil it is
// appended before the status is written, so a terminal status is never
// visible without its attempt record. A record is appended even when the
// transition is refused, since the attempt did run.
func (a *Adapter) Persist(ctx context.Context, id string, status models.TaskStatus, record *models.AttemptRecord) error {
	if !status.Valid() {
		return wrap("persist", id, fmt.Errorf("%w: %q is not a stored status", ErrInvalidTransition, status))
	}
	current, err := a.source.TaskStatus(ctx, id)
	if err != nil {
		return wrap("persist", id, err)
	}

	if record != nil {
		rec := *record
		rec.Type = models.RecordTypeMetrics
		data, err := json.Marshal(rec)
		if err != nil {
			return wrap("persist", id, fmt.Errorf("encode attempt record: %w", err))
		}
		if err := a.source.AppendMetrics(ctx, id, data); err != nil {
			return wrap("persist", id, err)
		}
	}

	if !models.CanTransition(current, status) {
		return wrap("persist", id, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, status))
	}
	if err := a.source.UpdateStatus(ctx, id, status); err != nil {
		return wrap("persist", id, err)
	}
	a.logger.Debug("persisted status", "task", id, "from", current, "to", status, "record", record != nil)
	return nil
}

// Reopen moves a failed task back to pending and increments its retry count.
func (a *Adapter) Reopen(ctx context.Context, id string) error {
	current, err := a.source.TaskStatus(ctx, id)
	if err != nil {
		return wrap("reopen", id, err)
	}
	if !models.CanTransition(current, models.TaskStatusPending) {
		return wrap("reopen", id, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, models.TaskStatusPending))
	}
	if err := a.source.Reopen(ctx, id); err != nil {
		return wrap("reopen", id, err)
	}
	a.logger.Info("reopened task", "task", id)
	return nil
}
