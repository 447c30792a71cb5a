package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/nova/internal/tracker"
	"github.com/ShayCichocki/nova/pkg/models"
)

// Graph implements tracker.Source.
func (db *DB) Graph(ctx context.Context, rootID string) (*tracker.RawGraph, error) {
	var root tracker.RawNode
	err := db.queryRow(ctx, `SELECT id, title FROM roots WHERE id = ?`, rootID).Scan(&root.ID, &root.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("root %s: %w", rootID, tracker.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get root", err)
	}
	root.Status = models.TaskStatusPending

	g := &tracker.RawGraph{
		Root:     root,
		Groups:   make(map[string]string),
		Branches: make(map[string]string),
	}

	index, err := db.loadNodes(ctx, rootID, g)
	if err != nil {
		return nil, err
	}
	if err := db.loadEdges(ctx, rootID, g); err != nil {
		return nil, err
	}
	if err := db.loadAttempts(ctx, rootID, g, index); err != nil {
		return nil, err
	}
	return g, nil
}

func (db *DB) loadNodes(ctx context.Context, rootID string, g *tracker.RawGraph) (map[string]int, error) {
	rows, err := db.query(ctx, `
		SELECT id, title, description, status, priority, branch, group_name,
		       timeout_ms, retry_count, created_at
		FROM tasks WHERE root_id = ? ORDER BY seq
	`, rootID)
	if err != nil {
		return nil, unavailable("list tasks", err)
	}
	defer rows.Close()

	index := make(map[string]int)
	for rows.Next() {
		var (
			n         tracker.RawNode
			status    string
			priority  sql.NullInt64
			branch    string
			group     string
			timeoutMS int64
			createdAt string
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Description, &status, &priority, &branch, &group,
			&timeoutMS, &n.RetryCount, &createdAt); err != nil {
			return nil, unavailable("scan task", err)
		}
		n.Status = models.TaskStatus(status)
		if priority.Valid {
			p := int(priority.Int64)
			n.Priority = &p
		}
		n.Timeout = time.Duration(timeoutMS) * time.Millisecond
		if t, err := parseTime(createdAt); err == nil {
			n.CreatedAt = t
		}
		if branch != "" {
			g.Branches[n.ID] = branch
		}
		if group != "" {
			g.Groups[n.ID] = group
		}
		index[n.ID] = len(g.Nodes)
		g.Nodes = append(g.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list tasks", err)
	}
	return index, nil
}

func (db *DB) loadEdges(ctx context.Context, rootID string, g *tracker.RawGraph) error {
	rows, err := db.query(ctx, `
		SELECT d.task_id, d.depends_on
		FROM dependencies d JOIN tasks t ON t.id = d.task_id
		WHERE t.root_id = ? ORDER BY t.seq, d.rowid
	`, rootID)
	if err != nil {
		return unavailable("list dependencies", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e tracker.Edge
		if err := rows.Scan(&e.From, &e.To); err != nil {
			return unavailable("scan dependency", err)
		}
		g.Edges = append(g.Edges, e)
	}
	if err := rows.Err(); err != nil {
		return unavailable("list dependencies", err)
	}
	return nil
}

func (db *DB) loadAttempts(ctx context.Context, rootID string, g *tracker.RawGraph, index map[string]int) error {
	rows, err := db.query(ctx, `
		SELECT a.task_id, a.record
		FROM attempts a JOIN tasks t ON t.id = a.task_id
		WHERE t.root_id = ? ORDER BY a.id
	`, rootID)
	if err != nil {
		return unavailable("list attempts", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, record string
		if err := rows.Scan(&taskID, &record); err != nil {
			return unavailable("scan attempt", err)
		}
		if i, ok := index[taskID]; ok {
			g.Nodes[i].Records = append(g.Nodes[i].Records, json.RawMessage(record))
		}
	}
	if err := rows.Err(); err != nil {
		return unavailable("list attempts", err)
	}
	return nil
}

// UpdateStatus implements tracker.Source.
func (db *DB) UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: cannot store %q", tracker.ErrInvalidTransition, status)
	}
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
			string(status), formatTime(time.Now()), id)
		if err != nil {
			return unavailable("update status", err)
		}
		return requireRow(res, id)
	})
}

// AppendMetrics implements tracker.Source.
func (db *DB) AppendMetrics(ctx context.Context, id string, record []byte) error {
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		if err := taskExists(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO attempts (task_id, record, created_at) VALUES (?, ?, ?)`,
			id, string(record), formatTime(time.Now()))
		if err != nil {
			return unavailable("append attempt", err)
		}
		return nil
	})
}

// Reopen implements tracker.Source. The status change and the retry counter
// increment commit together.
func (db *DB) Reopen(ctx context.Context, id string) error {
	return db.Transaction(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM tasks WHERE id = ?`, id).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("task %s: %w", id, tracker.ErrNotFound)
		}
		if err != nil {
			return unavailable("get status", err)
		}
		if models.TaskStatus(status) != models.TaskStatusFailed {
			return fmt.Errorf("%w: %s -> %s", tracker.ErrInvalidTransition, status, models.TaskStatusPending)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE tasks SET status = ?, retry_count = retry_count + 1, updated_at = ? WHERE id = ?
		`, string(models.TaskStatusPending), formatTime(time.Now()), id)
		if err != nil {
			return unavailable("reopen", err)
		}
		return nil
	})
}

// TaskStatus implements tracker.Source.
func (db *DB) TaskStatus(ctx context.Context, id string) (models.TaskStatus, error) {
	var status string
	err := db.queryRow(ctx, `SELECT status FROM tasks WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("task %s: %w", id, tracker.ErrNotFound)
	}
	if err != nil {
		return "", unavailable("get status", err)
	}
	return models.TaskStatus(status), nil
}

func taskExists(ctx context.Context, tx *sql.Tx, id string) error {
	var one int
	err := tx.QueryRowContext(ctx, `SELECT 1 FROM tasks WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("task %s: %w", id, tracker.ErrNotFound)
	}
	if err != nil {
		return unavailable("get task", err)
	}
	return nil
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("task %s: %w", id, tracker.ErrNotFound)
	}
	return nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", tracker.ErrUnavailable, op, err)
}

var _ tracker.Source = (*DB)(nil)
