package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/nova/internal/graph"
	"github.com/ShayCichocki/nova/pkg/models"
)

// SeedGraph is a task graph read from YAML:
//
//	root:
//	  id: epic-1
//	  title: Build the parser
//	tasks:
//	  - id: lexer
//	    title: Write the lexer
//	    branch: frontend
//	    group: parsing
//	    priority: 1
//	    timeout: 20m
//	  - id: parser
//	    title: Write the parser
//	    depends_on: [lexer]
type SeedGraph struct {
	Root  SeedRoot   `yaml:"root"`
	Tasks []SeedTask `yaml:"tasks"`
}

// SeedRoot names the graph's root.
type SeedRoot struct {
	ID    string `yaml:"id"`
	Title string `yaml:"title"`
}

// SeedTask is one task of a SeedGraph.
type SeedTask struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	DependsOn   []string `yaml:"depends_on"`
	Branch      string   `yaml:"branch"`
	Group       string   `yaml:"group"`
	Priority    *int     `yaml:"priority"`
	Timeout     string   `yaml:"timeout"`
	Status      string   `yaml:"status"`
}

// LoadSeedFile reads and validates a seed graph.
func LoadSeedFile(path string) (*SeedGraph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var g SeedGraph
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse seed file %s: %w", path, err)
	}
	if err := g.Validate(); err != nil {
		return nil, fmt.Errorf("seed file %s: %w", path, err)
	}
	return &g, nil
}

// Validate checks IDs, timeouts and statuses, and that dependencies stay
// inside the graph and form no cycle.
func (g *SeedGraph) Validate() error {
	if g.Root.ID == "" {
		return fmt.Errorf("root id is required")
	}
	tasks := make([]*models.Task, 0, len(g.Tasks))
	seen := make(map[string]bool, len(g.Tasks))
	for i, t := range g.Tasks {
		if t.ID == "" {
			return fmt.Errorf("task %d: id is required", i)
		}
		if t.ID == g.Root.ID {
			return fmt.Errorf("task %s: id collides with root", t.ID)
		}
		if seen[t.ID] {
			return fmt.Errorf("task %s: duplicate id", t.ID)
		}
		seen[t.ID] = true
		if t.Title == "" && t.Description == "" {
			return fmt.Errorf("task %s: title or description is required", t.ID)
		}
		if _, err := t.timeout(); err != nil {
			return fmt.Errorf("task %s: %w", t.ID, err)
		}
		if t.Status != "" && !models.TaskStatus(t.Status).Valid() {
			return fmt.Errorf("task %s: invalid status %q", t.ID, t.Status)
		}
		tasks = append(tasks, &models.Task{ID: t.ID, Dependencies: t.DependsOn})
	}
	if err := graph.New().Build(tasks); err != nil {
		return err
	}
	return nil
}

func (t SeedTask) timeout() (time.Duration, error) {
	if t.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(t.Timeout)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid timeout %q", t.Timeout)
	}
	return d, nil
}

// Seed imports g. Re-seeding an existing task updates its definition and
// dependencies but keeps its status, retry count and attempt history.
func (db *DB) Seed(ctx context.Context, g *SeedGraph) error {
	if err := g.Validate(); err != nil {
		return err
	}
	now := time.Now()

	return db.Transaction(ctx, func(tx *sql.Tx) error {
		title := g.Root.Title
		if title == "" {
			title = g.Root.ID
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO roots (id, title, created_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET title = excluded.title
		`, g.Root.ID, title, formatTime(now))
		if err != nil {
			return fmt.Errorf("insert root: %w", err)
		}

		for i, t := range g.Tasks {
			status := t.Status
			if status == "" {
				status = string(models.TaskStatusPending)
			}
			timeout, _ := t.timeout()
			var priority any
			if t.Priority != nil {
				priority = *t.Priority
			}
			title := t.Title
			if title == "" {
				title = t.ID
			}

			var owner string
			err := tx.QueryRowContext(ctx, `SELECT root_id FROM tasks WHERE id = ?`, t.ID).Scan(&owner)
			switch {
			case err == nil && owner != g.Root.ID:
				return fmt.Errorf("task %s already belongs to root %s", t.ID, owner)
			case err != nil && !errors.Is(err, sql.ErrNoRows):
				return fmt.Errorf("look up task %s: %w", t.ID, err)
			}

			_, err = tx.ExecContext(ctx, `
				INSERT INTO tasks (id, root_id, seq, title, description, status, priority,
				                   branch, group_name, timeout_ms, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					seq = excluded.seq,
					title = excluded.title,
					description = excluded.description,
					priority = excluded.priority,
					branch = excluded.branch,
					group_name = excluded.group_name,
					timeout_ms = excluded.timeout_ms,
					updated_at = excluded.updated_at
			`, t.ID, g.Root.ID, i, title, t.Description, status, priority,
				t.Branch, t.Group, timeout.Milliseconds(),
				formatTime(now.Add(time.Duration(i)*time.Microsecond)), formatTime(now))
			if err != nil {
				return fmt.Errorf("insert task %s: %w", t.ID, err)
			}

			if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE task_id = ?`, t.ID); err != nil {
				return fmt.Errorf("clear dependencies of %s: %w", t.ID, err)
			}
			for _, dep := range t.DependsOn {
				_, err := tx.ExecContext(ctx, `
					INSERT OR IGNORE INTO dependencies (task_id, depends_on) VALUES (?, ?)
				`, t.ID, dep)
				if err != nil {
					return fmt.Errorf("insert dependency %s -> %s: %w", t.ID, dep, err)
				}
			}
		}
		return nil
	})
}
