package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ShayCichocki/nova/internal/exec"
	"github.com/ShayCichocki/nova/internal/logging"
	"github.com/ShayCichocki/nova/pkg/models"
)

// Label prefixes understood on beads issues.
const (
	labelGroup   = "group:"
	labelBranch  = "branch:"
	labelTimeout = "timeout:"
)

// recordTypeReopen tags the comment written on every reopen; the retry
// count is the number of such comments.
const recordTypeReopen = "reopen"

// BeadsConfig configures a BeadsSource.
type BeadsConfig struct {
	// Bin is the bd binary name or path.
	Bin string
	// WorkDir is where bd runs, normally the repository holding .beads.
	WorkDir string
	// Concurrency bounds simultaneous bd invocations.
	Concurrency int
}

// BeadsSource is a Source backed by the bd command-line tracker.
type BeadsSource struct {
	runner  exec.CommandRunner
	cfg     BeadsConfig
	sem     *semaphore.Weighted
	logger  *slog.Logger
	nowFunc func() time.Time
}

// NewBeadsSource creates a BeadsSource running bd through runner.
func NewBeadsSource(runner exec.CommandRunner, cfg BeadsConfig, logger *slog.Logger) *BeadsSource {
	if cfg.Bin == "" {
		cfg.Bin = "bd"
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &BeadsSource{
		runner:  runner,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.Concurrency)),
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Available reports whether the bd binary can be found.
func (s *BeadsSource) Available() error {
	if _, err := s.runner.LookPath(s.cfg.Bin); err != nil {
		return fmt.Errorf("%w: %s not on PATH: %w", ErrUnavailable, s.cfg.Bin, err)
	}
	return nil
}

// bdTime accepts the timestamp layouts bd has emitted across versions.
type bdTime struct {
	time.Time
}

func (t *bdTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil || s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return nil
}

type bdIssue struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    *int     `json:"priority"`
	CreatedAt   bdTime   `json:"created_at"`
	Labels      []string `json:"labels"`
}

type bdGraph struct {
	Root   bdIssue   `json:"root"`
	Issues []bdIssue `json:"issues"`
	Layout struct {
		Layers [][]string `json:"Layers"`
		Nodes  map[string]struct {
			DependsOn []string `json:"DependsOn"`
		} `json:"Nodes"`
	} `json:"layout"`
}

type bdComment struct {
	Text string `json:"text"`
}

// mapBeadsStatus maps a bd status onto the persisted task status. bd's
// blocked parks failed tasks; the derived blocked display state is never
// written to the tracker.
func mapBeadsStatus(status string) models.TaskStatus {
	switch status {
	case "in_progress":
		return models.TaskStatusInProgress
	case "closed", "completed":
		return models.TaskStatusCompleted
	case "blocked":
		return models.TaskStatusFailed
	default:
		return models.TaskStatusPending
	}
}

// Graph implements Source using `bd graph <root> --json` and one
// `bd comments <id> --json` per task, fetched concurrently.
func (s *BeadsSource) Graph(ctx context.Context, rootID string) (*RawGraph, error) {
	out, err := s.run(ctx, "graph", rootID, "--json")
	if err != nil {
		return nil, err
	}
	var g bdGraph
	if err := json.Unmarshal(out, &g); err != nil {
		return nil, fmt.Errorf("decode bd graph %s: %w", rootID, err)
	}
	if g.Root.ID == "" {
		return nil, fmt.Errorf("root %s: %w", rootID, ErrNotFound)
	}

	raw := &RawGraph{
		Root:     RawNode{ID: g.Root.ID, Title: g.Root.Title, Status: mapBeadsStatus(g.Root.Status)},
		Layers:   g.Layout.Layers,
		Groups:   make(map[string]string),
		Branches: make(map[string]string),
	}

	var issues []bdIssue
	for _, issue := range g.Issues {
		if issue.ID != g.Root.ID {
			issues = append(issues, issue)
		}
	}

	comments := make([][]bdComment, len(issues))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(s.cfg.Concurrency)
	for i, issue := range issues {
		eg.Go(func() error {
			c, err := s.comments(egCtx, issue.ID)
			if err != nil {
				return err
			}
			comments[i] = c
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for i, issue := range issues {
		node := RawNode{
			ID:          issue.ID,
			Title:       issue.Title,
			Description: issue.Description,
			Status:      mapBeadsStatus(issue.Status),
			Priority:    issue.Priority,
			CreatedAt:   issue.CreatedAt.Time,
		}
		s.applyLabels(&node, raw, issue.Labels)

		for _, c := range comments[i] {
			text := []byte(strings.TrimSpace(c.Text))
			if !json.Valid(text) || len(text) == 0 || text[0] != '{' {
				continue
			}
			var head struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(text, &head)
			if head.Type == recordTypeReopen {
				node.RetryCount++
				continue
			}
			node.Records = append(node.Records, json.RawMessage(text))
		}
		raw.Nodes = append(raw.Nodes, node)

		for _, dep := range g.Layout.Nodes[issue.ID].DependsOn {
			raw.Edges = append(raw.Edges, Edge{From: issue.ID, To: dep})
		}
	}
	return raw, nil
}

func (s *BeadsSource) applyLabels(node *RawNode, raw *RawGraph, labels []string) {
	for _, label := range labels {
		switch {
		case strings.HasPrefix(label, labelGroup):
			raw.Groups[node.ID] = strings.TrimPrefix(label, labelGroup)
		case strings.HasPrefix(label, labelBranch):
			raw.Branches[node.ID] = strings.TrimPrefix(label, labelBranch)
		case strings.HasPrefix(label, labelTimeout):
			d, err := time.ParseDuration(strings.TrimPrefix(label, labelTimeout))
			if err != nil || d <= 0 {
				s.logger.Warn("ignoring invalid timeout label", "task", node.ID, "label", label)
				continue
			}
			node.Timeout = d
		}
	}
}

func (s *BeadsSource) comments(ctx context.Context, id string) ([]bdComment, error) {
	out, err := s.run(ctx, "comments", id, "--json")
	if err != nil {
		return nil, err
	}
	out = bytes.TrimSpace(out)
	if len(out) == 0 || bytes.Equal(out, []byte("null")) {
		return nil, nil
	}
	var comments []bdComment
	if err := json.Unmarshal(out, &comments); err != nil {
		return nil, fmt.Errorf("decode bd comments %s: %w", id, err)
	}
	return comments, nil
}

// UpdateStatus implements Source.
func (s *BeadsSource) UpdateStatus(ctx context.Context, id string, status models.TaskStatus) error {
	var err error
	switch status {
	case models.TaskStatusCompleted:
		_, err = s.run(ctx, "close", id)
	case models.TaskStatusInProgress:
		_, err = s.run(ctx, "update", id, "--status=in_progress")
	case models.TaskStatusFailed:
		_, err = s.run(ctx, "update", id, "--status=blocked")
	case models.TaskStatusPending:
		_, err = s.run(ctx, "update", id, "--status=open")
	default:
		return fmt.Errorf("%w: cannot store %q", ErrInvalidTransition, status)
	}
	return err
}

// AppendMetrics implements Source by adding the record as a comment.
func (s *BeadsSource) AppendMetrics(ctx context.Context, id string, record []byte) error {
	_, err := s.run(ctx, "comments", "add", id, string(record))
	return err
}

// Reopen implements Source. The status is written first; the reopen
// comment that carries the retry count follows.
func (s *BeadsSource) Reopen(ctx context.Context, id string) error {
	if err := s.UpdateStatus(ctx, id, models.TaskStatusPending); err != nil {
		return err
	}
	marker, err := json.Marshal(map[string]string{
		"type": recordTypeReopen,
		"at":   s.nowFunc().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	_, err = s.run(ctx, "comments", "add", id, string(marker))
	return err
}

// TaskStatus implements Source using `bd show <id> --json`.
func (s *BeadsSource) TaskStatus(ctx context.Context, id string) (models.TaskStatus, error) {
	out, err := s.run(ctx, "show", id, "--json")
	if err != nil {
		return "", err
	}
	var issues []bdIssue
	if err := json.Unmarshal(out, &issues); err != nil {
		return "", fmt.Errorf("decode bd show %s: %w", id, err)
	}
	if len(issues) == 0 {
		return "", fmt.Errorf("task %s: %w", id, ErrNotFound)
	}
	return mapBeadsStatus(issues[0].Status), nil
}

// run invokes bd, bounded by the source's concurrency, and maps failures
// onto the tracker error taxonomy.
func (s *BeadsSource) run(ctx context.Context, args ...string) ([]byte, error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	out, err := s.runner.Run(ctx, s.cfg.WorkDir, s.cfg.Bin, args...)
	if err == nil {
		return out, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	var cmdErr *exec.CommandError
	if errors.As(err, &cmdErr) {
		stderr := strings.ToLower(cmdErr.Stderr)
		if cmdErr.Started() && (strings.Contains(stderr, "not found") || strings.Contains(stderr, "no issue")) {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
	}
	return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
}

var _ Source = (*BeadsSource)(nil)
