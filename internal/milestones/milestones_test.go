package milestones

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ShayCichocki/nova/pkg/models"
)

const sample = `
milestones:
  - id: parser-done
    name: Parser ready
    message: The parser can be integrated.
    trigger:
      type: all_tasks_completed
      tasks: [lexer, parser]
  - id: halfway
    trigger:
      type: percentage_complete
      threshold: 50
  - id: everything
    trigger:
      type: percentage_complete
  - id: trouble
    name: Something failed
    trigger:
      type: any_task_failed
`

func tasks(statuses map[string]models.TaskStatus, order ...string) []*models.Task {
	out := make([]*models.Task, 0, len(order))
	for _, id := range order {
		out = append(out, &models.Task{ID: id, Status: statuses[id]})
	}
	return out
}

func reachedIDs(r []Reached) string {
	ids := make([]string, len(r))
	for i, m := range r {
		ids[i] = m.ID
	}
	return strings.Join(ids, ",")
}

func TestEvaluate(t *testing.T) {
	set, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	const (
		C = models.TaskStatusCompleted
		P = models.TaskStatusPending
		F = models.TaskStatusFailed
	)
	tests := []struct {
		name     string
		statuses map[string]models.TaskStatus
		want     string
	}{
		{"nothing done", map[string]models.TaskStatus{"lexer": P, "parser": P, "docs": P, "ci": P}, ""},
		{"half done", map[string]models.TaskStatus{"lexer": C, "parser": C, "docs": P, "ci": P}, "parser-done,halfway"},
		{"all done", map[string]models.TaskStatus{"lexer": C, "parser": C, "docs": C, "ci": C}, "parser-done,halfway,everything"},
		{"failure", map[string]models.TaskStatus{"lexer": C, "parser": F, "docs": P, "ci": P}, "trouble"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := set.Evaluate(tasks(tt.statuses, "lexer", "parser", "docs", "ci"))
			if reachedIDs(got) != tt.want {
				t.Errorf("Evaluate() = %q, want %q", reachedIDs(got), tt.want)
			}
		})
	}
}

func TestEvaluate_Stateless(t *testing.T) {
	set, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	ts := tasks(map[string]models.TaskStatus{"lexer": models.TaskStatusCompleted, "parser": models.TaskStatusCompleted}, "lexer", "parser")

	first := set.Evaluate(ts)
	second := set.Evaluate(ts)
	if reachedIDs(first) != reachedIDs(second) || len(first) == 0 {
		t.Errorf("Evaluate() not repeatable: %q then %q", reachedIDs(first), reachedIDs(second))
	}
	if first[0].Name != "Parser ready" || first[0].Message != "The parser can be integrated." {
		t.Errorf("first = %+v", first[0])
	}
	if first[1].Name != "halfway" || first[1].Message != DefaultMessage {
		t.Errorf("defaults not applied: %+v", first[1])
	}
}

func TestEvaluate_EmptyTaskSet(t *testing.T) {
	set, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if got := reachedIDs(set.Evaluate(nil)); got != "" {
		t.Errorf("Evaluate(nil) = %q, want none", got)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"missing id", "milestones:\n  - trigger: {type: any_task_failed}\n", "id is required"},
		{"duplicate", "milestones:\n  - {id: a, trigger: {type: any_task_failed}}\n  - {id: a, trigger: {type: any_task_failed}}\n", "duplicate"},
		{"unknown type", "milestones:\n  - {id: a, trigger: {type: sometimes}}\n", "unknown trigger type"},
		{"bad yaml", "milestones: [", "parse milestones"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Parse() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFileIsEmpty(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "milestones.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(set.Milestones) != 0 {
		t.Errorf("milestones = %d, want 0", len(set.Milestones))
	}

	path := filepath.Join(t.TempDir(), "m.yaml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	set, err = Load(path)
	if err != nil || len(set.Milestones) != 4 {
		t.Fatalf("Load() = %v, %v", set, err)
	}
}
