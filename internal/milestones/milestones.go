// Package milestones evaluates operator-defined progress milestones
// against a task set.
//
// Milestones are read from YAML:
//
//	milestones:
//	  - id: parser-done
//	    name: Parser ready
//	    message: The parser can be integrated.
//	    trigger:
//	      type: all_tasks_completed
//	      tasks: [lexer, parser]
//	  - id: halfway
//	    trigger:
//	      type: percentage_complete
//	      threshold: 50
package milestones

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/nova/pkg/models"
)

// Trigger types.
const (
	TriggerAllTasksCompleted  = "all_tasks_completed"
	TriggerPercentageComplete = "percentage_complete"
	TriggerAnyTaskFailed      = "any_task_failed"
)

// DefaultMessage is reported for milestones without a message.
const DefaultMessage = "Milestone reached"

// Trigger is the condition of a milestone.
type Trigger struct {
	Type string `yaml:"type"`
	// Tasks lists the task IDs all_tasks_completed waits for.
	Tasks []string `yaml:"tasks"`
	// Threshold is the completion percentage for percentage_complete.
	// Missing means 100.
	Threshold *float64 `yaml:"threshold"`
}

// Milestone is one named condition.
type Milestone struct {
	ID      string  `yaml:"id"`
	Name    string  `yaml:"name"`
	Message string  `yaml:"message"`
	Trigger Trigger `yaml:"trigger"`
}

// Reached is a milestone whose trigger holds.
type Reached struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Set is an ordered list of milestones.
type Set struct {
	Milestones []Milestone `yaml:"milestones"`
}

// Load reads a milestone file. A missing file is an empty set.
func Load(path string) (*Set, error) {
	if path == "" {
		return &Set{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Set{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read milestones: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates milestone YAML.
func Parse(data []byte) (*Set, error) {
	var s Set
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse milestones: %w", err)
	}
	seen := make(map[string]bool, len(s.Milestones))
	for i, m := range s.Milestones {
		if m.ID == "" {
			return nil, fmt.Errorf("milestone %d: id is required", i)
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("milestone %s: duplicate id", m.ID)
		}
		seen[m.ID] = true
		switch m.Trigger.Type {
		case TriggerAllTasksCompleted, TriggerPercentageComplete, TriggerAnyTaskFailed:
		default:
			return nil, fmt.Errorf("milestone %s: unknown trigger type %q", m.ID, m.Trigger.Type)
		}
	}
	return &s, nil
}

// Evaluate returns every milestone whose trigger holds for tasks, in file
// order. It keeps no memory of earlier calls, so the same task set always
// yields the same result.
func (s *Set) Evaluate(tasks []*models.Task) []Reached {
	if s == nil {
		return nil
	}
	var out []Reached
	for _, m := range s.Milestones {
		if !m.Trigger.holds(tasks) {
			continue
		}
		r := Reached{ID: m.ID, Name: m.Name, Message: m.Message}
		if r.Name == "" {
			r.Name = m.ID
		}
		if r.Message == "" {
			r.Message = DefaultMessage
		}
		out = append(out, r)
	}
	return out
}

func (t Trigger) holds(tasks []*models.Task) bool {
	switch t.Type {
	case TriggerAllTasksCompleted:
		byID := make(map[string]models.TaskStatus, len(tasks))
		for _, task := range tasks {
			byID[task.ID] = task.Status
		}
		for _, id := range t.Tasks {
			if byID[id] != models.TaskStatusCompleted {
				return false
			}
		}
		return true

	case TriggerPercentageComplete:
		if len(tasks) == 0 {
			return false
		}
		threshold := 100.0
		if t.Threshold != nil {
			threshold = *t.Threshold
		}
		completed := 0
		for _, task := range tasks {
			if task.Status == models.TaskStatusCompleted {
				completed++
			}
		}
		return float64(completed)*100/float64(len(tasks)) >= threshold

	case TriggerAnyTaskFailed:
		for _, task := range tasks {
			if task.Status == models.TaskStatusFailed {
				return true
			}
		}
		return false
	}
	return false
}
