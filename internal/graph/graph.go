// Package graph provides a dependency graph for task scheduling.
package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ShayCichocki/nova/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// ErrUnknownDependency indicates a task depends on an ID outside the graph.
var ErrUnknownDependency = errors.New("unknown dependency")

// DependencyGraph represents a directed acyclic graph of task dependencies.
// Tasks are nodes, and edges represent "blocked by" relationships.
//
// A DependencyGraph is built once per snapshot and is read-only afterwards,
// so it carries no lock.
type DependencyGraph struct {
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// order preserves insertion order for deterministic iteration.
	order []string
	// edges maps task ID to IDs of tasks it depends on (is blocked by).
	edges map[string][]string
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*models.Task),
		edges: make(map[string][]string),
	}
}

// Build constructs the dependency graph from a slice of tasks.
// Returns an error if a cycle is detected or dependencies reference unknown tasks.
// Duplicate dependency IDs on one task are collapsed.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	// First pass: register all tasks as nodes.
	for _, task := range tasks {
		if _, dup := g.nodes[task.ID]; !dup {
			g.order = append(g.order, task.ID)
		}
		g.nodes[task.ID] = task
		g.edges[task.ID] = nil
	}

	// Second pass: build edges from Dependencies.
	for _, task := range tasks {
		seen := make(map[string]bool, len(task.Dependencies))
		for _, depID := range task.Dependencies {
			if seen[depID] {
				continue
			}
			seen[depID] = true
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on %s: %w", task.ID, depID, ErrUnknownDependency)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if cycle := g.FindCycle(); cycle != nil {
		return fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(cycle, " -> "))
	}
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
func (g *DependencyGraph) HasCycle() bool {
	return g.FindCycle() != nil
}

// FindCycle returns the IDs along one dependency cycle, starting and ending
// with the same ID, or nil when the graph is acyclic.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) FindCycle() []string {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				// Back edge: the cycle is the stack suffix starting at depID.
				for i := len(stack) - 1; i >= 0; i-- {
					if stack[i] == depID {
						cycle = append(append([]string{}, stack[i:]...), depID)
						break
					}
				}
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 && visit(id) {
			return cycle
		}
	}
	return nil
}

// TopologicalSort returns task IDs in an order where all dependencies
// come before the tasks that depend on them. Ties follow insertion order.
// Returns an error if the graph contains a cycle.
func (g *DependencyGraph) TopologicalSort() ([]string, error) {
	if g.HasCycle() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	result := make([]string, 0, len(g.nodes))

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for _, id := range g.order {
		visit(id)
	}
	return result, nil
}

// DependenciesMet reports whether every dependency of the task is completed.
func (g *DependencyGraph) DependenciesMet(taskID string) bool {
	for _, depID := range g.edges[taskID] {
		dep, ok := g.nodes[depID]
		if !ok || dep.Status != models.TaskStatusCompleted {
			return false
		}
	}
	return true
}

// GetReady returns pending task IDs whose dependencies are all completed,
// in insertion order.
func (g *DependencyGraph) GetReady() []string {
	var ready []string
	for _, id := range g.order {
		if g.nodes[id].Status != models.TaskStatusPending {
			continue
		}
		if g.DependenciesMet(id) {
			ready = append(ready, id)
		}
	}
	return ready
}

// IsBlocked reports the derived blocked state: the task is pending and at
// least one dependency is not completed.
func (g *DependencyGraph) IsBlocked(taskID string) bool {
	task, ok := g.nodes[taskID]
	if !ok || task.Status != models.TaskStatusPending {
		return false
	}
	return !g.DependenciesMet(taskID)
}

// GetDependencies returns the IDs of tasks that the given task depends on.
func (g *DependencyGraph) GetDependencies(taskID string) []string {
	return g.edges[taskID]
}
