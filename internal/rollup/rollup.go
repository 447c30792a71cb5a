// Package rollup aggregates task status and metrics over the project,
// branch and group levels of the hierarchy.
//
// Rollups are always recomputed in full from a task set and never stored.
package rollup

import (
	"github.com/ShayCichocki/nova/internal/metrics"
	"github.com/ShayCichocki/nova/pkg/models"
)

// statusRank orders statuses for aggregation; the highest rank wins.
var statusRank = map[models.TaskStatus]int{
	models.TaskStatusCompleted:  0,
	models.TaskStatusPending:    1,
	models.TaskStatusBlocked:    1,
	models.TaskStatusInProgress: 2,
	models.TaskStatusFailed:     3,
}

// AggregateStatus combines statuses with the precedence
// failed > in_progress > pending > completed, so a single failure is never
// masked by completed siblings. Blocked counts as pending. An empty set is
// pending.
func AggregateStatus(statuses []models.TaskStatus) models.TaskStatus {
	if len(statuses) == 0 {
		return models.TaskStatusPending
	}
	best := models.TaskStatusCompleted
	for _, s := range statuses {
		if s == models.TaskStatusBlocked {
			s = models.TaskStatusPending
		}
		if statusRank[s] > statusRank[best] {
			best = s
		}
	}
	return best
}

// Rollup aggregates tasks at level. Each task contributes the metrics of its
// latest attempt; tasks without metrics contribute zero. Cost is priced from
// the summed token usage rather than summed per task.
func Rollup(tasks []*models.Task, level models.Level, pricing metrics.Pricing) models.Rollup {
	statuses := make([]models.TaskStatus, 0, len(tasks))
	var usage models.TokenUsage
	var duration float64
	for _, t := range tasks {
		statuses = append(statuses, t.Status)
		if m := t.Metrics(); m != nil {
			usage = usage.Add(m.TokenUsage)
			duration += m.DurationSeconds
		}
	}
	return models.Rollup{
		Level:           level,
		Status:          AggregateStatus(statuses),
		TaskCount:       len(tasks),
		TokenUsage:      usage,
		DurationSeconds: duration,
		CostUSD:         pricing.Cost(usage),
	}
}

// Compute builds the rollups of all three levels. Level 1 is keyed by
// branch and level 2 by the branch-qualified group key.
func Compute(tasks []*models.Task, pricing metrics.Pricing) models.HierarchyRollups {
	branches := make(map[string][]*models.Task)
	groups := make(map[string][]*models.Task)
	for _, t := range tasks {
		branches[t.Path.Level1] = append(branches[t.Path.Level1], t)
		groups[t.Path.GroupKey()] = append(groups[t.Path.GroupKey()], t)
	}

	out := models.HierarchyRollups{
		Level0: Rollup(tasks, models.LevelProject, pricing),
		Level1: make(map[string]models.Rollup, len(branches)),
		Level2: make(map[string]models.Rollup, len(groups)),
	}
	for id, ts := range branches {
		out.Level1[id] = Rollup(ts, models.LevelBranch, pricing)
	}
	for key, ts := range groups {
		out.Level2[key] = Rollup(ts, models.LevelGroup, pricing)
	}
	return out
}
