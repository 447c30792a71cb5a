package models

// Level identifies a rollup nesting level.
type Level int

const (
	// LevelProject aggregates every task under the root.
	LevelProject Level = 0
	// LevelBranch aggregates the groups of one branch.
	LevelBranch Level = 1
	// LevelGroup aggregates the tasks of one group.
	LevelGroup Level = 2
)

// Rollup is a derived aggregate over a set of tasks. It is recomputed on
// every read and never persisted.
type Rollup struct {
	Level           Level      `json:"level"`
	Status          TaskStatus `json:"status"`
	TaskCount       int        `json:"task_count"`
	TokenUsage      TokenUsage `json:"token_usage"`
	DurationSeconds float64    `json:"duration_seconds"`
	CostUSD         float64    `json:"cost_usd"`
}

// HierarchyRollups holds the rollups of all three levels.
type HierarchyRollups struct {
	Level0 Rollup            `json:"level0"`
	Level1 map[string]Rollup `json:"level1"`
	Level2 map[string]Rollup `json:"level2"`
}
