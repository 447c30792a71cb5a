package models

import "time"

// RecordTypeMetrics tags attempt records stored in the tracker.
const RecordTypeMetrics = "metrics"

// TokenUsage holds the four token counters reported by a worker.
type TokenUsage struct {
	Input         int64 `json:"input_tokens"`
	Output        int64 `json:"output_tokens"`
	CacheRead     int64 `json:"cache_read_tokens"`
	CacheCreation int64 `json:"cache_creation_tokens"`
}

// Add returns the element-wise sum of u and o.
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		Input:         u.Input + o.Input,
		Output:        u.Output + o.Output,
		CacheRead:     u.CacheRead + o.CacheRead,
		CacheCreation: u.CacheCreation + o.CacheCreation,
	}
}

// Total returns the sum of all counters.
func (u TokenUsage) Total() int64 {
	return u.Input + u.Output + u.CacheRead + u.CacheCreation
}

// IsZero reports whether every counter is zero.
func (u TokenUsage) IsZero() bool {
	return u == TokenUsage{}
}

// Metrics is the resource consumption of one terminated attempt.
type Metrics struct {
	TokenUsage      TokenUsage `json:"token_usage"`
	DurationSeconds float64    `json:"duration_seconds"`
	CostUSD         float64    `json:"cost_usd"`
}

// AttemptRecord is the immutable record appended to the tracker when an
// attempt reaches a terminal status. Retries append new records.
type AttemptRecord struct {
	// Type is always RecordTypeMetrics; other comment types are ignored.
	Type string `json:"type"`
	// AttemptID uniquely identifies the attempt.
	AttemptID string `json:"attempt_id"`
	// Outcome is completed or failed.
	Outcome TaskStatus `json:"outcome"`
	// FailureReason is set when Outcome is failed.
	FailureReason string `json:"failure_reason,omitempty"`
	// TimedOut is set when the supervisor killed the worker at its ceiling.
	TimedOut bool `json:"timed_out,omitempty"`
	// ExitCode is the worker's exit code, -1 when it never started or was killed.
	ExitCode int `json:"exit_code"`
	// StartedAt and FinishedAt bracket the attempt.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// Metrics is nil when the worker output could not be parsed.
	Metrics *Metrics `json:"metrics"`
}
