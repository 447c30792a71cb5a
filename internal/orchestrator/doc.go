// Package orchestrator drives a task graph to completion.
//
// A single control loop ticks on a fixed interval. Every tick loads a fresh
// snapshot from the tracker, asks the Scheduler which ready tasks fit in
// the free worker slots, marks each one in_progress and hands it to a
// Runner in its own goroutine. Completions free slots asynchronously; the
// next tick sees them through the tracker, which is the only shared state.
//
// Example usage:
//
//	sched := orchestrator.NewScheduler(4)
//	orch := orchestrator.New(
//		orchestrator.RequiredConfig{Store: adapter, Runner: supervisor},
//		orchestrator.WithScheduler(sched),
//		orchestrator.WithTickInterval(2*time.Second),
//		orchestrator.WithExitWhenIdle(true),
//	)
//	summary, err := orch.Run(ctx, "epic-1")
package orchestrator
