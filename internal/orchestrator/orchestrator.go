package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ShayCichocki/nova/internal/agent"
	"github.com/ShayCichocki/nova/internal/logging"
	"github.com/ShayCichocki/nova/internal/tracker"
	"github.com/ShayCichocki/nova/pkg/models"
)

// DefaultTickInterval is the polling interval used when none is configured.
const DefaultTickInterval = 2 * time.Second

// Summary counts what a run did.
type Summary struct {
	Ticks      int
	TickErrors int
	Dispatched int
	Completed  int
	Failed     int
	// PersistErrors counts terminal writes that failed after a worker
	// finished. Those tasks stay in_progress in the tracker.
	PersistErrors int
	// Stopped is set when the run ended because of a stop signal.
	Stopped bool
}

// Orchestrator runs the control loop for one root.
type Orchestrator struct {
	store        Store
	runner       Runner
	scheduler    *Scheduler
	tickInterval time.Duration
	exitWhenIdle bool
	signals      *Signals
	invalidator  Invalidator
	events       *EventEmitter
	logger       *slog.Logger

	mu       sync.Mutex
	inflight map[string]*inflight
	summary  Summary
	paused   bool
	// orphans remembers in_progress tasks already reported as having no
	// local worker.
	orphans map[string]bool

	completions chan agent.Result
	wg          sync.WaitGroup
}

// inflight is a task this process has dispatched and not yet seen finish.
type inflight struct {
	task      *models.Task
	startTime time.Time
}

// New creates an Orchestrator.
func New(cfg RequiredConfig, opts ...Option) *Orchestrator {
	o := &orchestratorOptions{tickInterval: DefaultTickInterval}
	for _, opt := range opts {
		opt(o)
	}
	if o.scheduler == nil {
		o.scheduler = NewScheduler(1)
	}
	if o.tickInterval <= 0 {
		o.tickInterval = DefaultTickInterval
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}

	return &Orchestrator{
		store:        cfg.Store,
		runner:       cfg.Runner,
		scheduler:    o.scheduler,
		tickInterval: o.tickInterval,
		exitWhenIdle: o.exitWhenIdle,
		signals:      o.signals,
		invalidator:  o.invalidator,
		events:       o.events,
		logger:       o.logger,
		inflight:     make(map[string]*inflight),
		orphans:      make(map[string]bool),
		completions:  make(chan agent.Result, o.scheduler.MaxWorkers()),
	}
}

// Run ticks until the graph is idle (with WithExitWhenIdle), a stop signal
// arrives, or ctx is cancelled. In every case in-flight workers are drained
// before Run returns. Cancelling ctx interrupts running workers; a stop
// signal lets them finish.
//
// Tracker errors abort only the current tick. A cyclic graph aborts the
// run with an error wrapping tracker.ErrCyclicGraph.
func (o *Orchestrator) Run(ctx context.Context, rootID string) (Summary, error) {
	ticker := time.NewTicker(o.tickInterval)
	defer ticker.Stop()

	var wake <-chan struct{}
	if o.signals != nil {
		wake = o.signals.Wake()
	}
	defer o.emit(Event{Type: EventRunDone})

	o.logger.Info("run started", "root", rootID, "max_workers", o.scheduler.MaxWorkers(), "tick", o.tickInterval)

	for {
		if ctx.Err() != nil {
			o.drain()
			return o.Summary(), ctx.Err()
		}
		if o.signals != nil && o.signals.ShouldStop() {
			o.emit(Event{Type: EventStopping, Message: fmt.Sprintf("draining %d workers", o.inflightCount())})
			o.logger.Info("stop requested, draining workers", "inflight", o.inflightCount())
			o.drain()
			o.mu.Lock()
			o.summary.Stopped = true
			o.mu.Unlock()
			return o.Summary(), nil
		}

		idle, err := o.Tick(ctx, rootID)
		switch {
		case errors.Is(err, tracker.ErrCyclicGraph):
			o.logger.Error("refusing to run against a cyclic graph", "root", rootID, "error", err)
			o.drain()
			return o.Summary(), err
		case err != nil && ctx.Err() == nil:
			o.logger.Warn("tick failed, retrying next tick", "root", rootID, "error", err)
		case err == nil && idle && o.exitWhenIdle:
			o.logger.Info("run idle, exiting", "root", rootID)
			return o.Summary(), nil
		}

		select {
		case <-ctx.Done():
			o.logger.Info("run cancelled, waiting for workers", "inflight", o.inflightCount())
			o.drain()
			return o.Summary(), ctx.Err()
		case res := <-o.completions:
			o.complete(res)
		case <-ticker.C:
		case <-wake:
		}
	}
}

// Tick loads a snapshot and dispatches what fits. It reports idle when
// nothing is running locally and nothing could be dispatched. Tick is not
// safe for concurrent use; Run calls it from a single goroutine.
func (o *Orchestrator) Tick(ctx context.Context, rootID string) (bool, error) {
	o.mu.Lock()
	o.summary.Ticks++
	o.mu.Unlock()

	snap, err := o.store.Load(ctx, rootID)
	o.invalidate()
	if err != nil {
		o.tickFailed(err)
		return false, err
	}

	if o.updatePaused() {
		return false, nil
	}

	inflightIDs := o.inflightIDs()
	o.reportOrphans(snap, inflightIDs)
	selected := o.scheduler.Select(snap, inflightIDs)

	var firstErr error
	for _, task := range selected {
		// Persist before spawning: a crash between the two leaves a visible
		// in_progress task rather than a lost one.
		if err := o.store.Persist(ctx, task.ID, models.TaskStatusInProgress, nil); err != nil {
			o.logger.Warn("dispatch persist failed", "task", task.ID, "error", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		o.dispatch(ctx, task)
	}
	if firstErr != nil {
		o.tickFailed(firstErr)
		return false, firstErr
	}

	o.logger.Debug("tick",
		"root", rootID,
		"tasks", snap.Len(),
		"ready", len(snap.Ready()),
		"dispatched", len(selected),
		"inflight", o.inflightCount(),
	)
	return len(selected) == 0 && o.inflightCount() == 0, nil
}

// dispatch runs task in its own goroutine.
func (o *Orchestrator) dispatch(ctx context.Context, task *models.Task) {
	o.mu.Lock()
	o.inflight[task.ID] = &inflight{task: task, startTime: time.Now()}
	o.summary.Dispatched++
	o.mu.Unlock()

	o.logger.Info("task dispatched", "task", task.ID, "title", task.Title, "retry", task.RetryCount)
	o.emit(Event{Type: EventTaskDispatched, TaskID: task.ID, TaskTitle: task.Title})

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.completions <- o.runner.Run(ctx, task)
	}()
}

// complete releases the slot of a finished task.
func (o *Orchestrator) complete(res agent.Result) {
	o.mu.Lock()
	inf := o.inflight[res.TaskID]
	delete(o.inflight, res.TaskID)
	if res.Status == models.TaskStatusCompleted {
		o.summary.Completed++
	} else {
		o.summary.Failed++
	}
	if res.PersistErr != nil {
		o.summary.PersistErrors++
	}
	o.mu.Unlock()
	o.invalidate()

	event := Event{
		Type:    EventTaskCompleted,
		TaskID:  res.TaskID,
		LogFile: res.LogPath,
		Error:   res.Err,
	}
	if inf != nil {
		event.TaskTitle = inf.task.Title
		event.Duration = time.Since(inf.startTime)
	}
	if m := res.Record.Metrics; m != nil {
		event.Tokens = m.TokenUsage.Total()
		event.Cost = m.CostUSD
	}
	if res.Status != models.TaskStatusCompleted {
		event.Type = EventTaskFailed
		event.Message = res.Record.FailureReason
	}
	o.emit(event)
}

// drain waits for every in-flight worker to report back.
func (o *Orchestrator) drain() {
	for o.inflightCount() > 0 {
		o.complete(<-o.completions)
	}
	o.wg.Wait()
}

// updatePaused tracks the pause file and reports whether dispatch is held.
func (o *Orchestrator) updatePaused() bool {
	paused := o.signals != nil && o.signals.Paused()
	o.mu.Lock()
	changed := paused != o.paused
	o.paused = paused
	o.mu.Unlock()

	if changed && paused {
		o.logger.Info("dispatch paused")
		o.emit(Event{Type: EventPaused})
	} else if changed {
		o.logger.Info("dispatch resumed")
		o.emit(Event{Type: EventResumed})
	}
	return paused
}

// reportOrphans warns once about in_progress tasks no local worker owns.
func (o *Orchestrator) reportOrphans(snap *tracker.Snapshot, inflightIDs map[string]bool) {
	for _, t := range snap.InProgress() {
		if inflightIDs[t.ID] || o.orphans[t.ID] {
			continue
		}
		o.orphans[t.ID] = true
		o.logger.Warn("task in_progress without a local worker; it occupies a slot until resolved", "task", t.ID)
	}
}

func (o *Orchestrator) tickFailed(err error) {
	o.mu.Lock()
	o.summary.TickErrors++
	o.mu.Unlock()
	o.emit(Event{Type: EventTickFailed, Error: err, Message: err.Error()})
}

func (o *Orchestrator) inflightIDs() map[string]bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make(map[string]bool, len(o.inflight))
	for id := range o.inflight {
		ids[id] = true
	}
	return ids
}

func (o *Orchestrator) inflightCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.inflight)
}

func (o *Orchestrator) invalidate() {
	if o.invalidator != nil {
		o.invalidator.Invalidate()
	}
}

func (o *Orchestrator) emit(e Event) {
	if o.events != nil {
		o.events.Emit(e)
	}
}

// Summary returns a copy of the run counters.
func (o *Orchestrator) Summary() Summary {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.summary
}
