package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/ShayCichocki/nova/internal/agent"
	"github.com/ShayCichocki/nova/internal/tracker"
	"github.com/ShayCichocki/nova/pkg/models"
)

// Store is the slice of the tracker adapter the orchestrator needs.
type Store interface {
	Load(ctx context.Context, rootID string) (*tracker.Snapshot, error)
	Persist(ctx context.Context, id string, status models.TaskStatus, record *models.AttemptRecord) error
}

// Runner executes one attempt of a task and persists its terminal status.
// *agent.Supervisor is the production Runner.
type Runner interface {
	Run(ctx context.Context, task *models.Task) agent.Result
}

// Invalidator is notified whenever tracker state may have changed, so
// read-side caches can drop stale projections.
type Invalidator interface {
	Invalidate()
}

// RequiredConfig contains the minimal required configuration for an Orchestrator.
type RequiredConfig struct {
	// Store loads snapshots and persists dispatch transitions.
	Store Store
	// Runner executes dispatched tasks.
	Runner Runner
}

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

type orchestratorOptions struct {
	scheduler    *Scheduler
	tickInterval time.Duration
	exitWhenIdle bool
	signals      *Signals
	invalidator  Invalidator
	events       *EventEmitter
	logger       *slog.Logger
}

// WithScheduler sets the scheduler. The default allows one worker.
func WithScheduler(s *Scheduler) Option {
	return func(o *orchestratorOptions) { o.scheduler = s }
}

// WithMaxWorkers is shorthand for WithScheduler(NewScheduler(n)).
func WithMaxWorkers(n int) Option {
	return func(o *orchestratorOptions) { o.scheduler = NewScheduler(n) }
}

// WithTickInterval sets the polling interval of the control loop.
func WithTickInterval(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.tickInterval = d }
}

// WithExitWhenIdle makes Run return once nothing is running and nothing
// can be dispatched.
func WithExitWhenIdle(b bool) Option {
	return func(o *orchestratorOptions) { o.exitWhenIdle = b }
}

// WithSignals attaches stop/pause control files.
func WithSignals(s *Signals) Option {
	return func(o *orchestratorOptions) { o.signals = s }
}

// WithInvalidator registers a cache to invalidate after every tick and
// every completion.
func WithInvalidator(inv Invalidator) Option {
	return func(o *orchestratorOptions) { o.invalidator = inv }
}

// WithEvents sets the emitter that receives progress events.
func WithEvents(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.events = e }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}
