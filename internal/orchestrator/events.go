package orchestrator

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/ShayCichocki/nova/internal/logging"
)

// EventType represents the type of orchestrator event.
type EventType string

const (
	// EventTaskDispatched indicates a task was marked in_progress and handed
	// to a worker.
	EventTaskDispatched EventType = "task_dispatched"
	// EventTaskCompleted indicates a task completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskFailed indicates a task's attempt failed.
	EventTaskFailed EventType = "task_failed"
	// EventTickFailed indicates a tick was abandoned, usually because the
	// tracker was unavailable. The next tick retries.
	EventTickFailed EventType = "tick_failed"
	// EventPaused indicates dispatch was paused by a signal file.
	EventPaused EventType = "paused"
	// EventResumed indicates dispatch resumed after a pause.
	EventResumed EventType = "resumed"
	// EventStopping indicates a stop was requested and in-flight workers are
	// draining.
	EventStopping EventType = "stopping"
	// EventRunDone indicates the run loop has exited.
	EventRunDone EventType = "run_done"
)

// Event represents an event emitted by the orchestrator.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// TaskTitle is the title of the related task, if applicable.
	TaskTitle string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Timestamp is when the event occurred.
	Timestamp time.Time
	// Tokens is the token total of the finished attempt.
	Tokens int64
	// Cost is the cost of the finished attempt in USD.
	Cost float64
	// Duration is the wall-clock duration of the finished attempt.
	Duration time.Duration
	// LogFile is the path to the worker's captured output.
	LogFile string
}

// EventEmitter delivers events to a single subscriber.
type EventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
	logger       *slog.Logger
}

// NewEventEmitter creates a new EventEmitter with the given buffer size.
func NewEventEmitter(bufferSize int, logger *slog.Logger) *EventEmitter {
	if logger == nil {
		logger = logging.Discard()
	}
	return &EventEmitter{
		events: make(chan Event, bufferSize),
		logger: logger,
	}
}

// Emit sends an event. When the buffer is full it waits briefly for the
// subscriber before dropping the event.
func (e *EventEmitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			e.logger.Warn("event channel full, dropped event", "type", event.Type, "dropped_total", count)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. Emit must not be called afterwards.
func (e *EventEmitter) Close() {
	close(e.events)
}
