package tracker

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the root or task does not exist in the store.
	ErrNotFound = errors.New("not found")
	// ErrCyclicGraph indicates the dependency graph contains a cycle.
	// It is the only load error the orchestrator treats as unrecoverable.
	ErrCyclicGraph = errors.New("cyclic dependency graph")
	// ErrInvalidGraph indicates an edge references a node outside the graph.
	ErrInvalidGraph = errors.New("invalid dependency graph")
	// ErrUnavailable indicates the store could not be reached.
	ErrUnavailable = errors.New("tracker unavailable")
	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Error is returned by every Adapter operation.
type Error struct {
	// Op is the adapter operation: load, persist or reopen.
	Op string
	// ID is the root or task ID the operation targeted.
	ID  string
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("tracker %s %s: %v", e.Op, e.ID, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func wrap(op, id string, err error) error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) && te.Op == op && te.ID == id {
		return err
	}
	return &Error{Op: op, ID: id, Err: err}
}
