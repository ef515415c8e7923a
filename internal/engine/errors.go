package engine

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrConcurrentRun is returned by Start when the engine already has a run in
// flight. The active run is unaffected.
var ErrConcurrentRun = errors.New("engine: a run is already active on this engine")

// ConcurrentRunError names the run that blocked a Start. It matches
// ErrConcurrentRun under errors.Is.
type ConcurrentRunError struct {
	// ActiveRunID is uuid.Nil when the active run had not been assigned yet.
	ActiveRunID uuid.UUID
}

func (e *ConcurrentRunError) Error() string {
	if e.ActiveRunID == uuid.Nil {
		return ErrConcurrentRun.Error()
	}
	return fmt.Sprintf("%s (run %s)", ErrConcurrentRun, e.ActiveRunID)
}

func (e *ConcurrentRunError) Is(target error) bool {
	return target == ErrConcurrentRun
}

// WorkerFaultError wraps an error returned (or a panic raised) by a work
// function. It is only returned after the render surface has been closed.
type WorkerFaultError struct {
	RunID uuid.UUID
	Err   error
}

func (e *WorkerFaultError) Error() string {
	return fmt.Sprintf("work function failed (run %s): %v", e.RunID, e.Err)
}

func (e *WorkerFaultError) Unwrap() error {
	return e.Err
}

// PanicError carries a value recovered from a panicking work function.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
