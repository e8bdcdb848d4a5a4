package core

import (
	"errors"
	"fmt"
	"time"
)

// Configuration errors. These are fatal at setup time and never retried.
var (
	// ErrDuplicateCapability signals a capability name collision at registration.
	ErrDuplicateCapability = errors.New("duplicate capability")
	// ErrUnknownCapability signals a lookup of an unregistered capability.
	ErrUnknownCapability = errors.New("unknown capability")
	// ErrUnknownAgent signals a lookup of an unregistered agent.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrInvalidCapabilityReference signals an agent referencing a capability
	// name that is not registered.
	ErrInvalidCapabilityReference = errors.New("invalid capability reference")
	// ErrUnknownThread signals an operation on a missing thread.
	ErrUnknownThread = errors.New("unknown thread")
	// ErrInvalidRunState signals a state-machine violation, e.g. submitting
	// tool outputs to a run that is not in requires_action. Programming
	// error; fails fast.
	ErrInvalidRunState = errors.New("invalid run state")
	// ErrUnknownRun signals an operation on a run id the engine never issued.
	ErrUnknownRun = errors.New("unknown run")
)

// RunTerminatedError is returned when a run reaches a non-completed terminal
// state. It carries the identifiers needed to reproduce and inspect state.
type RunTerminatedError struct {
	RunID    string
	AgentID  string
	ThreadID string
	Status   RunStatus
	Cause    string
}

func (e *RunTerminatedError) Error() string {
	msg := fmt.Sprintf("run %s (agent %s, thread %s) terminated with status %s", e.RunID, e.AgentID, e.ThreadID, e.Status)
	if e.Cause != "" {
		msg += ": " + e.Cause
	}
	return msg
}

// RunTimeoutError is returned when AwaitCompletion exceeds its deadline. The
// remote run may still complete; cancellation was requested best effort.
type RunTimeoutError struct {
	RunID    string
	AgentID  string
	ThreadID string
	Timeout  time.Duration
}

func (e *RunTimeoutError) Error() string {
	return fmt.Sprintf("run %s (agent %s, thread %s) did not finish within %s", e.RunID, e.AgentID, e.ThreadID, e.Timeout)
}

// ProviderUnavailableError is returned after transient provider failures
// exhausted the bounded retry budget.
type ProviderUnavailableError struct {
	Op       string // provider operation that kept failing
	RunID    string
	Attempts int
	Err      error
}

func (e *ProviderUnavailableError) Error() string {
	return fmt.Sprintf("provider unavailable during %s for run %s after %d attempts: %v", e.Op, e.RunID, e.Attempts, e.Err)
}

// Unwrap exposes the last underlying provider error.
func (e *ProviderUnavailableError) Unwrap() error { return e.Err }
