package core

import "time"

// RunStatus models the lifecycle of a run. A run is terminal exactly once and
// never reused.
type RunStatus string

const (
	// RunStatusQueued is the initial state before the provider accepts the run.
	RunStatusQueued RunStatus = "queued"
	// RunStatusInProgress means the provider is generating a response.
	RunStatusInProgress RunStatus = "in_progress"
	// RunStatusRequiresAction means generation is paused pending tool outputs.
	RunStatusRequiresAction RunStatus = "requires_action"
	// RunStatusCompleted is the successful terminal state.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusFailed is the provider-side failure terminal state.
	RunStatusFailed RunStatus = "failed"
	// RunStatusCancelled is the terminal state after an explicit cancel.
	RunStatusCancelled RunStatus = "cancelled"
	// RunStatusExpired is the terminal state when the provider gave up.
	RunStatusExpired RunStatus = "expired"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled, RunStatusExpired:
		return true
	}
	return false
}

// ToolCall is a capability invocation requested by the provider while a run
// is in requires_action.
type ToolCall struct {
	// ID correlates the call with its submitted output.
	ID string `json:"id"`
	// Name is the registered capability name.
	Name string `json:"name"`
	// Arguments is the serialized (JSON) argument payload.
	Arguments string `json:"arguments,omitempty"`
}

// ToolOutput is the result submitted back for one ToolCall. Exactly one
// output is submitted per call id; a failed invocation carries its error as
// payload so the remote run can react to it.
type ToolOutput struct {
	CallID string `json:"call_id"`
	Output any    `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Run is the engine's view of one execution of an agent against a thread.
type Run struct {
	ID            string     `json:"id"`
	AgentID       string     `json:"agent_id"`
	ThreadID      string     `json:"thread_id"`
	Status        RunStatus  `json:"status"`
	RequiredCalls []ToolCall `json:"required_calls,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	LastErr       string     `json:"last_err,omitempty"`
}
