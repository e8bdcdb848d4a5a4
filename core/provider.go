package core

import "context"

// CapabilityDefinition declaratively exposes a callable capability to the
// provider. Parameters is a minimal JSON Schema object.
type CapabilityDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// AgentSpec is the provider-facing projection of an agent for one run: the
// registered config, the resolved definitions of its capability subset, and
// any per-run instruction suffix.
type AgentSpec struct {
	Agent             AgentConfig
	Capabilities      []CapabilityDefinition
	ExtraInstructions string
}

// RunHandle is an opaque reference to a provider-side run. The engine stores
// it and passes it back on every subsequent provider call.
type RunHandle struct {
	// ID is the provider's identifier for the run.
	ID string
	// Data carries provider-private state. The engine never inspects it.
	Data any
}

// RunState is a provider status snapshot.
type RunState struct {
	Status RunStatus
	// RequiredCalls is populated when Status is requires_action.
	RequiredCalls []ToolCall
	// Output holds the agent-authored messages produced by the run, set when
	// Status is completed. The engine appends them to the run's thread.
	Output []Message
	// Cause describes the provider-side failure for failed/expired runs.
	Cause string
}

// RunProvider is the contract with the remote language-model run service. Any
// conversational-completion backend implementing this shape is pluggable; the
// engine owns no wire format.
//
// Implementations must be safe for concurrent use: the engine polls and
// submits from multiple goroutines across runs.
type RunProvider interface {
	// CreateRun begins generating a response conditioned on the thread's
	// messages and the agent's instructions and capabilities.
	CreateRun(ctx context.Context, spec AgentSpec, messages []Message) (RunHandle, error)

	// GetStatus returns the current lifecycle state of the run.
	GetStatus(ctx context.Context, handle RunHandle) (RunState, error)

	// SubmitToolOutputs delivers one output per requested tool call as a
	// single batch, unblocking a run paused in requires_action.
	SubmitToolOutputs(ctx context.Context, handle RunHandle, outputs []ToolOutput) error

	// Cancel requests best-effort cancellation of the remote run.
	Cancel(ctx context.Context, handle RunHandle) error
}
