// Package capability implements the invocable tool subsystem that lets
// agents call structured capabilities (APIs, computations, side-effects)
// with schema validated arguments and consistent error handling.
package capability

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentrun/internal/util"
)

// Capability defines a named, invocable function an agent may request
// mid-run.
//
// Capabilities are process-wide and shared read-only by every agent and run.
// Implementations must be safe to call concurrently for different
// invocations; the engine does not serialize calls to one capability.
type Capability interface {
	// Name returns the globally unique identifier for this capability
	// (snake_case recommended).
	Name() string

	// Description is provided to the model to explain when and how to use
	// the capability.
	Description() string

	// Parameters returns a JSON schema describing the expected arguments.
	Parameters() map[string]any

	// Call executes the capability with already-validated arguments. All
	// side effects belong here; the registry itself is never mutated by an
	// invocation.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ValidationError reports malformed arguments.
type ValidationError = util.ValidationError

// Error codes attached to CapabilityError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeExecution  = "EXECUTION_ERROR"
)

// CapabilityError wraps any fault raised while invoking a capability.
type CapabilityError struct {
	Capability string `json:"capability"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	Details    any    `json:"details,omitempty"`
}

func (e *CapabilityError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("capability error [%s] in %s: %s", e.Code, e.Capability, e.Message)
	}
	return fmt.Sprintf("capability error in %s: %s", e.Capability, e.Message)
}
