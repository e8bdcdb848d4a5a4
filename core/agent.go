package core

import "github.com/google/uuid"

// AgentConfig is the immutable definition of an agent: which model it runs
// on, how it behaves, and the subset of registered capabilities it is allowed
// to invoke mid-run. Configs are created once at registration time and never
// mutated; changing behavior means registering a new agent.
type AgentConfig struct {
	// ID uniquely identifies the agent. Assigned at registration if empty.
	ID string `json:"id" yaml:"id"`
	// Name is a human readable label used in logs and errors.
	Name string `json:"name" yaml:"name"`
	// Instructions is the system-level behavioral text for the agent.
	Instructions string `json:"instructions" yaml:"instructions"`
	// Model is an opaque model identifier interpreted by the provider.
	Model string `json:"model" yaml:"model"`
	// Temperature controls generation randomness.
	Temperature float64 `json:"temperature" yaml:"temperature"`
	// Capabilities lists the registered capability names the agent may call.
	// Order is preserved when building the provider-facing tool list.
	Capabilities []string `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	// ResponseShape optionally constrains the final answer to a JSON schema.
	ResponseShape map[string]any `json:"response_shape,omitempty" yaml:"response_shape,omitempty"`
	// Metadata is an open key/value bag attached to the agent.
	Metadata map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a deep copy safe for independent use. Registries hand out
// clones so callers cannot mutate registered definitions.
func (c AgentConfig) Clone() AgentConfig {
	clone := c
	if c.Capabilities != nil {
		clone.Capabilities = make([]string, len(c.Capabilities))
		copy(clone.Capabilities, c.Capabilities)
	}
	if c.ResponseShape != nil {
		clone.ResponseShape = make(map[string]any, len(c.ResponseShape))
		for k, v := range c.ResponseShape {
			clone.ResponseShape[k] = v
		}
	}
	if c.Metadata != nil {
		clone.Metadata = make(map[string]string, len(c.Metadata))
		for k, v := range c.Metadata {
			clone.Metadata[k] = v
		}
	}
	return clone
}

// NewID generates a unique identifier used for agents, threads and runs.
func NewID() string { return uuid.NewString() }
