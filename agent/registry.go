// Package agent holds the registry of agent definitions. An agent is a named
// configuration of model, instructions and allowed capabilities; definitions
// are immutable once registered and removed only by explicit deregistration.
package agent

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
)

// CapabilityResolver resolves capability names into provider-facing
// definitions. Satisfied by *capability.Registry. A name that cannot be
// resolved is a configuration error at registration time, not a runtime race.
type CapabilityResolver interface {
	Definitions(names []string) ([]core.CapabilityDefinition, error)
}

// Registry stores agent definitions keyed by id. Effectively immutable after
// startup; reads take a shared lock only to coexist with late registration.
type Registry struct {
	mu           sync.RWMutex
	agents       map[string]core.AgentConfig
	shapes       map[string]*jsonschema.Schema
	capabilities CapabilityResolver
	logger       logging.Logger
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// NewRegistry constructs an agent registry validating capability references
// through the given resolver.
func NewRegistry(capabilities CapabilityResolver, optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		agents:       make(map[string]core.AgentConfig),
		shapes:       make(map[string]*jsonschema.Schema),
		capabilities: capabilities,
		logger:       opts.Logger,
	}
}

// Register validates and stores an agent definition, returning its id. An id
// is assigned when the config carries none. Fails with
// core.ErrInvalidCapabilityReference if any referenced capability is
// unregistered, and with a compile error if ResponseShape is not a valid
// JSON schema. There is no update operation; changing behavior means
// registering a new agent.
func (r *Registry) Register(cfg core.AgentConfig) (string, error) {
	if _, err := r.capabilities.Definitions(cfg.Capabilities); err != nil {
		return "", fmt.Errorf("agent %q: %w", cfg.Name, err)
	}

	var shape *jsonschema.Schema
	if cfg.ResponseShape != nil {
		compiled, err := compileShape(cfg.ResponseShape)
		if err != nil {
			return "", fmt.Errorf("agent %q: invalid response shape: %w", cfg.Name, err)
		}
		shape = compiled
	}

	stored := cfg.Clone()
	if stored.ID == "" {
		stored.ID = core.NewID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[stored.ID]; exists {
		return "", fmt.Errorf("agent id %s already registered", stored.ID)
	}
	r.agents[stored.ID] = stored
	if shape != nil {
		r.shapes[stored.ID] = shape
	}
	r.logger.Debug("agent.registered", "agent_id", stored.ID, "name", stored.Name)
	return stored.ID, nil
}

// Get returns a copy of the agent definition or core.ErrUnknownAgent.
func (r *Registry) Get(agentID string) (core.AgentConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.agents[agentID]
	if !ok {
		return core.AgentConfig{}, fmt.Errorf("%w: %s", core.ErrUnknownAgent, agentID)
	}
	return cfg.Clone(), nil
}

// Deregister removes an agent. Idempotent: removing an absent id is a no-op.
func (r *Registry) Deregister(agentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.agents, agentID)
	delete(r.shapes, agentID)
}

// List returns copies of all registered agent definitions.
func (r *Registry) List() []core.AgentConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.AgentConfig, 0, len(r.agents))
	for _, cfg := range r.agents {
		out = append(out, cfg.Clone())
	}
	return out
}

// ValidateResponse checks a final answer against the agent's compiled
// ResponseShape. Agents without a shape accept anything.
func (r *Registry) ValidateResponse(agentID string, payload string) error {
	r.mu.RLock()
	shape, ok := r.shapes[agentID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	var decoded any
	if err := json.Unmarshal([]byte(payload), &decoded); err != nil {
		return fmt.Errorf("agent %s: response is not valid JSON: %w", agentID, err)
	}
	if err := shape.Validate(decoded); err != nil {
		return fmt.Errorf("agent %s: response shape mismatch: %w", agentID, err)
	}
	return nil
}

func compileShape(shape map[string]any) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(shape)
	if err != nil {
		return nil, err
	}
	return jsonschema.CompileString("response_shape.json", string(raw))
}
