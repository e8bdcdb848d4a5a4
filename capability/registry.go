package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/internal/util"
	"github.com/hupe1980/agentrun/logging"
)

// Registry holds the set of invocable capabilities shared by all agents and
// runs. After startup it is effectively immutable and read concurrently
// without contention; registration is guarded for the setup phase.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[string]Capability
	logger       logging.Logger
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Logger logging.Logger
}

// NewRegistry constructs an empty capability registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		capabilities: make(map[string]Capability),
		logger:       opts.Logger,
	}
}

// Register adds a capability. Names are globally unique; a collision fails
// with core.ErrDuplicateCapability.
func (r *Registry) Register(c Capability) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.capabilities[c.Name()]; exists {
		return fmt.Errorf("%w: %s", core.ErrDuplicateCapability, c.Name())
	}
	r.capabilities[c.Name()] = c
	r.logger.Debug("capability.registered", "capability", c.Name())
	return nil
}

// Lookup returns the capability registered under name or
// core.ErrUnknownCapability.
func (r *Registry) Lookup(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.capabilities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownCapability, name)
	}
	return c, nil
}

// Names returns all registered capability names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	return names
}

// Definitions resolves an ordered list of capability names into
// provider-facing definitions. A missing name fails with
// core.ErrInvalidCapabilityReference.
func (r *Registry) Definitions(names []string) ([]core.CapabilityDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]core.CapabilityDefinition, 0, len(names))
	for _, name := range names {
		c, ok := r.capabilities[name]
		if !ok {
			return nil, fmt.Errorf("%w: %s", core.ErrInvalidCapabilityReference, name)
		}
		defs = append(defs, core.CapabilityDefinition{
			Name:        c.Name(),
			Description: c.Description(),
			Parameters:  c.Parameters(),
		})
	}
	return defs, nil
}

// Invoke validates args against the capability's schema and calls its
// executor. Invocation never mutates the registry.
//
// Error semantics:
//
//	unknown name       -> core.ErrUnknownCapability
//	validation failure -> *CapabilityError{Code: VALIDATION_ERROR}
//	executor error     -> *CapabilityError{Code: EXECUTION_ERROR}
//	executor panic     -> *CapabilityError{Code: EXECUTION_ERROR} (recovered)
//	*CapabilityError   -> forwarded unchanged
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (any, error) {
	c, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	r.logger.Debug("capability.call.start", "capability", name)

	if err := util.ValidateParameters(args, c.Parameters()); err != nil {
		r.logger.Warn("capability.call.validation_failed", "capability", name, "error", err.Error())
		return nil, &CapabilityError{
			Capability: name,
			Message:    fmt.Sprintf("argument validation failed: %v", err),
			Code:       CodeValidation,
			Details:    err,
		}
	}

	var result any
	func() { // panic safety: a faulty executor must not take down the run
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("capability.call.panic", "capability", name, "recover", rec, "stack", string(debug.Stack()))
				err = &CapabilityError{
					Capability: name,
					Message:    fmt.Sprintf("panic: %v", rec),
					Code:       CodeExecution,
				}
			}
		}()
		result, err = c.Call(ctx, args)
	}()

	if err != nil {
		if capErr, ok := err.(*CapabilityError); ok {
			r.logger.Error("capability.call.error", "capability", name, "error", capErr.Message)
			return nil, capErr
		}
		r.logger.Error("capability.call.error", "capability", name, "error", err.Error())
		return nil, &CapabilityError{
			Capability: name,
			Message:    err.Error(),
			Code:       CodeExecution,
		}
	}

	r.logger.Info("capability.call.success", "capability", name, "duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

// InvokeRaw decodes a serialized JSON argument payload then invokes. An empty
// payload means no arguments.
func (r *Registry) InvokeRaw(ctx context.Context, name, rawArgs string) (any, error) {
	args := map[string]any{}
	if rawArgs != "" {
		if err := json.Unmarshal([]byte(rawArgs), &args); err != nil {
			return nil, &CapabilityError{
				Capability: name,
				Message:    fmt.Sprintf("failed to decode arguments: %v", err),
				Code:       CodeValidation,
			}
		}
	}
	return r.Invoke(ctx, name, args)
}
