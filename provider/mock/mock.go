// Package mock provides a deterministic in-memory core.RunProvider for tests
// and examples. Behavior is scripted per agent name: canned replies, tool
// call requests, failures and transient errors.
package mock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrun/core"
)

// Script defines the provider behavior for runs of one agent (keyed by the
// agent's Name).
type Script struct {
	// ToolCalls, when set, pauses the run once in requires_action with these
	// calls before completing.
	ToolCalls []core.ToolCall
	// Reply computes the final agent message from the run's input messages
	// and submitted tool outputs. Takes precedence over ReplyText.
	Reply func(messages []core.Message, outputs []core.ToolOutput) string
	// ReplyText is a canned final agent message.
	ReplyText string
	// FailWith, when non-empty, terminates the run as failed with this cause.
	FailWith string
	// InProgressPolls delays progress by reporting in_progress for that many
	// polls first.
	InProgressPolls int
}

type runState struct {
	script    Script
	messages  []core.Message
	outputs   []core.ToolOutput
	polls     int
	submitted bool
	cancelled bool
}

// Provider implements core.RunProvider with fully local, deterministic
// behavior.
type Provider struct {
	mu      sync.Mutex
	scripts map[string]Script
	runs    map[string]*runState

	// transientErrors makes the next N GetStatus calls fail, for retry tests.
	transientErrors int
}

// NewProvider constructs an empty mock provider. Unscripted agents echo the
// last user message.
func NewProvider() *Provider {
	return &Provider{
		scripts: make(map[string]Script),
		runs:    make(map[string]*runState),
	}
}

// AddScript registers the behavior for runs of the named agent.
func (p *Provider) AddScript(agentName string, script Script) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scripts[agentName] = script
}

// FailNextStatusCalls makes the next n GetStatus calls return a transient
// error.
func (p *Provider) FailNextStatusCalls(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transientErrors = n
}

// CreateRun implements core.RunProvider.
func (p *Provider) CreateRun(_ context.Context, spec core.AgentSpec, messages []core.Message) (core.RunHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := core.NewID()
	script := p.scripts[spec.Agent.Name]
	msgs := make([]core.Message, len(messages))
	copy(msgs, messages)
	p.runs[id] = &runState{script: script, messages: msgs}
	return core.RunHandle{ID: id}, nil
}

// GetStatus implements core.RunProvider.
func (p *Provider) GetStatus(_ context.Context, handle core.RunHandle) (core.RunState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.transientErrors > 0 {
		p.transientErrors--
		return core.RunState{}, errors.New("mock: transient provider error")
	}

	run, ok := p.runs[handle.ID]
	if !ok {
		return core.RunState{}, fmt.Errorf("mock: unknown run %s", handle.ID)
	}

	if run.cancelled {
		return core.RunState{Status: core.RunStatusCancelled}, nil
	}
	if run.polls < run.script.InProgressPolls {
		run.polls++
		return core.RunState{Status: core.RunStatusInProgress}, nil
	}
	if run.script.FailWith != "" {
		return core.RunState{Status: core.RunStatusFailed, Cause: run.script.FailWith}, nil
	}
	if len(run.script.ToolCalls) > 0 && !run.submitted {
		calls := make([]core.ToolCall, len(run.script.ToolCalls))
		copy(calls, run.script.ToolCalls)
		return core.RunState{Status: core.RunStatusRequiresAction, RequiredCalls: calls}, nil
	}

	reply := run.script.ReplyText
	if run.script.Reply != nil {
		reply = run.script.Reply(run.messages, run.outputs)
	}
	if reply == "" {
		reply = "Mock response to: " + lastUserContent(run.messages)
	}
	return core.RunState{
		Status: core.RunStatusCompleted,
		Output: []core.Message{core.NewAgentMessage(reply)},
	}, nil
}

// SubmitToolOutputs implements core.RunProvider. It rejects submissions for
// runs that requested nothing.
func (p *Provider) SubmitToolOutputs(_ context.Context, handle core.RunHandle, outputs []core.ToolOutput) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	run, ok := p.runs[handle.ID]
	if !ok {
		return fmt.Errorf("mock: unknown run %s", handle.ID)
	}
	if len(run.script.ToolCalls) == 0 || run.submitted {
		return fmt.Errorf("mock: run %s expects no tool outputs", handle.ID)
	}
	if len(outputs) != len(run.script.ToolCalls) {
		return fmt.Errorf("mock: run %s expected %d outputs, got %d", handle.ID, len(run.script.ToolCalls), len(outputs))
	}
	run.outputs = append([]core.ToolOutput(nil), outputs...)
	run.submitted = true
	return nil
}

// Cancel implements core.RunProvider.
func (p *Provider) Cancel(_ context.Context, handle core.RunHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	run, ok := p.runs[handle.ID]
	if !ok {
		return fmt.Errorf("mock: unknown run %s", handle.ID)
	}
	run.cancelled = true
	return nil
}

func lastUserContent(messages []core.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == core.RoleUser {
			return messages[i].Content
		}
	}
	return ""
}
