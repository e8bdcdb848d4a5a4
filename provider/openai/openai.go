// Package openai implements core.RunProvider on top of the OpenAI Chat
// Completions API (including function/tool calling). The stateless completion
// API is adapted into the asynchronous run lifecycle the engine expects:
// generation happens lazily on the first status poll, tool call requests
// surface as requires_action, and submitted outputs feed a follow-up
// completion until the model stops calling tools.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/openai/openai-go"

	"github.com/hupe1980/agentrun/core"
)

// Options configure the OpenAI run provider. Fields mirror a minimal subset
// of Chat Completion parameters; extend via functional options without
// breaking callers.
type Options struct {
	// DefaultModel is used when an agent config names no model.
	DefaultModel string
	// DefaultTemperature is used when an agent config sets none.
	DefaultTemperature float64
	MaxCompletionTokens int64
}

// Provider adapts Chat Completions to the core.RunProvider contract.
type Provider struct {
	client *openai.Client
	opts   Options

	mu   sync.Mutex
	runs map[string]*runState
}

type runState struct {
	model       string
	temperature float64
	messages    []openai.ChatCompletionMessageParamUnion
	tools       []openai.ChatCompletionToolParam

	status    core.RunStatus
	pending   []core.ToolCall
	output    []core.Message
	cause     string
	cancelled bool
	// generating guards against concurrent completion calls for one run.
	generating bool
	// needsTurn marks that a completion call is due (run start or after
	// tool outputs).
	needsTurn bool
}

// NewProvider creates a provider using the default client (API key from the
// environment).
func NewProvider(optFns ...func(o *Options)) *Provider {
	client := openai.NewClient()
	return NewProviderFromClient(&client, optFns...)
}

// NewProviderFromClient creates a provider from an existing client.
func NewProviderFromClient(client *openai.Client, optFns ...func(o *Options)) *Provider {
	opts := Options{
		DefaultModel:        openai.ChatModelGPT4oMini,
		DefaultTemperature:  0.7,
		MaxCompletionTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts, runs: make(map[string]*runState)}
}

// CreateRun implements core.RunProvider.
func (p *Provider) CreateRun(_ context.Context, spec core.AgentSpec, messages []core.Message) (core.RunHandle, error) {
	model := spec.Agent.Model
	if model == "" {
		model = p.opts.DefaultModel
	}
	temperature := spec.Agent.Temperature
	if temperature == 0 {
		temperature = p.opts.DefaultTemperature
	}

	convo := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt(spec)),
	}
	for _, msg := range messages {
		switch msg.Role {
		case core.RoleAgent:
			convo = append(convo, openai.AssistantMessage(msg.Content))
		default:
			convo = append(convo, openai.UserMessage(msg.Content))
		}
	}

	run := &runState{
		model:       model,
		temperature: temperature,
		messages:    convo,
		tools:       buildTools(spec.Capabilities),
		status:      core.RunStatusInProgress,
		needsTurn:   true,
	}

	id := core.NewID()
	p.mu.Lock()
	p.runs[id] = run
	p.mu.Unlock()
	return core.RunHandle{ID: id}, nil
}

// GetStatus implements core.RunProvider. The first poll after run creation or
// tool output submission performs the completion call; concurrent polls on
// the same run observe in_progress until it finishes.
func (p *Provider) GetStatus(ctx context.Context, handle core.RunHandle) (core.RunState, error) {
	p.mu.Lock()
	run, ok := p.runs[handle.ID]
	if !ok {
		p.mu.Unlock()
		return core.RunState{}, fmt.Errorf("openai: unknown run %s", handle.ID)
	}
	if run.cancelled && !run.status.Terminal() {
		run.status = core.RunStatusCancelled
	}
	if !run.needsTurn || run.generating || run.status.Terminal() {
		state := snapshot(run)
		p.mu.Unlock()
		return state, nil
	}
	run.generating = true
	params := openai.ChatCompletionNewParams{
		Messages:            run.messages,
		Model:               run.model,
		Temperature:         openai.Float(run.temperature),
		MaxCompletionTokens: openai.Int(p.opts.MaxCompletionTokens),
	}
	if len(run.tools) > 0 {
		params.Tools = run.tools
	}
	p.mu.Unlock()

	resp, err := p.client.Chat.Completions.New(ctx, params)

	p.mu.Lock()
	defer p.mu.Unlock()
	run.generating = false
	run.needsTurn = false
	if err != nil {
		// Leave needsTurn set so the engine's retry triggers another attempt.
		run.needsTurn = true
		return core.RunState{}, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		run.status = core.RunStatusFailed
		run.cause = "no choices returned"
		return snapshot(run), nil
	}

	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) > 0 {
		calls := make([]core.ToolCall, len(choice.Message.ToolCalls))
		sdkCalls := make([]openai.ChatCompletionMessageToolCallParam, len(choice.Message.ToolCalls))
		for i, tc := range choice.Message.ToolCalls {
			calls[i] = core.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments}
			sdkCalls[i] = openai.ChatCompletionMessageToolCallParam{
				ID:   tc.ID,
				Type: "function",
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			}
		}
		run.messages = append(run.messages, openai.ChatCompletionMessageParamUnion{
			OfAssistant: &openai.ChatCompletionAssistantMessageParam{
				Role:      "assistant",
				ToolCalls: sdkCalls,
			},
		})
		run.status = core.RunStatusRequiresAction
		run.pending = calls
		return snapshot(run), nil
	}

	run.messages = append(run.messages, openai.AssistantMessage(choice.Message.Content))
	run.status = core.RunStatusCompleted
	run.output = []core.Message{core.NewAgentMessage(choice.Message.Content)}
	return snapshot(run), nil
}

// SubmitToolOutputs implements core.RunProvider.
func (p *Provider) SubmitToolOutputs(_ context.Context, handle core.RunHandle, outputs []core.ToolOutput) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	run, ok := p.runs[handle.ID]
	if !ok {
		return fmt.Errorf("openai: unknown run %s", handle.ID)
	}
	if run.status != core.RunStatusRequiresAction {
		return fmt.Errorf("openai: run %s is %s, not awaiting tool outputs", handle.ID, run.status)
	}
	if len(outputs) != len(run.pending) {
		return fmt.Errorf("openai: run %s expected %d outputs, got %d", handle.ID, len(run.pending), len(outputs))
	}
	for _, out := range outputs {
		run.messages = append(run.messages, openai.ToolMessage(encodeOutput(out), out.CallID))
	}
	run.pending = nil
	run.status = core.RunStatusInProgress
	run.needsTurn = true
	return nil
}

// Cancel implements core.RunProvider. The flag takes effect on the next poll;
// an in-flight completion call is not interrupted.
func (p *Provider) Cancel(_ context.Context, handle core.RunHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	run, ok := p.runs[handle.ID]
	if !ok {
		return fmt.Errorf("openai: unknown run %s", handle.ID)
	}
	run.cancelled = true
	return nil
}

func snapshot(run *runState) core.RunState {
	state := core.RunState{Status: run.status, Cause: run.cause}
	if run.status == core.RunStatusRequiresAction {
		state.RequiredCalls = append([]core.ToolCall(nil), run.pending...)
	}
	if run.status == core.RunStatusCompleted {
		state.Output = append([]core.Message(nil), run.output...)
	}
	// A turn in flight (or still due) reads as in_progress to the engine.
	if state.Status == core.RunStatusInProgress || (run.needsTurn && !run.status.Terminal() && run.status != core.RunStatusRequiresAction) {
		state.Status = core.RunStatusInProgress
		state.RequiredCalls = nil
		state.Output = nil
	}
	return state
}

func systemPrompt(spec core.AgentSpec) string {
	prompt := spec.Agent.Instructions
	if spec.ExtraInstructions != "" {
		prompt += "\n\n" + spec.ExtraInstructions
	}
	if spec.Agent.ResponseShape != nil {
		if raw, err := json.Marshal(spec.Agent.ResponseShape); err == nil {
			prompt += "\n\nRespond with a single JSON object conforming to this schema:\n" + string(raw)
		}
	}
	return prompt
}

func buildTools(defs []core.CapabilityDefinition) []openai.ChatCompletionToolParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]openai.ChatCompletionToolParam, len(defs))
	for i, def := range defs {
		tools[i] = openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  def.Parameters,
			},
		}
	}
	return tools
}

// encodeOutput serializes a tool output (or its error) for the model.
func encodeOutput(out core.ToolOutput) string {
	if out.Error != "" {
		raw, _ := json.Marshal(map[string]string{"error": out.Error})
		return string(raw)
	}
	if s, ok := out.Output.(string); ok {
		return s
	}
	raw, err := json.Marshal(out.Output)
	if err != nil {
		return fmt.Sprintf("%v", out.Output)
	}
	return string(raw)
}
