// Package anthropic implements core.RunProvider on top of the Anthropic
// Messages API. Like the OpenAI provider, the stateless API is adapted into
// the asynchronous run lifecycle: a status poll drives the generation turn,
// tool_use blocks surface as requires_action, and submitted outputs are sent
// back as tool_result blocks in a follow-up turn.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/agentrun/core"
)

// Options configure the Anthropic run provider.
type Options struct {
	// DefaultModel is used when an agent config names no model.
	DefaultModel anthropic.Model
	// DefaultTemperature is used when an agent config sets none.
	DefaultTemperature float64
	MaxTokens          int64
	APIKey             string
}

// Provider adapts the Messages API to the core.RunProvider contract.
type Provider struct {
	client *anthropic.Client
	opts   Options

	mu   sync.Mutex
	runs map[string]*runState
}

type runState struct {
	model       anthropic.Model
	temperature float64
	system      []anthropic.TextBlockParam
	messages    []anthropic.MessageParam
	tools       []anthropic.ToolUnionParam

	status     core.RunStatus
	pending    []core.ToolCall
	output     []core.Message
	cause      string
	cancelled  bool
	generating bool
	needsTurn  bool
}

// NewProvider creates a provider. The API key falls back to the environment
// when Options.APIKey is empty.
func NewProvider(optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	client := anthropic.NewClient(clientOpts...)
	return &Provider{client: &client, opts: opts, runs: make(map[string]*runState)}
}

// NewProviderFromClient creates a provider from an existing client.
func NewProviderFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Provider {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Provider{client: client, opts: opts, runs: make(map[string]*runState)}
}

func defaultOptions() Options {
	return Options{
		DefaultModel:       anthropic.ModelClaude3_5Sonnet20241022,
		DefaultTemperature: 0.7,
		MaxTokens:          4096,
	}
}

// CreateRun implements core.RunProvider.
func (p *Provider) CreateRun(_ context.Context, spec core.AgentSpec, messages []core.Message) (core.RunHandle, error) {
	model := p.opts.DefaultModel
	if spec.Agent.Model != "" {
		model = anthropic.Model(spec.Agent.Model)
	}
	temperature := spec.Agent.Temperature
	if temperature == 0 {
		temperature = p.opts.DefaultTemperature
	}

	var convo []anthropic.MessageParam
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		block := anthropic.NewTextBlock(msg.Content)
		switch msg.Role {
		case core.RoleAgent:
			convo = append(convo, anthropic.NewAssistantMessage(block))
		default:
			convo = append(convo, anthropic.NewUserMessage(block))
		}
	}

	run := &runState{
		model:       model,
		temperature: temperature,
		system:      []anthropic.TextBlockParam{{Text: systemPrompt(spec)}},
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

// GetStatus implements core.RunProvider. A due generation turn is performed
// synchronously within the poll; concurrent polls on the same run observe
// in_progress until it finishes.
func (p *Provider) GetStatus(ctx context.Context, handle core.RunHandle) (core.RunState, error) {
	p.mu.Lock()
	run, ok := p.runs[handle.ID]
	if !ok {
		p.mu.Unlock()
		return core.RunState{}, fmt.Errorf("anthropic: unknown run %s", handle.ID)
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
	params := anthropic.MessageNewParams{
		Model:       run.model,
		Messages:    run.messages,
		MaxTokens:   p.opts.MaxTokens,
		Temperature: anthropic.Float(run.temperature),
		System:      run.system,
	}
	if len(run.tools) > 0 {
		params.Tools = run.tools
	}
	p.mu.Unlock()

	resp, err := p.client.Messages.New(ctx, params)

	p.mu.Lock()
	defer p.mu.Unlock()
	run.generating = false
	run.needsTurn = false
	if err != nil {
		run.needsTurn = true
		return core.RunState{}, fmt.Errorf("anthropic api error: %w", err)
	}

	var text string
	var calls []core.ToolCall
	var assistantBlocks []anthropic.ContentBlockParamUnion
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			tb := block.AsText()
			if tb.Text != "" {
				text += tb.Text
				assistantBlocks = append(assistantBlocks, anthropic.NewTextBlock(tb.Text))
			}
		case "tool_use":
			ub := block.AsToolUse()
			args := ""
			var input any
			if ub.Input != nil {
				if raw, err := json.Marshal(ub.Input); err == nil {
					args = string(raw)
				}
				if err := json.Unmarshal([]byte(args), &input); err != nil {
					input = args
				}
			}
			calls = append(calls, core.ToolCall{ID: ub.ID, Name: ub.Name, Arguments: args})
			assistantBlocks = append(assistantBlocks, anthropic.NewToolUseBlock(ub.ID, input, ub.Name))
		}
	}
	if len(assistantBlocks) > 0 {
		run.messages = append(run.messages, anthropic.NewAssistantMessage(assistantBlocks...))
	}

	if len(calls) > 0 {
		run.status = core.RunStatusRequiresAction
		run.pending = calls
		return snapshot(run), nil
	}

	run.status = core.RunStatusCompleted
	run.output = []core.Message{core.NewAgentMessage(text)}
	return snapshot(run), nil
}

// SubmitToolOutputs implements core.RunProvider. Outputs are delivered as
// tool_result blocks in a user message on the next turn.
func (p *Provider) SubmitToolOutputs(_ context.Context, handle core.RunHandle, outputs []core.ToolOutput) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	run, ok := p.runs[handle.ID]
	if !ok {
		return fmt.Errorf("anthropic: unknown run %s", handle.ID)
	}
	if run.status != core.RunStatusRequiresAction {
		return fmt.Errorf("anthropic: run %s is %s, not awaiting tool outputs", handle.ID, run.status)
	}
	if len(outputs) != len(run.pending) {
		return fmt.Errorf("anthropic: run %s expected %d outputs, got %d", handle.ID, len(run.pending), len(outputs))
	}
	blocks := make([]anthropic.ContentBlockParamUnion, len(outputs))
	for i, out := range outputs {
		blocks[i] = anthropic.NewToolResultBlock(out.CallID, encodeOutput(out), out.Error != "")
	}
	run.messages = append(run.messages, anthropic.NewUserMessage(blocks...))
	run.pending = nil
	run.status = core.RunStatusInProgress
	run.needsTurn = true
	return nil
}

// Cancel implements core.RunProvider. The flag takes effect on the next poll.
func (p *Provider) Cancel(_ context.Context, handle core.RunHandle) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	run, ok := p.runs[handle.ID]
	if !ok {
		return fmt.Errorf("anthropic: unknown run %s", handle.ID)
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
	if run.needsTurn && !run.status.Terminal() && run.status != core.RunStatusRequiresAction {
		state.Status = core.RunStatusInProgress
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

func buildTools(defs []core.CapabilityDefinition) []anthropic.ToolUnionParam {
	if len(defs) == 0 {
		return nil
	}
	tools := make([]anthropic.ToolUnionParam, len(defs))
	for i, def := range defs {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}
		if def.Parameters != nil {
			if properties, ok := def.Parameters["properties"]; ok {
				inputSchema.Properties = properties
			}
			if required, ok := def.Parameters["required"]; ok {
				switch req := required.(type) {
				case []string:
					inputSchema.Required = req
				case []any:
					for _, r := range req {
						if s, ok := r.(string); ok {
							inputSchema.Required = append(inputSchema.Required, s)
						}
					}
				}
			}
		}
		tools[i] = anthropic.ToolUnionParamOfTool(inputSchema, def.Name)
	}
	return tools
}

func encodeOutput(out core.ToolOutput) string {
	if out.Error != "" {
		return out.Error
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
