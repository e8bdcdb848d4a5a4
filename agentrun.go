// Package agentrun provides a high-level façade over the run engine and its
// registries, enabling rapid construction of agent run orchestration systems.
// Most applications interact with this package by:
//  1. Creating an Orchestrator via New() with a run provider (optionally
//     overriding the default in-memory thread store)
//  2. Registering capabilities and agent configurations
//  3. Sending messages (Send) or composing workflows (Pipeline, Parallel,
//     FeedbackLoop) on top of Engine()
//
// The façade delegates run lifecycle management to engine.Engine while keeping
// setup and usage ergonomics concise. All defaults are safe for local
// development and testing; production deployments typically supply a durable
// thread store and a structured logger.
package agentrun

import (
	"context"

	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/attachment"
	"github.com/hupe1980/agentrun/capability"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/engine"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/thread"
	"github.com/hupe1980/agentrun/workflow"
)

// Options configures the Orchestrator instance.
type Options struct {
	// EngineConfig holds polling, retry and concurrency settings.
	EngineConfig engine.Config

	// ThreadStore defaults to an in-memory implementation if not provided.
	ThreadStore thread.Store

	// AttachmentStore holds raw attachment content referenced by messages.
	// Defaults to an in-memory implementation if not provided.
	AttachmentStore attachment.Store

	// Clock defaults to the system clock. Tests inject a fake.
	Clock core.Clock

	// Logger defaults to the NoOp logger if nil.
	Logger logging.Logger
}

// Orchestrator is the high-level façade aggregating the engine and registries.
type Orchestrator struct {
	opts         Options
	capabilities *capability.Registry
	agents       *agent.Registry
	threads      thread.Store
	attachments  attachment.Store
	engine       *engine.Engine
}

// New creates a new Orchestrator backed by the given run provider. Any unset
// service is initialized with an in-memory implementation.
func New(provider core.RunProvider, optFns ...func(o *Options)) *Orchestrator {
	opts := Options{
		EngineConfig:    engine.DefaultConfig,
		ThreadStore:     thread.NewInMemoryStore(),
		AttachmentStore: attachment.NewInMemoryStore(),
		Clock:           core.SystemClock{},
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	capabilities := capability.NewRegistry(func(o *capability.RegistryOptions) {
		o.Logger = opts.Logger
	})
	agents := agent.NewRegistry(capabilities)

	eng := engine.New(provider, agents, capabilities, opts.ThreadStore, func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Clock = opts.Clock
		o.Logger = opts.Logger
	})

	return &Orchestrator{
		opts:         opts,
		capabilities: capabilities,
		agents:       agents,
		threads:      opts.ThreadStore,
		attachments:  opts.AttachmentStore,
		engine:       eng,
	}
}

// Capabilities exposes the capability registry.
func (o *Orchestrator) Capabilities() *capability.Registry { return o.capabilities }

// Agents exposes the agent registry.
func (o *Orchestrator) Agents() *agent.Registry { return o.agents }

// Threads exposes the thread store.
func (o *Orchestrator) Threads() thread.Store { return o.threads }

// Attachments exposes the attachment content store.
func (o *Orchestrator) Attachments() attachment.Store { return o.attachments }

// Engine exposes the run engine for direct use and workflow composition.
func (o *Orchestrator) Engine() *engine.Engine { return o.engine }

// RegisterCapability adds a capability to the registry.
func (o *Orchestrator) RegisterCapability(c capability.Capability) error {
	return o.capabilities.Register(c)
}

// RegisterAgent adds an agent configuration to the registry and returns the
// assigned agent id.
func (o *Orchestrator) RegisterAgent(cfg core.AgentConfig) (string, error) {
	return o.agents.Register(cfg)
}

// LoadAgentsFile registers all agent configurations from a YAML file and
// returns the assigned agent ids in file order.
func (o *Orchestrator) LoadAgentsFile(path string) ([]string, error) {
	configs, err := agent.LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(configs))
	for _, cfg := range configs {
		id, err := o.agents.Register(cfg)
		if err != nil {
			return ids, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Send is a synchronous helper: it appends a user message to the thread
// (creating one when threadID is empty), starts a run for the agent and waits
// for completion. It returns the thread ID alongside the messages the run
// produced so callers can continue the conversation.
func (o *Orchestrator) Send(ctx context.Context, threadID, agentID, content string) (string, []core.Message, error) {
	if threadID == "" {
		id, err := o.threads.Create(nil)
		if err != nil {
			return "", nil, err
		}
		threadID = id
	}
	if err := o.threads.Append(threadID, core.NewUserMessage(content)); err != nil {
		return threadID, nil, err
	}
	runID, err := o.engine.Start(ctx, agentID, threadID, "")
	if err != nil {
		return threadID, nil, err
	}
	messages, err := o.engine.AwaitCompletion(ctx, runID)
	return threadID, messages, err
}

// InvokePipeline runs the given steps sequentially on one shared thread and
// returns the per-step results. An empty threadID creates a fresh thread.
func (o *Orchestrator) InvokePipeline(ctx context.Context, threadID string, steps []workflow.Step, optFns ...func(opts *workflow.PipelineOptions)) ([]workflow.StepResult, error) {
	optFns = append([]func(opts *workflow.PipelineOptions){func(opts *workflow.PipelineOptions) {
		opts.Logger = o.opts.Logger
	}}, optFns...)
	return workflow.NewPipeline(o.engine, o.threads, steps, optFns...).Run(ctx, threadID)
}

// InvokeParallel fans the tasks out concurrently, each on its own thread, and
// returns one result per task id. Sibling failures are isolated; inspect each
// TaskResult.Err.
func (o *Orchestrator) InvokeParallel(ctx context.Context, tasks []workflow.Task, optFns ...func(opts *workflow.ParallelOptions)) map[string]workflow.TaskResult {
	optFns = append([]func(opts *workflow.ParallelOptions){func(opts *workflow.ParallelOptions) {
		opts.Logger = o.opts.Logger
	}}, optFns...)
	return workflow.NewParallel(o.engine, o.threads, tasks, optFns...).Run(ctx)
}

// InvokeFeedback runs a worker/judge loop for the prompt until the judge
// approves or the iteration budget runs out.
func (o *Orchestrator) InvokeFeedback(ctx context.Context, workerID, judgeID, criteria, prompt string, optFns ...func(opts *workflow.FeedbackOptions)) (workflow.FeedbackResult, error) {
	optFns = append([]func(opts *workflow.FeedbackOptions){func(opts *workflow.FeedbackOptions) {
		opts.Logger = o.opts.Logger
	}}, optFns...)
	return workflow.NewFeedbackLoop(o.engine, o.threads, workerID, judgeID, criteria, optFns...).Run(ctx, prompt)
}

// Attach stores raw content for a thread and returns the reference to embed
// in a message's Attachments.
func (o *Orchestrator) Attach(threadID, name, mimeType string, data []byte) (core.Attachment, error) {
	if err := o.attachments.Save(threadID, name, data); err != nil {
		return core.Attachment{}, err
	}
	return core.Attachment{
		Name:     name,
		URI:      "attachment://" + threadID + "/" + name,
		MimeType: mimeType,
	}, nil
}

// DestroyThread releases a thread together with its stored attachment
// content.
func (o *Orchestrator) DestroyThread(threadID string) error {
	if err := o.attachments.Release(threadID); err != nil {
		return err
	}
	return o.threads.Destroy(threadID)
}
