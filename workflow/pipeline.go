package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/engine"
	"github.com/hupe1980/agentrun/internal/util"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/thread"
)

// StepResult captures one completed pipeline step.
type StepResult struct {
	AgentID string
	RunID   string
	// Output is the step's final agent-authored message.
	Output string
}

// Step is one stage of a sequential pipeline.
type Step struct {
	AgentID string
	// PromptBuilder builds the user message for this step from the outputs
	// of all prior steps.
	PromptBuilder func(prior []StepResult) (string, error)
}

// PromptStep builds a step with a fixed prompt, ignoring prior outputs.
func PromptStep(agentID, prompt string) Step {
	return Step{AgentID: agentID, PromptBuilder: func([]StepResult) (string, error) {
		return prompt, nil
	}}
}

// TemplateStep builds a step whose prompt is rendered from a template with
// access to {{.last}} (previous step's output) and {{.outputs}} (all prior
// outputs in order).
func TemplateStep(agentID, tmpl string) Step {
	return Step{AgentID: agentID, PromptBuilder: func(prior []StepResult) (string, error) {
		outputs := make([]any, len(prior))
		var last string
		for i, p := range prior {
			outputs[i] = p.Output
			last = p.Output
		}
		return util.RenderTemplate(tmpl, map[string]any{"last": last, "outputs": outputs})
	}}
}

// Pipeline executes steps in order on one shared thread, feeding each step's
// final agent message forward. The first step failure stops the pipeline; no
// partial continuation.
type Pipeline struct {
	runner  Runner
	threads thread.Store
	steps   []Step

	stepTimeout time.Duration
	logger      logging.Logger
}

// PipelineOptions configures a Pipeline.
type PipelineOptions struct {
	// StepTimeout bounds each step's AwaitCompletion; zero uses the engine
	// default.
	StepTimeout time.Duration
	Logger      logging.Logger
}

// NewPipeline constructs a sequential pipeline.
func NewPipeline(runner Runner, threads thread.Store, steps []Step, optFns ...func(o *PipelineOptions)) *Pipeline {
	opts := PipelineOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Pipeline{
		runner:      runner,
		threads:     threads,
		steps:       steps,
		stepTimeout: opts.StepTimeout,
		logger:      opts.Logger,
	}
}

// Run executes the pipeline on threadID. An empty threadID creates a fresh
// thread. It returns the results of all completed steps; on failure the
// returned error names the failing step and its run, and the results of the
// steps completed before it are still returned.
func (p *Pipeline) Run(ctx context.Context, threadID string) ([]StepResult, error) {
	start := time.Now()
	if threadID == "" {
		id, err := p.threads.Create(nil)
		if err != nil {
			return nil, err
		}
		threadID = id
	}

	results := make([]StepResult, 0, len(p.steps))
	for i, step := range p.steps {
		prompt, err := step.PromptBuilder(results)
		if err != nil {
			return results, fmt.Errorf("pipeline step %d (agent %s): build prompt: %w", i, step.AgentID, err)
		}
		if err := p.threads.Append(threadID, core.NewUserMessage(prompt)); err != nil {
			return results, fmt.Errorf("pipeline step %d (agent %s): %w", i, step.AgentID, err)
		}

		runID, err := p.runner.Start(ctx, step.AgentID, threadID, "")
		if err != nil {
			return results, fmt.Errorf("pipeline step %d (agent %s): %w", i, step.AgentID, err)
		}

		var awaitOpts []func(o *engine.AwaitOptions)
		if p.stepTimeout > 0 {
			awaitOpts = append(awaitOpts, engine.WithTimeout(p.stepTimeout))
		}
		messages, err := p.runner.AwaitCompletion(ctx, runID, awaitOpts...)
		if err != nil {
			p.logger.Error("pipeline.step.failed", "step", i, "agent_id", step.AgentID, "run_id", runID, "error", err.Error())
			return results, fmt.Errorf("pipeline step %d (agent %s, run %s): %w", i, step.AgentID, runID, err)
		}

		final, ok := core.LastAgentMessage(messages)
		if !ok {
			return results, fmt.Errorf("pipeline step %d (agent %s, run %s): run completed without an agent message", i, step.AgentID, runID)
		}
		results = append(results, StepResult{AgentID: step.AgentID, RunID: runID, Output: final.Content})
		p.logger.Debug("pipeline.step.completed", "step", i, "agent_id", step.AgentID, "run_id", runID)
	}

	p.logger.Info("pipeline.completed", "steps", len(p.steps), "duration_ms", time.Since(start).Milliseconds())
	return results, nil
}
