// Package engine drives runs: it starts remote executions against a
// provider, polls their lifecycle, dispatches requested capability calls and
// feeds the outputs back until the run reaches a terminal state.
//
// The run state machine is
//
//	queued -> in_progress -> {completed | failed | cancelled | expired | requires_action}
//	requires_action -> in_progress (after tool outputs) or -> cancelled
//
// A run never leaves requires_action without either all requested tool calls
// having a submitted output or an explicit cancel.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/agentrun/agent"
	"github.com/hupe1980/agentrun/capability"
	"github.com/hupe1980/agentrun/config"
	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/thread"
)

// Config tunes polling, retries and tool dispatch.
type Config struct {
	// PollInterval is the fixed delay between status polls.
	PollInterval time.Duration
	// AwaitTimeout bounds AwaitCompletion when the caller sets no timeout.
	AwaitTimeout time.Duration
	// RetryAttempts bounds retries of transient provider failures.
	RetryAttempts int
	// RetryBackoff is the delay between retry attempts.
	RetryBackoff time.Duration
	// MaxToolParallel caps concurrent capability invocations per batch.
	MaxToolParallel int
}

// DefaultConfig is suitable for local development and tests.
var DefaultConfig = Config{
	PollInterval:    time.Second,
	AwaitTimeout:    5 * time.Minute,
	RetryAttempts:   3,
	RetryBackoff:    250 * time.Millisecond,
	MaxToolParallel: 8,
}

// ConfigFromEnv maps environment settings onto a Config.
func ConfigFromEnv(env *config.Env) Config {
	return Config{
		PollInterval:    env.PollInterval,
		AwaitTimeout:    env.AwaitTimeout,
		RetryAttempts:   env.RetryAttempts,
		RetryBackoff:    env.RetryBackoff,
		MaxToolParallel: env.MaxToolParallel,
	}
}

// Options holds dependency and configuration overrides passed to New.
type Options struct {
	Config Config
	// Clock drives the polling loop; override in tests to avoid wall-clock
	// waits.
	Clock  core.Clock
	Logger logging.Logger
}

// Engine coordinates run execution. Public methods are safe for concurrent
// use; the run cache uses per-run locking, not a global lock.
type Engine struct {
	provider     core.RunProvider
	agents       *agent.Registry
	capabilities *capability.Registry
	threads      thread.Store

	cfg    Config
	clock  core.Clock
	logger logging.Logger

	mu   sync.RWMutex
	runs map[string]*runRecord
}

// runRecord is the engine's cached view of one run plus the provider handle.
type runRecord struct {
	mu     sync.Mutex
	run    core.Run
	handle core.RunHandle
	// outputApplied guards against appending the run's output twice when
	// AwaitCompletion is called again on a terminal run.
	outputApplied bool
}

func (rec *runRecord) markOutputApplied() bool {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.outputApplied {
		return false
	}
	rec.outputApplied = true
	return true
}

func (rec *runRecord) snapshot() core.Run {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	run := rec.run
	run.RequiredCalls = append([]core.ToolCall(nil), rec.run.RequiredCalls...)
	return run
}

func (rec *runRecord) setStatus(status core.RunStatus, calls []core.ToolCall, lastErr string) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.run.Status = status
	rec.run.RequiredCalls = calls
	if lastErr != "" {
		rec.run.LastErr = lastErr
	}
}

// New constructs an Engine over the given provider, registries and thread
// store.
func New(
	provider core.RunProvider,
	agents *agent.Registry,
	capabilities *capability.Registry,
	threads thread.Store,
	optFns ...func(o *Options),
) *Engine {
	opts := Options{
		Config: DefaultConfig,
		Clock:  core.SystemClock{},
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Engine{
		provider:     provider,
		agents:       agents,
		capabilities: capabilities,
		threads:      threads,
		cfg:          opts.Config,
		clock:        opts.Clock,
		logger:       opts.Logger,
		runs:         make(map[string]*runRecord),
	}
}

// Start creates a run of the agent against the thread and asks the provider
// to begin generating. The run enters in_progress once the provider accepts
// it. extraInstructions, if non-empty, is appended to the agent's registered
// instructions for this run only.
func (e *Engine) Start(ctx context.Context, agentID, threadID, extraInstructions string) (string, error) {
	cfg, err := e.agents.Get(agentID)
	if err != nil {
		return "", err
	}
	defs, err := e.capabilities.Definitions(cfg.Capabilities)
	if err != nil {
		return "", fmt.Errorf("agent %s: %w", agentID, err)
	}
	messages, err := e.threads.Messages(threadID)
	if err != nil {
		return "", err
	}

	run := core.Run{
		ID:        core.NewID(),
		AgentID:   agentID,
		ThreadID:  threadID,
		Status:    core.RunStatusQueued,
		StartedAt: e.clock.Now(),
	}
	rec := &runRecord{run: run}
	e.mu.Lock()
	e.runs[run.ID] = rec
	e.mu.Unlock()

	spec := core.AgentSpec{Agent: cfg, Capabilities: defs, ExtraInstructions: extraInstructions}
	handle, err := e.provider.CreateRun(ctx, spec, messages)
	if err != nil {
		e.mu.Lock()
		delete(e.runs, run.ID)
		e.mu.Unlock()
		return "", fmt.Errorf("create run for agent %s on thread %s: %w", agentID, threadID, err)
	}

	rec.mu.Lock()
	rec.handle = handle
	rec.run.Status = core.RunStatusInProgress
	rec.mu.Unlock()

	e.logger.Info("run.started", "run_id", run.ID, "agent_id", agentID, "thread_id", threadID)
	return run.ID, nil
}

// Status returns the engine's cached view of the run.
func (e *Engine) Status(runID string) (core.Run, error) {
	rec, err := e.record(runID)
	if err != nil {
		return core.Run{}, err
	}
	return rec.snapshot(), nil
}

// AwaitOptions configures AwaitCompletion.
type AwaitOptions struct {
	// Timeout bounds the wait; zero falls back to Config.AwaitTimeout.
	Timeout time.Duration
	// OnStatusChange is invoked on every observed status transition.
	OnStatusChange func(from, to core.RunStatus)
}

// WithTimeout bounds AwaitCompletion.
func WithTimeout(d time.Duration) func(o *AwaitOptions) {
	return func(o *AwaitOptions) { o.Timeout = d }
}

// WithStatusCallback registers a transition observer.
func WithStatusCallback(fn func(from, to core.RunStatus)) func(o *AwaitOptions) {
	return func(o *AwaitOptions) { o.OnStatusChange = fn }
}

// AwaitCompletion blocks until the run reaches a terminal state and returns
// the thread's updated message list on completion.
//
// Internally this is a polling state machine driven by the injected clock: it
// queries run status at a fixed interval, reports transitions, dispatches
// requested capability calls concurrently when the run pauses in
// requires_action, and submits their outputs as a single batch.
//
// On failed/cancelled/expired it returns *core.RunTerminatedError. If the
// timeout elapses it requests best-effort cancellation (fire and forget) and
// returns *core.RunTimeoutError; the remote run may still complete, but the
// caller is unblocked.
func (e *Engine) AwaitCompletion(ctx context.Context, runID string, optFns ...func(o *AwaitOptions)) ([]core.Message, error) {
	var opts AwaitOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.cfg.AwaitTimeout
	}

	rec, err := e.record(runID)
	if err != nil {
		return nil, err
	}

	deadline := e.clock.Now().Add(timeout)
	last := rec.snapshot().Status

	for {
		state, err := e.getStatusRetry(ctx, rec)
		if err != nil {
			return nil, err
		}

		if state.Status != last {
			e.logger.Info("run.transition", "run_id", runID, "from", string(last), "to", string(state.Status))
			if opts.OnStatusChange != nil {
				opts.OnStatusChange(last, state.Status)
			}
			last = state.Status
		}

		switch state.Status {
		case core.RunStatusRequiresAction:
			rec.setStatus(core.RunStatusRequiresAction, state.RequiredCalls, "")
			outputs := e.dispatchToolCalls(ctx, rec.snapshot(), state.RequiredCalls)
			if err := e.submitOutputsRetry(ctx, rec, outputs); err != nil {
				return nil, err
			}
			rec.setStatus(core.RunStatusInProgress, nil, "")
			last = core.RunStatusInProgress
			continue // poll again immediately after unblocking the run

		case core.RunStatusCompleted:
			rec.setStatus(core.RunStatusCompleted, nil, "")
			run := rec.snapshot()
			if rec.markOutputApplied() {
				for _, msg := range state.Output {
					if err := e.threads.Append(run.ThreadID, msg); err != nil {
						return nil, fmt.Errorf("run %s: append output: %w", run.ID, err)
					}
				}
			}
			return e.collectResult(run)

		case core.RunStatusFailed, core.RunStatusCancelled, core.RunStatusExpired:
			rec.setStatus(state.Status, nil, state.Cause)
			run := rec.snapshot()
			return nil, &core.RunTerminatedError{
				RunID:    run.ID,
				AgentID:  run.AgentID,
				ThreadID: run.ThreadID,
				Status:   state.Status,
				Cause:    state.Cause,
			}
		}

		if !e.clock.Now().Before(deadline) {
			e.cancelRemote(rec) // fire and forget
			run := rec.snapshot()
			return nil, &core.RunTimeoutError{
				RunID:    run.ID,
				AgentID:  run.AgentID,
				ThreadID: run.ThreadID,
				Timeout:  timeout,
			}
		}

		select {
		case <-ctx.Done():
			e.cancelRemote(rec)
			return nil, ctx.Err()
		case <-e.clock.After(e.cfg.PollInterval):
		}
	}
}

// collectResult fetches the run's thread snapshot and checks the final agent
// message against the agent's response shape, if one was registered.
func (e *Engine) collectResult(run core.Run) ([]core.Message, error) {
	messages, err := e.threads.Messages(run.ThreadID)
	if err != nil {
		return nil, err
	}
	if final, ok := core.LastAgentMessage(messages); ok {
		if err := e.agents.ValidateResponse(run.AgentID, final.Content); err != nil {
			return messages, fmt.Errorf("run %s completed but final answer violates response shape: %w", run.ID, err)
		}
	}
	return messages, nil
}

// SubmitToolOutputs submits outputs for a run paused in requires_action.
// Calling it in any other state is a programming error and fails fast with
// core.ErrInvalidRunState. The engine's own polling loop normally performs
// submission; this entry point exists for callers driving tool execution
// themselves.
func (e *Engine) SubmitToolOutputs(ctx context.Context, runID string, outputs []core.ToolOutput) error {
	rec, err := e.record(runID)
	if err != nil {
		return err
	}
	run := rec.snapshot()
	if run.Status != core.RunStatusRequiresAction {
		return fmt.Errorf("%w: run %s is %s, expected %s", core.ErrInvalidRunState, runID, run.Status, core.RunStatusRequiresAction)
	}
	if err := e.submitOutputsRetry(ctx, rec, outputs); err != nil {
		return err
	}
	rec.setStatus(core.RunStatusInProgress, nil, "")
	return nil
}

// Cancel requests cancellation of the run. Best effort: the provider side may
// still complete. The cached status flips to cancelled once the provider
// confirms it on a later poll.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	rec, err := e.record(runID)
	if err != nil {
		return err
	}
	rec.mu.Lock()
	handle := rec.handle
	rec.mu.Unlock()
	if err := e.provider.Cancel(ctx, handle); err != nil {
		return fmt.Errorf("cancel run %s: %w", runID, err)
	}
	return nil
}

func (e *Engine) record(runID string) (*runRecord, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrUnknownRun, runID)
	}
	return rec, nil
}

// cancelRemote detaches cancellation from the caller: it does not block
// waiting for provider-side confirmation.
func (e *Engine) cancelRemote(rec *runRecord) {
	rec.mu.Lock()
	handle := rec.handle
	runID := rec.run.ID
	rec.mu.Unlock()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.provider.Cancel(ctx, handle); err != nil {
			e.logger.Warn("run.cancel.failed", "run_id", runID, "error", err.Error())
		}
	}()
}

// getStatusRetry polls the provider, retrying transient failures with a
// bounded backoff before escalating to ProviderUnavailableError.
func (e *Engine) getStatusRetry(ctx context.Context, rec *runRecord) (core.RunState, error) {
	rec.mu.Lock()
	handle := rec.handle
	runID := rec.run.ID
	rec.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= e.cfg.RetryAttempts; attempt++ {
		state, err := e.provider.GetStatus(ctx, handle)
		if err == nil {
			return state, nil
		}
		lastErr = err
		e.logger.Warn("run.poll.retry", "run_id", runID, "attempt", attempt, "error", err.Error())
		if attempt == e.cfg.RetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return core.RunState{}, ctx.Err()
		case <-e.clock.After(e.cfg.RetryBackoff):
		}
	}
	return core.RunState{}, &core.ProviderUnavailableError{Op: "get_status", RunID: runID, Attempts: e.cfg.RetryAttempts, Err: lastErr}
}

// submitOutputsRetry submits the batch, retrying transient failures.
func (e *Engine) submitOutputsRetry(ctx context.Context, rec *runRecord, outputs []core.ToolOutput) error {
	rec.mu.Lock()
	handle := rec.handle
	runID := rec.run.ID
	rec.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= e.cfg.RetryAttempts; attempt++ {
		err := e.provider.SubmitToolOutputs(ctx, handle, outputs)
		if err == nil {
			return nil
		}
		lastErr = err
		e.logger.Warn("run.submit.retry", "run_id", runID, "attempt", attempt, "error", err.Error())
		if attempt == e.cfg.RetryAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.clock.After(e.cfg.RetryBackoff):
		}
	}
	return &core.ProviderUnavailableError{Op: "submit_tool_outputs", RunID: runID, Attempts: e.cfg.RetryAttempts, Err: lastErr}
}
