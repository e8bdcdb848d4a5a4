package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/logging"
	"github.com/hupe1980/agentrun/thread"
)

// Task is one unit of a parallel fan-out batch.
type Task struct {
	// ID identifies the task in the result map. Falls back to AgentID when
	// empty.
	ID      string
	AgentID string
	Prompt  string
}

// TaskResult is the per-task outcome of a fan-out batch.
type TaskResult struct {
	TaskID   string
	AgentID  string
	RunID    string
	ThreadID string
	Output   string
	Err      error
}

// Success reports whether the task produced an output.
func (r TaskResult) Success() bool { return r.Err == nil }

// Parallel runs independent tasks concurrently, each on its own freshly
// created thread, and fans their results back in. A single task's failure
// does not cancel siblings; the caller receives partial results and decides
// the aggregation policy.
type Parallel struct {
	runner  Runner
	threads thread.Store
	tasks   []Task

	batchTimeout   time.Duration
	destroyThreads bool
	logger         logging.Logger
}

// ParallelOptions configures a Parallel batch.
type ParallelOptions struct {
	// BatchTimeout bounds the whole batch; when it fires, still-running
	// tasks are cancelled best effort.
	BatchTimeout time.Duration
	// KeepThreads retains per-task threads after the batch for inspection.
	// By default they are destroyed once the batch resolves.
	KeepThreads bool
	Logger      logging.Logger
}

// NewParallel constructs a fan-out/fan-in batch.
func NewParallel(runner Runner, threads thread.Store, tasks []Task, optFns ...func(o *ParallelOptions)) *Parallel {
	opts := ParallelOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Parallel{
		runner:         runner,
		threads:        threads,
		tasks:          tasks,
		batchTimeout:   opts.BatchTimeout,
		destroyThreads: !opts.KeepThreads,
		logger:         opts.Logger,
	}
}

// Run executes all tasks concurrently and returns a result per task id. The
// map always contains one entry per task; inspect TaskResult.Err for
// failures.
func (p *Parallel) Run(ctx context.Context) map[string]TaskResult {
	start := time.Now()
	if p.batchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.batchTimeout)
		defer cancel()
	}

	results := make([]TaskResult, len(p.tasks))
	var wg conc.WaitGroup
	for i := range p.tasks {
		idx, task := i, p.tasks[i]
		wg.Go(func() {
			results[idx] = p.runTask(ctx, task)
		})
	}
	wg.Wait()

	out := make(map[string]TaskResult, len(results))
	failures := 0
	for _, r := range results {
		if !r.Success() {
			failures++
		}
		out[r.TaskID] = r
	}
	p.logger.Info("parallel.completed",
		"tasks", len(p.tasks),
		"failures", failures,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out
}

// runTask executes one task on an isolated thread so sibling outputs never
// interleave.
func (p *Parallel) runTask(ctx context.Context, task Task) TaskResult {
	result := TaskResult{TaskID: task.ID, AgentID: task.AgentID}
	if result.TaskID == "" {
		result.TaskID = task.AgentID
	}

	threadID, err := p.threads.Create(map[string]string{"task_id": result.TaskID})
	if err != nil {
		result.Err = fmt.Errorf("task %s: %w", result.TaskID, err)
		return result
	}
	result.ThreadID = threadID
	if p.destroyThreads {
		defer func() { _ = p.threads.Destroy(threadID) }()
	}

	if err := p.threads.Append(threadID, core.NewUserMessage(task.Prompt)); err != nil {
		result.Err = fmt.Errorf("task %s: %w", result.TaskID, err)
		return result
	}

	runID, err := p.runner.Start(ctx, task.AgentID, threadID, "")
	if err != nil {
		result.Err = fmt.Errorf("task %s (agent %s): %w", result.TaskID, task.AgentID, err)
		return result
	}
	result.RunID = runID

	messages, err := p.runner.AwaitCompletion(ctx, runID)
	if err != nil {
		p.logger.Warn("parallel.task.failed", "task_id", result.TaskID, "run_id", runID, "error", err.Error())
		result.Err = fmt.Errorf("task %s (agent %s, run %s): %w", result.TaskID, task.AgentID, runID, err)
		return result
	}

	final, ok := core.LastAgentMessage(messages)
	if !ok {
		result.Err = fmt.Errorf("task %s (agent %s, run %s): run completed without an agent message", result.TaskID, task.AgentID, runID)
		return result
	}
	result.Output = final.Content
	return result
}
