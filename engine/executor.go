package engine

import (
	"context"
	"sync"
	"time"

	"github.com/hupe1980/agentrun/core"
)

// dispatchToolCalls invokes every requested capability call concurrently
// (bounded by Config.MaxToolParallel) and returns exactly one output per call
// id, in request order.
//
// The batch is all-or-nothing from the run's perspective: a failing
// invocation contributes an error payload instead of aborting the batch, so
// the remote run can react to it and a single failing tool never stalls the
// others. Panic recovery happens inside the capability registry.
func (e *Engine) dispatchToolCalls(ctx context.Context, run core.Run, calls []core.ToolCall) []core.ToolOutput {
	n := len(calls)
	if n == 0 {
		return nil
	}

	outputs := make([]core.ToolOutput, n)

	// Fast path: single call, execute inline.
	if n == 1 {
		outputs[0] = e.executeCall(ctx, run, calls[0])
		return outputs
	}

	maxPar := e.cfg.MaxToolParallel
	if maxPar <= 0 || maxPar > n {
		maxPar = n
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, maxPar)

	batchStart := time.Now()
	for i := range calls {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, call core.ToolCall) {
			defer wg.Done()
			defer func() { <-sem }()
			outputs[idx] = e.executeCall(ctx, run, call)
		}(i, calls[i])
	}
	wg.Wait()

	e.logger.Debug(
		"run.tool_batch.complete",
		"run_id", run.ID,
		"count", n,
		"parallelism", maxPar,
		"duration_ms", time.Since(batchStart).Milliseconds(),
	)
	return outputs
}

func (e *Engine) executeCall(ctx context.Context, run core.Run, call core.ToolCall) core.ToolOutput {
	start := time.Now()
	result, err := e.capabilities.InvokeRaw(ctx, call.Name, call.Arguments)

	e.logger.Info(
		"run.tool.executed",
		"run_id", run.ID,
		"capability", call.Name,
		"call_id", call.ID,
		"duration_ms", time.Since(start).Milliseconds(),
		"error", err != nil,
	)

	out := core.ToolOutput{CallID: call.ID}
	if err != nil {
		// Surfaced to the run as a payload so the agent can self-correct.
		out.Error = err.Error()
		return out
	}
	out.Output = result
	return out
}
