// Package workflow composes agents and runs into higher-level execution
// patterns: sequential pipelines over one shared thread, parallel fan-out
// over isolated threads, and iterative worker/judge feedback loops.
//
// The thread-sharing asymmetry is deliberate: pipeline steps share one thread
// so each step sees its predecessors' messages, while parallel tasks each get
// an independent thread to avoid cross-task message interleaving.
package workflow

import (
	"context"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/engine"
)

// Runner is the slice of the run engine workflows depend on. Satisfied by
// *engine.Engine; stub it in tests.
type Runner interface {
	Start(ctx context.Context, agentID, threadID, extraInstructions string) (string, error)
	AwaitCompletion(ctx context.Context, runID string, optFns ...func(o *engine.AwaitOptions)) ([]core.Message, error)
}
