package workflow

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/provider/mock"
)

// workerScript numbers its drafts by counting its own prior replies on the
// shared worker thread.
func workerScript() mock.Script {
	return mock.Script{
		Reply: func(messages []core.Message, _ []core.ToolOutput) string {
			revision := 1
			for _, m := range messages {
				if m.Role == core.RoleAgent {
					revision++
				}
			}
			return fmt.Sprintf("draft v%d", revision)
		},
	}
}

func TestFeedbackLoop_ApprovedOnSecondIteration(t *testing.T) {
	f := newFixture(t)

	f.provider.AddScript("worker", workerScript())
	f.provider.AddScript("judge", mock.Script{
		Reply: func(messages []core.Message, _ []core.ToolOutput) string {
			if strings.Contains(lastUserContent(messages), "draft v1") {
				return `{"approved": false, "feedback": "needs work"}`
			}
			return `{"approved": true, "feedback": "good"}`
		},
	})

	workerID := f.registerAgent(t, core.AgentConfig{Name: "worker"})
	judgeID := f.registerAgent(t, core.AgentConfig{Name: "judge", ResponseShape: VerdictShape()})

	loop := NewFeedbackLoop(f.engine, f.threads, workerID, judgeID, "Must be good.")
	result, err := loop.Run(context.Background(), "Write something.")
	require.NoError(t, err)

	assert.True(t, result.Approved)
	assert.Equal(t, 2, result.Iterations)
	assert.Equal(t, []string{"needs work", "good"}, result.Feedback)
	assert.Equal(t, "draft v2", result.Output)
}

func TestFeedbackLoop_BudgetExhaustionIsNotAnError(t *testing.T) {
	f := newFixture(t)

	f.provider.AddScript("worker", workerScript())
	f.provider.AddScript("judge", mock.Script{
		ReplyText: `{"approved": false, "feedback": "never good enough"}`,
	})

	workerID := f.registerAgent(t, core.AgentConfig{Name: "worker"})
	judgeID := f.registerAgent(t, core.AgentConfig{Name: "judge", ResponseShape: VerdictShape()})

	loop := NewFeedbackLoop(f.engine, f.threads, workerID, judgeID, "Impossible standard.",
		func(o *FeedbackOptions) { o.MaxIterations = 4 })
	result, err := loop.Run(context.Background(), "Write something.")
	require.NoError(t, err)

	// Exactly the budgeted number of round trips, no approval, last output
	// still surfaced.
	assert.False(t, result.Approved)
	assert.Equal(t, 4, result.Iterations)
	assert.Len(t, result.Feedback, 4)
	assert.NotEmpty(t, result.Output)
}

func TestFeedbackLoop_WorkerPromptCarriesFeedback(t *testing.T) {
	f := newFixture(t)

	var workerPrompts []string
	f.provider.AddScript("worker", mock.Script{
		Reply: func(messages []core.Message, _ []core.ToolOutput) string {
			workerPrompts = append(workerPrompts, lastUserContent(messages))
			return "draft"
		},
	})
	f.provider.AddScript("judge", mock.Script{
		ReplyText: `{"approved": false, "feedback": "add detail"}`,
	})

	workerID := f.registerAgent(t, core.AgentConfig{Name: "worker"})
	judgeID := f.registerAgent(t, core.AgentConfig{Name: "judge", ResponseShape: VerdictShape()})

	loop := NewFeedbackLoop(f.engine, f.threads, workerID, judgeID, "criteria",
		func(o *FeedbackOptions) { o.MaxIterations = 2 })
	_, err := loop.Run(context.Background(), "Write something.")
	require.NoError(t, err)

	require.Len(t, workerPrompts, 2)
	assert.Equal(t, "Write something.", workerPrompts[0])
	assert.Contains(t, workerPrompts[1], "Reviewer feedback")
	assert.Contains(t, workerPrompts[1], "add detail")
	assert.Contains(t, workerPrompts[1], "Write something.")
}

func TestFeedbackLoop_UnparseableVerdictFails(t *testing.T) {
	f := newFixture(t)

	f.provider.AddScript("worker", mock.Script{ReplyText: "draft"})
	// No ResponseShape on the judge, so the malformed verdict reaches the
	// loop's own parser.
	f.provider.AddScript("judge", mock.Script{ReplyText: "LGTM!"})

	workerID := f.registerAgent(t, core.AgentConfig{Name: "worker"})
	judgeID := f.registerAgent(t, core.AgentConfig{Name: "judge"})

	loop := NewFeedbackLoop(f.engine, f.threads, workerID, judgeID, "criteria")
	_, err := loop.Run(context.Background(), "Write something.")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "verdict")
}

func TestVerdictShape_AcceptsWellFormedVerdicts(t *testing.T) {
	f := newFixture(t)
	judgeID := f.registerAgent(t, core.AgentConfig{Name: "judge", ResponseShape: VerdictShape()})

	assert.NoError(t, f.agents.ValidateResponse(judgeID, `{"approved": true, "feedback": "ok"}`))
	assert.Error(t, f.agents.ValidateResponse(judgeID, `{"approved": "yes", "feedback": "ok"}`))
	assert.Error(t, f.agents.ValidateResponse(judgeID, `{"approved": true}`))
}
