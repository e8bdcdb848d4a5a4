package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
)

func startRun(t *testing.T, p *Provider, agentName string) core.RunHandle {
	t.Helper()
	handle, err := p.CreateRun(context.Background(), core.AgentSpec{
		Agent: core.AgentConfig{Name: agentName},
	}, []core.Message{core.NewUserMessage("hello")})
	require.NoError(t, err)
	return handle
}

func TestProvider_DefaultEcho(t *testing.T) {
	p := NewProvider()
	handle := startRun(t, p, "unscripted")

	state, err := p.GetStatus(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, state.Status)
	require.Len(t, state.Output, 1)
	assert.Equal(t, "Mock response to: hello", state.Output[0].Content)
}

func TestProvider_ToolCallLifecycle(t *testing.T) {
	p := NewProvider()
	p.AddScript("caller", Script{
		ToolCalls: []core.ToolCall{{ID: "c1", Name: "word_count", Arguments: `{"text":"x"}`}},
		ReplyText: "done",
	})
	handle := startRun(t, p, "caller")

	state, err := p.GetStatus(context.Background(), handle)
	require.NoError(t, err)
	require.Equal(t, core.RunStatusRequiresAction, state.Status)
	require.Len(t, state.RequiredCalls, 1)

	// Count mismatch is rejected.
	err = p.SubmitToolOutputs(context.Background(), handle, nil)
	assert.Error(t, err)

	require.NoError(t, p.SubmitToolOutputs(context.Background(), handle, []core.ToolOutput{{CallID: "c1", Output: 1}}))

	// Double submission is rejected.
	err = p.SubmitToolOutputs(context.Background(), handle, []core.ToolOutput{{CallID: "c1", Output: 1}})
	assert.Error(t, err)

	state, err = p.GetStatus(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, state.Status)
}

func TestProvider_CancelWins(t *testing.T) {
	p := NewProvider()
	p.AddScript("slow", Script{InProgressPolls: 100})
	handle := startRun(t, p, "slow")

	require.NoError(t, p.Cancel(context.Background(), handle))
	state, err := p.GetStatus(context.Background(), handle)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCancelled, state.Status)
}

func TestProvider_UnknownRun(t *testing.T) {
	p := NewProvider()
	_, err := p.GetStatus(context.Background(), core.RunHandle{ID: "nope"})
	assert.Error(t, err)
	assert.Error(t, p.Cancel(context.Background(), core.RunHandle{ID: "nope"}))
}
