package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
	"github.com/hupe1980/agentrun/provider/mock"
)

func TestParallel_FanOutFanIn(t *testing.T) {
	f := newFixture(t)

	f.provider.AddScript("translator", mock.Script{
		Reply: func(messages []core.Message, _ []core.ToolOutput) string {
			return "translated: " + lastUserContent(messages)
		},
	})
	translatorID := f.registerAgent(t, core.AgentConfig{Name: "translator"})

	batch := NewParallel(f.engine, f.threads, []Task{
		{ID: "de", AgentID: translatorID, Prompt: "Hello"},
		{ID: "fr", AgentID: translatorID, Prompt: "Goodbye"},
		{ID: "es", AgentID: translatorID, Prompt: "Thanks"},
	})

	results := batch.Run(context.Background())
	require.Len(t, results, 3)
	assert.Equal(t, "translated: Hello", results["de"].Output)
	assert.Equal(t, "translated: Goodbye", results["fr"].Output)
	assert.Equal(t, "translated: Thanks", results["es"].Output)
	for _, r := range results {
		assert.True(t, r.Success())
	}
}

func TestParallel_TasksAreIsolated(t *testing.T) {
	f := newFixture(t)

	f.provider.AddScript("translator", mock.Script{
		Reply: func(messages []core.Message, _ []core.ToolOutput) string {
			// Each task's thread holds exactly its own prompt.
			if len(messages) != 1 {
				return "contaminated"
			}
			return "clean: " + messages[0].Content
		},
	})
	translatorID := f.registerAgent(t, core.AgentConfig{Name: "translator"})

	batch := NewParallel(f.engine, f.threads, []Task{
		{ID: "a", AgentID: translatorID, Prompt: "one"},
		{ID: "b", AgentID: translatorID, Prompt: "two"},
	})

	results := batch.Run(context.Background())
	assert.Equal(t, "clean: one", results["a"].Output)
	assert.Equal(t, "clean: two", results["b"].Output)
}

func TestParallel_PartialFailure(t *testing.T) {
	f := newFixture(t)

	f.provider.AddScript("translator", mock.Script{
		Reply: func(messages []core.Message, _ []core.ToolOutput) string {
			return "translated: " + lastUserContent(messages)
		},
	})
	f.provider.AddScript("flaky", mock.Script{FailWith: "model overloaded"})

	translatorID := f.registerAgent(t, core.AgentConfig{Name: "translator"})
	flakyID := f.registerAgent(t, core.AgentConfig{Name: "flaky"})

	batch := NewParallel(f.engine, f.threads, []Task{
		{ID: "ok-1", AgentID: translatorID, Prompt: "Hello"},
		{ID: "broken", AgentID: flakyID, Prompt: "Will fail"},
		{ID: "ok-2", AgentID: translatorID, Prompt: "World"},
	})

	results := batch.Run(context.Background())
	require.Len(t, results, 3)

	// One failure never contaminates sibling results.
	assert.True(t, results["ok-1"].Success())
	assert.True(t, results["ok-2"].Success())
	assert.Equal(t, "translated: Hello", results["ok-1"].Output)
	assert.Equal(t, "translated: World", results["ok-2"].Output)

	require.False(t, results["broken"].Success())
	var termErr *core.RunTerminatedError
	require.ErrorAs(t, results["broken"].Err, &termErr)
	assert.Equal(t, "model overloaded", termErr.Cause)
}

func TestParallel_ThreadsDestroyedByDefault(t *testing.T) {
	f := newFixture(t)

	f.provider.AddScript("translator", mock.Script{ReplyText: "ok"})
	translatorID := f.registerAgent(t, core.AgentConfig{Name: "translator"})

	batch := NewParallel(f.engine, f.threads, []Task{
		{ID: "a", AgentID: translatorID, Prompt: "one"},
	})
	results := batch.Run(context.Background())

	_, err := f.threads.Messages(results["a"].ThreadID)
	assert.ErrorIs(t, err, core.ErrUnknownThread)
}

func TestParallel_KeepThreads(t *testing.T) {
	f := newFixture(t)

	f.provider.AddScript("translator", mock.Script{ReplyText: "ok"})
	translatorID := f.registerAgent(t, core.AgentConfig{Name: "translator"})

	batch := NewParallel(f.engine, f.threads, []Task{
		{ID: "a", AgentID: translatorID, Prompt: "one"},
	}, func(o *ParallelOptions) { o.KeepThreads = true })
	results := batch.Run(context.Background())

	messages, err := f.threads.Messages(results["a"].ThreadID)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	meta, err := f.threads.Metadata(results["a"].ThreadID)
	require.NoError(t, err)
	assert.Equal(t, "a", meta["task_id"])
}

func TestParallel_TaskIDFallsBackToAgentID(t *testing.T) {
	f := newFixture(t)

	f.provider.AddScript("translator", mock.Script{ReplyText: "ok"})
	translatorID := f.registerAgent(t, core.AgentConfig{Name: "translator"})

	batch := NewParallel(f.engine, f.threads, []Task{
		{AgentID: translatorID, Prompt: "one"},
	})
	results := batch.Run(context.Background())
	_, ok := results[translatorID]
	assert.True(t, ok)
}
