package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
)

func TestSystemPrompt(t *testing.T) {
	spec := core.AgentSpec{
		Agent: core.AgentConfig{Instructions: "Be helpful."},
	}
	assert.Equal(t, "Be helpful.", systemPrompt(spec))

	spec.ExtraInstructions = "Answer in German."
	prompt := systemPrompt(spec)
	assert.Contains(t, prompt, "Be helpful.")
	assert.Contains(t, prompt, "Answer in German.")

	spec.Agent.ResponseShape = map[string]any{"type": "object"}
	prompt = systemPrompt(spec)
	assert.Contains(t, prompt, "JSON object")
	assert.Contains(t, prompt, `"type":"object"`)
}

func TestBuildTools(t *testing.T) {
	assert.Nil(t, buildTools(nil))

	tools := buildTools([]core.CapabilityDefinition{
		{
			Name:        "word_count",
			Description: "Count words",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
			},
		},
	})
	require.Len(t, tools, 1)
	assert.Equal(t, "word_count", tools[0].Function.Name)
}

func TestEncodeOutput(t *testing.T) {
	assert.Equal(t, `{"error":"boom"}`, encodeOutput(core.ToolOutput{CallID: "c1", Error: "boom"}))
	assert.Equal(t, "plain", encodeOutput(core.ToolOutput{CallID: "c2", Output: "plain"}))
	assert.Equal(t, `{"count":3}`, encodeOutput(core.ToolOutput{CallID: "c3", Output: map[string]any{"count": 3}}))
	assert.Equal(t, "42", encodeOutput(core.ToolOutput{CallID: "c4", Output: 42}))
}
