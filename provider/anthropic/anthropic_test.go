package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrun/core"
)

func TestBuildTools_RequiredNormalization(t *testing.T) {
	assert.Nil(t, buildTools(nil))

	defs := []core.CapabilityDefinition{
		{
			Name: "with_string_slice",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"a": map[string]any{"type": "number"}},
				"required":   []string{"a"},
			},
		},
		{
			Name: "with_any_slice",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"b": map[string]any{"type": "string"}},
				"required":   []any{"b"},
			},
		},
	}

	tools := buildTools(defs)
	require.Len(t, tools, 2)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, []string{"a"}, tools[0].OfTool.InputSchema.Required)
	require.NotNil(t, tools[1].OfTool)
	assert.Equal(t, []string{"b"}, tools[1].OfTool.InputSchema.Required)
}

func TestEncodeOutput(t *testing.T) {
	assert.Equal(t, "boom", encodeOutput(core.ToolOutput{CallID: "c1", Error: "boom"}))
	assert.Equal(t, "plain", encodeOutput(core.ToolOutput{CallID: "c2", Output: "plain"}))
	assert.Equal(t, `{"count":3}`, encodeOutput(core.ToolOutput{CallID: "c3", Output: map[string]any{"count": 3}}))
}

func TestSystemPrompt_IncludesShape(t *testing.T) {
	spec := core.AgentSpec{
		Agent: core.AgentConfig{
			Instructions:  "Judge outputs.",
			ResponseShape: map[string]any{"type": "object"},
		},
	}
	prompt := systemPrompt(spec)
	assert.Contains(t, prompt, "Judge outputs.")
	assert.Contains(t, prompt, `"type":"object"`)
}
