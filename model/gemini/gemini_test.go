package gemini

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/model"
)

func TestBuildContents(t *testing.T) {
	call := core.ToolCall{ID: "c1", Name: "find_pizza_shop", Args: map[string]any{"location": "SF"}}

	contents := buildContents([]core.Message{
		core.NewSystemMessage("skip"),
		core.NewHumanMessage("order pizza"),
		core.NewAIMessage("", call),
		core.NewToolMessage(call, "found"),
	})

	require.Len(t, contents, 3)
	assert.Equal(t, string(genai.RoleUser), contents[0].Role)
	assert.Equal(t, string(genai.RoleModel), contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "c1", contents[1].Parts[0].FunctionCall.ID)
	require.NotNil(t, contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "found", contents[2].Parts[0].FunctionResponse.Response["output"])
}

func TestToolConfig(t *testing.T) {
	named := toolConfig(model.ForceTool("route"))
	assert.Equal(t, genai.FunctionCallingConfigModeAny, named.FunctionCallingConfig.Mode)
	assert.Equal(t, []string{"route"}, named.FunctionCallingConfig.AllowedFunctionNames)

	assert.Equal(t, genai.FunctionCallingConfigModeAuto, toolConfig(model.ToolChoice{}).FunctionCallingConfig.Mode)
}

func TestToResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []*genai.Part{
				{Text: "hello"},
				{FunctionCall: &genai.FunctionCall{ID: "x", Name: "route", Args: map[string]any{"route": "openCode"}}},
			}},
			FinishReason: genai.FinishReasonStop,
		}},
	}

	r := toResponse(resp)
	assert.Equal(t, "hello", r.Message.Content)
	require.Len(t, r.Message.ToolCalls, 1)
	assert.Equal(t, "openCode", r.Message.ToolCalls[0].Args["route"])
	assert.Equal(t, "stop", r.FinishReason)
}
