package general

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/internal/testutil"
	"github.com/hupe1980/routemesh/model"
)

func TestRespond(t *testing.T) {
	tests := []struct {
		name     string
		fallback bool
	}{
		{"routed", false},
		{"fallback asks to clarify", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := model.NewMockModel("mock", "test").
				AddMessage(core.AIMessage{Content: "Hello!", ToolCalls: []core.ToolCall{{ID: "x", Name: "stray"}}})

			state := testutil.NewHistory().Human("hi").State("t")
			rc := core.NewRunContext(context.Background(), "t", "r", state, nil, nil, nil)
			rc.Routing = core.Routing{Route: "generalInput", Fallback: tt.fallback}

			out, err := New(m).Run(rc)
			require.NoError(t, err)

			require.Len(t, out.Patch.Messages, 1)
			ai := out.Patch.Messages[0].(core.AIMessage)
			assert.Equal(t, "Hello!", ai.Content)
			assert.Empty(t, ai.ToolCalls)

			req := m.Requests()[0]
			assert.Empty(t, req.Tools)
			assert.Equal(t, tt.fallback, req.Instructions != DefaultInstructions)
		})
	}
}
