package model

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/routemesh/core"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestComplete_FillsIDs(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.AddMessage(core.AIMessage{ToolCalls: []core.ToolCall{{Name: "route", Args: map[string]any{"route": "stockbroker"}}}})

	resp, err := Complete(context.Background(), m, Request{Tools: nil, ToolChoice: ForceTool("route")})
	require.NoError(t, err)

	assert.NotEmpty(t, resp.Message.ID)
	require.Len(t, resp.Message.ToolCalls, 1)
	assert.NotEmpty(t, resp.Message.ToolCalls[0].ID)
	assert.Equal(t, "tool_calls", resp.FinishReason)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, ToolChoiceNamed, reqs[0].ToolChoice.Mode)
	assert.Equal(t, "route", reqs[0].ToolChoice.Name)
}

func TestComplete_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	m := NewMockModel("mock", "mock").AddError(boom)

	_, err := Complete(context.Background(), m, Request{})
	assert.ErrorIs(t, err, boom)
}

func TestComplete_ExhaustedScript(t *testing.T) {
	m := NewMockModel("mock", "mock")

	_, err := Complete(context.Background(), m, Request{})
	assert.Error(t, err)
}

func TestComplete_StreamingReturnsFinal(t *testing.T) {
	m := NewMockModel("mock", "mock").AddText("hello")

	out, errCh := m.Generate(context.Background(), Request{Stream: true})

	var partials int
	var final Response
	for r := range out {
		if r.Partial {
			partials++
			continue
		}
		final = r
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, 5, partials)
	assert.Equal(t, "hello", final.Message.Content)
}

func TestMockModel_Handler(t *testing.T) {
	m := NewMockModel("mock", "mock")
	m.SetHandler(func(req Request) (core.AIMessage, error) {
		return core.AIMessage{Content: req.Instructions}, nil
	})

	resp, err := Complete(context.Background(), m, Request{Instructions: "echo"})
	require.NoError(t, err)
	assert.Equal(t, "echo", resp.Message.Content)
}

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs(`{"ticker":"AAPL"}`)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", args["ticker"])

	args, err = ParseArgs("")
	require.NoError(t, err)
	assert.Empty(t, args)

	_, err = ParseArgs("{nope")
	assert.Error(t, err)

	assert.Equal(t, "{}", EncodeArgs(nil))
}

func TestCall_WrapsErrorWithNode(t *testing.T) {
	m := NewMockModel("mock", "test").AddError(errors.New("offline"))
	rc := core.NewRunContext(context.Background(), "t", "r", core.NewConversationState("t"), nil, nil, nil).
		ForNode("pizzaOrderer", "find_store", core.NewConversationState("t"))

	_, err := Call(rc, m, Request{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pizzaOrderer/find_store")
	assert.Contains(t, err.Error(), "offline")
}

func TestCall_ReturnsMessage(t *testing.T) {
	m := NewMockModel("mock", "test").AddToolCall("route", map[string]any{"route": "stockbroker"})
	rc := core.NewRunContext(context.Background(), "t", "r", core.NewConversationState("t"), nil, nil, nil)

	msg, err := Call(rc, m, Request{})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.True(t, msg.HasToolCall("route"))
}
