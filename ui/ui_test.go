package ui

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/routemesh/core"
)

func TestEmitter_RejectsForeignToolCall(t *testing.T) {
	msg := core.NewAIMessage("", core.ToolCall{ID: "call-1", Name: "stock-price"})
	e := NewEmitter(msg)

	ev, err := e.Push("stock-price", map[string]any{"ticker": "AAPL"}, "call-1")
	require.NoError(t, err)
	assert.Equal(t, "call-1", ev.ToolCallID)
	assert.Equal(t, core.UIModeCreate, ev.Mode)

	_, err = e.Push("stock-price", nil, "call-2")
	assert.Error(t, err)

	_, err = e.Push("banner", nil, "")
	require.NoError(t, err)

	assert.Len(t, e.Events(), 2)
}

func TestEmitter_PropsAreCopied(t *testing.T) {
	e := NewEmitter(core.NewAIMessage("hi"))
	props := map[string]any{"a": 1}

	ev, err := e.Push("x", props, "")
	require.NoError(t, err)

	props["a"] = 2
	assert.Equal(t, 1, ev.Props["a"])
}

func TestEmitter_UpdateAndRemove(t *testing.T) {
	msg := core.NewAIMessage("", core.ToolCall{ID: "call-1", Name: "update_file"})
	e := NewEmitter(msg)

	created, err := e.Push("proposed-change", map[string]any{"planItem": "a"}, "call-1")
	require.NoError(t, err)

	updated, err := e.Update(created, map[string]any{"planItem": "a", "status": "accepted"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "call-1", updated.ToolCallID)
	assert.Equal(t, core.UIModeUpdate, updated.Mode)

	_, err = NewEmitter(core.NewAIMessage("later")).Update(created, nil)
	assert.Error(t, err, "the card's call must belong to the bound message")

	removed := e.Remove(created.ID)
	assert.Equal(t, core.UIModeDelete, removed.Mode)

	list := core.NewUIList(e.Events()...)
	assert.Zero(t, list.Len())
}

func TestCheckToolCallRefs(t *testing.T) {
	old := core.NewAIMessage("", core.ToolCall{ID: "old", Name: "portfolio"})
	last := core.NewAIMessage("", core.ToolCall{ID: "new", Name: "portfolio"})
	msgs := []core.Message{old, core.NewToolMessage(old.ToolCalls[0], "ok"), last}

	assert.NoError(t, CheckToolCallRefs(msgs, []core.UIEvent{{ID: "1", ToolCallID: "new"}}))
	assert.Error(t, CheckToolCallRefs(msgs, []core.UIEvent{{ID: "1", ToolCallID: "old"}}))
}

func TestMemorySink(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()

	require.NoError(t, Multi(s, Discard).Publish(ctx, "t1", []core.UIEvent{{ID: "a"}}))
	require.NoError(t, s.Publish(ctx, "t1", []core.UIEvent{{ID: "b"}}))

	got := s.Events("t1")
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[1].ID)
	assert.Empty(t, s.Events("t2"))
}
