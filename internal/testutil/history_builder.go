package testutil

import (
	"fmt"

	"github.com/hupe1980/routemesh/core"
)

// HistoryBuilder provides a fluent helper for constructing message histories.
// Example:
//
//	msgs := NewHistory().Human("hi").AICall("plan", nil).Tool("approved").Messages()
//
// Tool answers the most recent unanswered call. IDs are deterministic
// (msg-N, call-N) so assertions can reference them.
type HistoryBuilder struct {
	msgs    []core.Message
	pending []core.ToolCall
	seq     int
}

// NewHistory creates an empty builder.
func NewHistory() *HistoryBuilder { return &HistoryBuilder{} }

func (b *HistoryBuilder) nextID(prefix string) string {
	b.seq++
	return fmt.Sprintf("%s-%d", prefix, b.seq)
}

// Human appends a human message (chainable).
func (b *HistoryBuilder) Human(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.HumanMessage{ID: b.nextID("msg"), Content: text})
	return b
}

// AI appends a text-only AI message (chainable).
func (b *HistoryBuilder) AI(text string) *HistoryBuilder {
	b.msgs = append(b.msgs, core.AIMessage{ID: b.nextID("msg"), Content: text})
	return b
}

// AICall appends an AI message carrying a single tool call (chainable).
func (b *HistoryBuilder) AICall(name string, args map[string]any) *HistoryBuilder {
	call := core.ToolCall{ID: b.nextID("call"), Name: name, Args: args}
	b.msgs = append(b.msgs, core.AIMessage{ID: b.nextID("msg"), ToolCalls: []core.ToolCall{call}})
	b.pending = append(b.pending, call)
	return b
}

// Tool answers the oldest unanswered call (chainable). It panics when no call
// is open, which is a bug in the test itself.
func (b *HistoryBuilder) Tool(content string) *HistoryBuilder {
	if len(b.pending) == 0 {
		panic("testutil: Tool called without an open tool call")
	}
	call := b.pending[0]
	b.pending = b.pending[1:]
	b.msgs = append(b.msgs, core.ToolMessage{ID: b.nextID("msg"), ToolCallID: call.ID, Name: call.Name, Content: content})
	return b
}

// Messages returns the built history.
func (b *HistoryBuilder) Messages() []core.Message {
	return append([]core.Message(nil), b.msgs...)
}

// State wraps the history into a ConversationState for thread.
func (b *HistoryBuilder) State(thread string) core.ConversationState {
	s := core.NewConversationState(thread)
	s.Messages = b.Messages()
	return s
}
