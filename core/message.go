package core

import (
	"github.com/google/uuid"
)

// Role identifies the author class of a Message.
type Role string

const (
	// RoleHuman marks end-user input.
	RoleHuman Role = "human"
	// RoleAI marks model (or node manufactured) output.
	RoleAI Role = "ai"
	// RoleTool marks the response to a previously issued tool call.
	RoleTool Role = "tool"
	// RoleSystem marks out-of-band instructions.
	RoleSystem Role = "system"
)

// Message is a closed variant over HumanMessage, AIMessage, ToolMessage and
// SystemMessage. Concrete types implement the unexported isMessage marker so
// consumers can switch exhaustively. Messages are immutable once appended.
type Message interface {
	MessageID() string
	Role() Role
	Text() string
	isMessage()
}

// ToolCall is a named, structured request issued by a completion step (or
// manufactured by a node). ID correlates the call with its ToolMessage and any
// UIEvents rendered for it.
type ToolCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// HumanMessage is user-authored text.
type HumanMessage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// MessageID implements Message.
func (m HumanMessage) MessageID() string { return m.ID }

// Role implements Message.
func (HumanMessage) Role() Role { return RoleHuman }

// Text implements Message.
func (m HumanMessage) Text() string { return m.Content }

func (HumanMessage) isMessage() {}

// AIMessage is assistant output: optional text plus an ordered list of tool calls.
type AIMessage struct {
	ID        string     `json:"id"`
	Content   string     `json:"content,omitempty"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// MessageID implements Message.
func (m AIMessage) MessageID() string { return m.ID }

// Role implements Message.
func (AIMessage) Role() Role { return RoleAI }

// Text implements Message.
func (m AIMessage) Text() string { return m.Content }

func (AIMessage) isMessage() {}

// HasToolCall reports whether the message carries a call with the given name.
func (m AIMessage) HasToolCall(name string) bool {
	for _, tc := range m.ToolCalls {
		if tc.Name == name {
			return true
		}
	}
	return false
}

// ToolCallIDs returns the ids of all tool calls preserving order.
func (m AIMessage) ToolCallIDs() []string {
	ids := make([]string, 0, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		ids = append(ids, tc.ID)
	}
	return ids
}

// ToolMessage answers the tool call identified by ToolCallID.
type ToolMessage struct {
	ID         string `json:"id"`
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name,omitempty"`
	Content    string `json:"content"`
}

// MessageID implements Message.
func (m ToolMessage) MessageID() string { return m.ID }

// Role implements Message.
func (ToolMessage) Role() Role { return RoleTool }

// Text implements Message.
func (m ToolMessage) Text() string { return m.Content }

func (ToolMessage) isMessage() {}

// SystemMessage carries instructions that are not part of the visible dialogue.
type SystemMessage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// MessageID implements Message.
func (m SystemMessage) MessageID() string { return m.ID }

// Role implements Message.
func (SystemMessage) Role() Role { return RoleSystem }

// Text implements Message.
func (m SystemMessage) Text() string { return m.Content }

func (SystemMessage) isMessage() {}

// NewID generates a new unique identifier for messages, tool calls and UI events.
func NewID() string { return uuid.NewString() }

// NewHumanMessage creates a human message with a fresh id.
func NewHumanMessage(content string) HumanMessage {
	return HumanMessage{ID: NewID(), Content: content}
}

// NewAIMessage creates an AI message with a fresh id.
func NewAIMessage(content string, calls ...ToolCall) AIMessage {
	return AIMessage{ID: NewID(), Content: content, ToolCalls: calls}
}

// NewToolMessage creates the response to call.
func NewToolMessage(call ToolCall, content string) ToolMessage {
	return ToolMessage{ID: NewID(), ToolCallID: call.ID, Name: call.Name, Content: content}
}

// NewSystemMessage creates a system message with a fresh id.
func NewSystemMessage(content string) SystemMessage {
	return SystemMessage{ID: NewID(), Content: content}
}

// LastAIMessage returns the most recent AI message, if any.
func LastAIMessage(msgs []Message) (AIMessage, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if ai, ok := msgs[i].(AIMessage); ok {
			return ai, true
		}
	}
	return AIMessage{}, false
}

// LastHumanMessage returns the most recent human message, if any.
func LastHumanMessage(msgs []Message) (HumanMessage, bool) {
	for i := len(msgs) - 1; i >= 0; i-- {
		if h, ok := msgs[i].(HumanMessage); ok {
			return h, true
		}
	}
	return HumanMessage{}, false
}

// SplitLast splits a history into all-but-last and last. ok is false for an
// empty history.
func SplitLast(msgs []Message) (prior []Message, last Message, ok bool) {
	if len(msgs) == 0 {
		return nil, nil, false
	}
	return msgs[:len(msgs)-1], msgs[len(msgs)-1], true
}

// CountToolCalls counts AI messages that contain at least one call named name.
func CountToolCalls(msgs []Message, name string) int {
	n := 0
	for _, m := range msgs {
		if ai, ok := m.(AIMessage); ok && ai.HasToolCall(name) {
			n++
		}
	}
	return n
}
