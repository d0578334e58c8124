package core

import (
	"fmt"
	"strings"
)

// ProtocolViolation describes an AI tool call that was not answered before the
// next human message (or the end of history).
type ProtocolViolation struct {
	MessageID  string
	ToolCallID string
	ToolName   string
}

// ProtocolError aggregates violations of the tool-call protocol invariant:
// every AI message with tool calls must be followed by matching ToolMessages
// before the next human turn is processed.
type ProtocolError struct {
	Violations []ProtocolViolation
}

func (e *ProtocolError) Error() string {
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, fmt.Sprintf("%s(%s)", v.ToolName, v.ToolCallID))
	}
	return "unanswered tool calls: " + strings.Join(parts, ", ")
}

// UnansweredToolCalls returns the calls of all AI messages that have no
// matching ToolMessage anywhere later in msgs.
func UnansweredToolCalls(msgs []Message) []ProtocolViolation {
	answered := map[string]bool{}
	for _, m := range msgs {
		if tm, ok := m.(ToolMessage); ok {
			answered[tm.ToolCallID] = true
		}
	}
	var out []ProtocolViolation
	for _, m := range msgs {
		ai, ok := m.(AIMessage)
		if !ok {
			continue
		}
		for _, tc := range ai.ToolCalls {
			if !answered[tc.ID] {
				out = append(out, ProtocolViolation{MessageID: ai.ID, ToolCallID: tc.ID, ToolName: tc.Name})
			}
		}
	}
	return out
}

// ValidateToolProtocol checks that every tool call is answered before the next
// human message. Calls at the tail of history (no later human message) are
// only reported when strictTail is true.
func ValidateToolProtocol(msgs []Message, strictTail bool) error {
	var violations []ProtocolViolation
	open := map[string]ProtocolViolation{}
	openOrder := []string{}

	flush := func() {
		for _, id := range openOrder {
			if v, ok := open[id]; ok {
				violations = append(violations, v)
			}
		}
		open = map[string]ProtocolViolation{}
		openOrder = nil
	}

	for _, m := range msgs {
		switch v := m.(type) {
		case AIMessage:
			for _, tc := range v.ToolCalls {
				open[tc.ID] = ProtocolViolation{MessageID: v.ID, ToolCallID: tc.ID, ToolName: tc.Name}
				openOrder = append(openOrder, tc.ID)
			}
		case ToolMessage:
			delete(open, v.ToolCallID)
		case HumanMessage:
			flush()
		case SystemMessage:
		}
	}
	if strictTail {
		flush()
	}
	if len(violations) > 0 {
		return &ProtocolError{Violations: violations}
	}
	return nil
}
