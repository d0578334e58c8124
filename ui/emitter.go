// Package ui emits render directives (UIEvents) for the conversational front
// end and delivers them to rendering sinks.
package ui

import (
	"fmt"
	"maps"

	"github.com/hupe1980/routemesh/core"
)

// Emitter collects UIEvents for the AI message that was most recently
// appended in the current node. Events that reference a tool call must name
// one of that message's calls.
type Emitter struct {
	message core.AIMessage
	events  []core.UIEvent
}

// NewEmitter binds an emitter to msg.
func NewEmitter(msg core.AIMessage) *Emitter {
	return &Emitter{message: msg}
}

// Push creates a component instance. toolCallID may be empty for events that
// are not tied to a call.
func (e *Emitter) Push(componentKey string, props map[string]any, toolCallID string) (core.UIEvent, error) {
	if toolCallID != "" && !e.owns(toolCallID) {
		return core.UIEvent{}, fmt.Errorf("ui event %s: tool call %s does not belong to message %s", componentKey, toolCallID, e.message.ID)
	}

	if props == nil {
		props = map[string]any{}
	}

	ev := core.UIEvent{
		ID:           core.NewID(),
		ComponentKey: componentKey,
		Props:        maps.Clone(props),
		ToolCallID:   toolCallID,
		Mode:         core.UIModeCreate,
	}
	e.events = append(e.events, ev)

	return ev, nil
}

// Update replaces the props of prev, keeping its id, component and tool call.
// The tool call must belong to the bound message, as for Push.
func (e *Emitter) Update(prev core.UIEvent, props map[string]any) (core.UIEvent, error) {
	if prev.ToolCallID != "" && !e.owns(prev.ToolCallID) {
		return core.UIEvent{}, fmt.Errorf("ui event %s: tool call %s does not belong to message %s", prev.ID, prev.ToolCallID, e.message.ID)
	}

	if props == nil {
		props = map[string]any{}
	}

	ev := core.UIEvent{
		ID:           prev.ID,
		ComponentKey: prev.ComponentKey,
		Props:        maps.Clone(props),
		ToolCallID:   prev.ToolCallID,
		Mode:         core.UIModeUpdate,
	}
	e.events = append(e.events, ev)

	return ev, nil
}

// Remove deletes a component instance.
func (e *Emitter) Remove(id string) core.UIEvent {
	ev := core.UIEvent{ID: id, Mode: core.UIModeDelete}
	e.events = append(e.events, ev)

	return ev
}

// Events returns the events pushed so far.
func (e *Emitter) Events() []core.UIEvent {
	return append([]core.UIEvent(nil), e.events...)
}

func (e *Emitter) owns(toolCallID string) bool {
	for _, tc := range e.message.ToolCalls {
		if tc.ID == toolCallID {
			return true
		}
	}

	return false
}

// CheckToolCallRefs reports every event in events whose ToolCallID is not a
// call of the most recent AI message preceding it in msgs.
func CheckToolCallRefs(msgs []core.Message, events []core.UIEvent) error {
	last, ok := core.LastAIMessage(msgs)
	for _, ev := range events {
		if ev.ToolCallID == "" || ev.Mode == core.UIModeDelete {
			continue
		}

		if !ok {
			return fmt.Errorf("ui event %s references tool call %s but no AI message exists", ev.ID, ev.ToolCallID)
		}

		if !NewEmitter(last).owns(ev.ToolCallID) {
			return fmt.Errorf("ui event %s references tool call %s outside message %s", ev.ID, ev.ToolCallID, last.ID)
		}
	}

	return nil
}
