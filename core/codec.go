package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// messageEnvelope is the persisted shape of a Message; Role discriminates the variant.
type messageEnvelope struct {
	Role       Role       `json:"role"`
	ID         string     `json:"id"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// MarshalMessage encodes a Message with its role discriminator.
func MarshalMessage(m Message) ([]byte, error) {
	env, err := toEnvelope(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// UnmarshalMessage decodes a Message produced by MarshalMessage.
func UnmarshalMessage(data []byte) (Message, error) {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	return fromEnvelope(env)
}

func toEnvelope(m Message) (messageEnvelope, error) {
	switch v := m.(type) {
	case HumanMessage:
		return messageEnvelope{Role: RoleHuman, ID: v.ID, Content: v.Content}, nil
	case AIMessage:
		return messageEnvelope{Role: RoleAI, ID: v.ID, Content: v.Content, ToolCalls: v.ToolCalls}, nil
	case ToolMessage:
		return messageEnvelope{Role: RoleTool, ID: v.ID, Content: v.Content, ToolCallID: v.ToolCallID, Name: v.Name}, nil
	case SystemMessage:
		return messageEnvelope{Role: RoleSystem, ID: v.ID, Content: v.Content}, nil
	default:
		return messageEnvelope{}, fmt.Errorf("unsupported message type %T", m)
	}
}

func fromEnvelope(env messageEnvelope) (Message, error) {
	switch env.Role {
	case RoleHuman:
		return HumanMessage{ID: env.ID, Content: env.Content}, nil
	case RoleAI:
		return AIMessage{ID: env.ID, Content: env.Content, ToolCalls: env.ToolCalls}, nil
	case RoleTool:
		return ToolMessage{ID: env.ID, ToolCallID: env.ToolCallID, Name: env.Name, Content: env.Content}, nil
	case RoleSystem:
		return SystemMessage{ID: env.ID, Content: env.Content}, nil
	default:
		return nil, fmt.Errorf("unknown message role %q", env.Role)
	}
}

type stateEnvelope struct {
	ThreadID    string            `json:"thread_id"`
	Messages    []messageEnvelope `json:"messages"`
	UI          []UIEvent         `json:"ui"`
	Route       string            `json:"route,omitempty"`
	TripDetails *TripDetails      `json:"tripDetails,omitempty"`
	Plan        *PlanState        `json:"planState,omitempty"`
	Pending     *PendingInterrupt `json:"pending,omitempty"`
	AutoAccept  bool              `json:"autoAccept,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// MarshalJSON implements json.Marshaler.
func (s ConversationState) MarshalJSON() ([]byte, error) {
	env := stateEnvelope{
		ThreadID:    s.ThreadID,
		Messages:    make([]messageEnvelope, 0, len(s.Messages)),
		UI:          s.UI.Events(),
		Route:       s.Route,
		TripDetails: s.TripDetails,
		Plan:        s.Plan,
		Pending:     s.Pending,
		AutoAccept:  s.AutoAccept,
		Timestamp:   s.Timestamp,
	}
	for _, m := range s.Messages {
		me, err := toEnvelope(m)
		if err != nil {
			return nil, err
		}
		env.Messages = append(env.Messages, me)
	}
	return json.Marshal(env)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ConversationState) UnmarshalJSON(data []byte) error {
	var env stateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	msgs := make([]Message, 0, len(env.Messages))
	for _, me := range env.Messages {
		m, err := fromEnvelope(me)
		if err != nil {
			return err
		}
		msgs = append(msgs, m)
	}
	*s = ConversationState{
		ThreadID:    env.ThreadID,
		Messages:    msgs,
		UI:          NewUIList(env.UI...),
		Route:       env.Route,
		TripDetails: env.TripDetails,
		Plan:        env.Plan,
		Pending:     env.Pending,
		AutoAccept:  env.AutoAccept,
		Timestamp:   env.Timestamp,
	}
	return nil
}
