package model

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/hupe1980/routemesh/core"
)

// ErrNoResponse is returned by Complete when a provider closes its stream
// without emitting a final (non-partial) response.
var ErrNoResponse = errors.New("model returned no final response")

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// ToolChoiceMode controls whether and how the model must select a tool.
type ToolChoiceMode string

const (
	// ToolChoiceAuto lets the model decide.
	ToolChoiceAuto ToolChoiceMode = "auto"
	// ToolChoiceRequired forces at least one call to any declared tool.
	ToolChoiceRequired ToolChoiceMode = "required"
	// ToolChoiceNone forbids tool calls.
	ToolChoiceNone ToolChoiceMode = "none"
	// ToolChoiceNamed forces a call to the tool named in ToolChoice.Name.
	ToolChoiceNamed ToolChoiceMode = "named"
)

// ToolChoice is the provider-neutral tool selection policy. The zero value
// means auto.
type ToolChoice struct {
	Mode ToolChoiceMode `json:"mode,omitempty"`
	Name string         `json:"name,omitempty"`
}

// ForceTool returns a ToolChoice that forces a call to name.
func ForceTool(name string) ToolChoice { return ToolChoice{Mode: ToolChoiceNamed, Name: name} }

// RequireTool returns a ToolChoice that forces a call to some declared tool.
func RequireTool() ToolChoice { return ToolChoice{Mode: ToolChoiceRequired} }

// Request captures the normalized model input produced by workflow nodes.
type Request struct {
	Instructions string           `json:"instructions"` // System prompt for the model
	Messages     []core.Message   `json:"-"`            // Conversation converted to provider messages
	Tools        []ToolDefinition `json:"tools,omitempty"`
	ToolChoice   ToolChoice       `json:"tool_choice,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a (partial or final) chunk emitted by a streaming model. The
// final chunk carries the complete AI message including tool calls.
type Response struct {
	ID           string         `json:"id"`
	Partial      bool           `json:"partial"` // Indicates if this is a partial response
	Message      core.AIMessage `json:"message"`
	FinishReason string         `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage    `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "gemini", "mock"
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the router and workflow nodes
// to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Complete drains a Generate call and returns the final response. Missing
// message or tool call ids are filled in so every call can be correlated.
func Complete(ctx context.Context, m Model, req Request) (Response, error) {
	out, errCh := m.Generate(ctx, req)

	var (
		final Response
		found bool
	)

	for resp := range out {
		if !resp.Partial {
			final, found = resp, true
		}
	}

	if err := <-errCh; err != nil {
		return Response{}, err
	}

	if !found {
		return Response{}, ErrNoResponse
	}

	if final.Message.ID == "" {
		final.Message.ID = core.NewID()
	}

	calls := slices.Clone(final.Message.ToolCalls)
	for i := range calls {
		if calls[i].ID == "" {
			calls[i].ID = core.NewID()
		}
	}
	final.Message.ToolCalls = calls

	return final, nil
}

// MockModel is a scripted in-memory Model useful for tests & examples.
// Responses are served in FIFO order; a handler, when set, takes precedence.
// Every request is recorded for later assertions.
type MockModel struct {
	info Info

	mu       sync.Mutex
	script   []scripted
	handler  func(Request) (core.AIMessage, error)
	requests []Request
}

type scripted struct {
	msg core.AIMessage
	err error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
	}
}

// AddText queues a text-only reply.
func (m *MockModel) AddText(text string) *MockModel {
	return m.add(scripted{msg: core.AIMessage{Content: text}})
}

// AddToolCall queues a reply carrying a single tool call.
func (m *MockModel) AddToolCall(name string, args map[string]any) *MockModel {
	return m.add(scripted{msg: core.AIMessage{ToolCalls: []core.ToolCall{{ID: core.NewID(), Name: name, Args: args}}}})
}

// AddMessage queues an arbitrary AI message.
func (m *MockModel) AddMessage(msg core.AIMessage) *MockModel {
	return m.add(scripted{msg: msg})
}

// AddError queues a failure.
func (m *MockModel) AddError(err error) *MockModel {
	return m.add(scripted{err: err})
}

func (m *MockModel) add(s scripted) *MockModel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.script = append(m.script, s)

	return m
}

// SetHandler installs a function computing replies from requests.
func (m *MockModel) SetHandler(fn func(Request) (core.AIMessage, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.handler = fn
}

// Requests returns a copy of all requests received so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.requests)
}

// Remaining reports how many scripted replies have not been consumed.
func (m *MockModel) Remaining() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.script)
}

func (m *MockModel) next(req Request) (core.AIMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.handler != nil {
		return m.handler(req)
	}

	if len(m.script) == 0 {
		return core.AIMessage{}, fmt.Errorf("mock model %s: no scripted response left", m.info.Name)
	}

	s := m.script[0]
	m.script = m.script[1:]

	return s.msg, s.err
}

// Generate implements Model; emits optional streaming char chunks then the final response.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		msg, err := m.next(req)
		if err != nil {
			errCh <- err
			return
		}

		if req.Stream {
			for _, r := range msg.Content {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{Partial: true, Message: core.AIMessage{Content: string(r)}}:
				}
			}
		}

		finish := "stop"
		if len(msg.ToolCalls) > 0 {
			finish = "tool_calls"
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Message: msg, FinishReason: finish}:
		}
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }

// Call runs a completion step for the node bound to rc and returns the final
// AI message. The call is logged with its duration and token usage.
func Call(rc *core.RunContext, m Model, req Request) (core.AIMessage, error) {
	start := time.Now()

	resp, err := Complete(rc.Context, m, req)
	dur := time.Since(start)

	tokens := 0
	if resp.Usage != nil {
		tokens = resp.Usage.TotalTokens
	}

	if l, ok := rc.Logger().(interface {
		LogModelCall(model string, tokens int, duration time.Duration, success bool, err error)
	}); ok {
		l.LogModelCall(m.Info().Name, tokens, dur, err == nil, err)
	} else if err != nil {
		rc.LogWarn("model.call.failed", "model", m.Info().Name, "error", err.Error())
	} else {
		rc.LogDebug("model.call", "model", m.Info().Name, "tokens", tokens, "duration_ms", dur.Milliseconds())
	}

	if err != nil {
		return core.AIMessage{}, fmt.Errorf("completion in %s/%s: %w", rc.Workflow, rc.Node, err)
	}

	return resp.Message, nil
}
