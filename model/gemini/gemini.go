// Package gemini provides an implementation of model.Model backed by the
// Google Gen AI SDK (Gemini API or Vertex AI).
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/model"
)

// Options configures the Gemini adapter.
type Options struct {
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	APIKey          string
}

// Model wraps genai.Client behind the generic model.Model interface.
type Model struct {
	client *genai.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:           "gemini-2.5-flash",
		MaxOutputTokens: 4096,
	}
}

// NewModel creates a Gemini model. An empty APIKey lets the SDK fall back to
// GOOGLE_API_KEY / GEMINI_API_KEY.
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient creates a Gemini model from an existing client.
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{client: client, opts: opts}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		contents := buildContents(req.Messages)
		config := m.buildConfig(req)

		if !req.Stream {
			resp, err := m.client.Models.GenerateContent(ctx, m.opts.Model, contents, config)
			if err != nil {
				errCh <- fmt.Errorf("gemini api error: %w", err)
				return
			}

			out <- toResponse(resp)

			return
		}

		var (
			text  strings.Builder
			final model.Response
		)

		for chunk, err := range m.client.Models.GenerateContentStream(ctx, m.opts.Model, contents, config) {
			if err != nil {
				errCh <- fmt.Errorf("gemini streaming error: %w", err)
				return
			}

			r := toResponse(chunk)
			if r.Message.Content != "" {
				text.WriteString(r.Message.Content)
				out <- model.Response{Partial: true, Message: core.AIMessage{Content: r.Message.Content}}
			}

			final.Message.ToolCalls = append(final.Message.ToolCalls, r.Message.ToolCalls...)
			if r.FinishReason != "" {
				final.FinishReason = r.FinishReason
			}

			if r.Usage != nil {
				final.Usage = r.Usage
			}
		}

		final.Message.Content = text.String()
		out <- final
	}()

	return out, errCh
}

func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(m.opts.Temperature),
		MaxOutputTokens: m.opts.MaxOutputTokens,
	}

	var system []string
	if req.Instructions != "" {
		system = append(system, req.Instructions)
	}

	for _, msg := range req.Messages {
		if sm, ok := msg.(core.SystemMessage); ok {
			system = append(system, sm.Content)
		}
	}

	if len(system) > 0 {
		config.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Function.Name,
				Description:          t.Function.Description,
				ParametersJsonSchema: t.Function.Parameters,
			})
		}

		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		config.ToolConfig = toolConfig(req.ToolChoice)
	}

	return config
}

func toolConfig(tc model.ToolChoice) *genai.ToolConfig {
	fc := &genai.FunctionCallingConfig{Mode: genai.FunctionCallingConfigModeAuto}

	switch tc.Mode {
	case model.ToolChoiceRequired:
		fc.Mode = genai.FunctionCallingConfigModeAny
	case model.ToolChoiceNamed:
		fc.Mode = genai.FunctionCallingConfigModeAny
		fc.AllowedFunctionNames = []string{tc.Name}
	case model.ToolChoiceNone:
		fc.Mode = genai.FunctionCallingConfigModeNone
	}

	return &genai.ToolConfig{FunctionCallingConfig: fc}
}

// buildContents maps history to Gemini contents. Tool responses are sent as
// function responses in a user turn.
func buildContents(msgs []core.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(msgs))

	for _, msg := range msgs {
		switch v := msg.(type) {
		case core.HumanMessage:
			contents = append(contents, genai.NewContentFromText(v.Content, genai.RoleUser))
		case core.AIMessage:
			parts := make([]*genai.Part, 0, len(v.ToolCalls)+1)
			if v.Content != "" {
				parts = append(parts, genai.NewPartFromText(v.Content))
			}

			for _, tc := range v.ToolCalls {
				p := genai.NewPartFromFunctionCall(tc.Name, tc.Args)
				p.FunctionCall.ID = tc.ID
				parts = append(parts, p)
			}

			if len(parts) > 0 {
				contents = append(contents, genai.NewContentFromParts(parts, genai.RoleModel))
			}
		case core.ToolMessage:
			p := genai.NewPartFromFunctionResponse(v.Name, map[string]any{"output": v.Content})
			p.FunctionResponse.ID = v.ToolCallID
			contents = append(contents, genai.NewContentFromParts([]*genai.Part{p}, genai.RoleUser))
		case core.SystemMessage:
			// Carried in SystemInstruction.
		}
	}

	return contents
}

func toResponse(resp *genai.GenerateContentResponse) model.Response {
	var r model.Response
	if resp == nil {
		return r
	}

	r.ID = resp.ResponseID

	for _, fc := range resp.FunctionCalls() {
		args := fc.Args
		if args == nil {
			args = map[string]any{}
		}

		r.Message.ToolCalls = append(r.Message.ToolCalls, core.ToolCall{ID: fc.ID, Name: fc.Name, Args: args})
	}

	if len(resp.Candidates) > 0 {
		for _, p := range contentParts(resp.Candidates[0].Content) {
			if p.Text != "" && !p.Thought {
				r.Message.Content += p.Text
			}
		}

		r.FinishReason = strings.ToLower(string(resp.Candidates[0].FinishReason))
	}

	if u := resp.UsageMetadata; u != nil {
		r.Usage = &model.TokenUsage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}

	return r
}

func contentParts(c *genai.Content) []*genai.Part {
	if c == nil {
		return nil
	}

	return c.Parts
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gemini",
		SupportsTools: true,
	}
}
