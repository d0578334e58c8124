// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/model"
)

// Options configures the Anthropic model adapter (temperature, model id,
// max tokens, API key). Extend via functional options to preserve stability.
type Options struct {
	Model       anthropic.Model
	Temperature float64
	MaxTokens   int64
	APIKey      string
	BaseURL     string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

func defaultOptions() Options {
	return Options{
		Model:       anthropic.ModelClaude3_5Sonnet20241022,
		Temperature: 0,
		MaxTokens:   4096,
	}
}

// NewModel creates a new Anthropic model using the official client.
func NewModel(optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client.
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := defaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Generate implements unified streaming / non-streaming generation.
// It adapts the Anthropic Messages API (with tool use) into model.Response events.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := m.buildParams(req)

		var (
			resp *anthropic.Message
			err  error
		)

		if req.Stream {
			resp, err = m.stream(ctx, params, out)
		} else {
			resp, err = m.client.Messages.New(ctx, params)
		}

		if err != nil {
			errCh <- fmt.Errorf("anthropic api error: %w", err)
			return
		}

		final, err := toResponse(resp)
		if err != nil {
			errCh <- err
			return
		}

		out <- final
	}()

	return out, errCh
}

func (m *Model) buildParams(req model.Request) anthropic.MessageNewParams {
	params := anthropic.MessageNewParams{
		Model:       m.opts.Model,
		Messages:    buildMessages(req.Messages),
		MaxTokens:   m.opts.MaxTokens,
		Temperature: anthropic.Float(m.opts.Temperature),
	}

	if systemBlocks := extractSystem(req); len(systemBlocks) > 0 {
		params.System = systemBlocks
	}

	if len(req.Tools) > 0 && req.ToolChoice.Mode != model.ToolChoiceNone {
		params.Tools = buildTools(req.Tools)
		params.ToolChoice = toolChoice(req.ToolChoice)
	}

	return params
}

// stream accumulates a streaming response, forwarding text deltas as partials.
func (m *Model) stream(ctx context.Context, params anthropic.MessageNewParams, out chan<- model.Response) (*anthropic.Message, error) {
	stream := m.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}

	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, err
		}

		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok && delta.Delta.Text != "" {
			out <- model.Response{Partial: true, Message: core.AIMessage{Content: delta.Delta.Text}}
		}
	}

	if err := stream.Err(); err != nil {
		return nil, err
	}

	return &message, nil
}

func toResponse(resp *anthropic.Message) (model.Response, error) {
	var msg core.AIMessage

	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Content += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()

			raw, err := json.Marshal(toolBlock.Input)
			if err != nil {
				return model.Response{}, fmt.Errorf("anthropic tool call %s: %w", toolBlock.Name, err)
			}

			args, err := model.ParseArgs(string(raw))
			if err != nil {
				return model.Response{}, fmt.Errorf("anthropic tool call %s: %w", toolBlock.Name, err)
			}

			msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{ID: toolBlock.ID, Name: toolBlock.Name, Args: args})
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return model.Response{
		ID:           resp.ID,
		Message:      msg,
		FinishReason: finishReason,
		Usage: &model.TokenUsage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
	}, nil
}

// buildMessages converts the conversation to Anthropic message format. Tool
// responses become tool_result blocks in a user message; consecutive results
// are grouped into one message.
func buildMessages(msgs []core.Message) []anthropic.MessageParam {
	var (
		messages    []anthropic.MessageParam
		toolResults []anthropic.ContentBlockParamUnion
	)

	flushResults := func() {
		if len(toolResults) > 0 {
			messages = append(messages, anthropic.NewUserMessage(toolResults...))
			toolResults = nil
		}
	}

	for _, msg := range msgs {
		switch v := msg.(type) {
		case core.SystemMessage:
			// Carried in params.System.
		case core.ToolMessage:
			toolResults = append(toolResults, anthropic.NewToolResultBlock(v.ToolCallID, v.Content, false))
		case core.HumanMessage:
			flushResults()

			if v.Content != "" {
				messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(v.Content)))
			}
		case core.AIMessage:
			flushResults()

			content := buildAssistantContent(v)
			if len(content) > 0 {
				messages = append(messages, anthropic.NewAssistantMessage(content...))
			}
		}
	}

	flushResults()

	return messages
}

// extractSystem joins request instructions and system messages into system blocks.
func extractSystem(req model.Request) []anthropic.TextBlockParam {
	var systemBlocks []anthropic.TextBlockParam

	if req.Instructions != "" {
		systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: req.Instructions})
	}

	for _, msg := range req.Messages {
		if sm, ok := msg.(core.SystemMessage); ok && sm.Content != "" {
			systemBlocks = append(systemBlocks, anthropic.TextBlockParam{Text: sm.Content})
		}
	}

	return systemBlocks
}

func buildAssistantContent(msg core.AIMessage) []anthropic.ContentBlockParamUnion {
	content := make([]anthropic.ContentBlockParamUnion, 0, len(msg.ToolCalls)+1)

	if msg.Content != "" {
		content = append(content, anthropic.NewTextBlock(msg.Content))
	}

	for _, tc := range msg.ToolCalls {
		input := tc.Args
		if input == nil {
			input = map[string]any{}
		}

		content = append(content, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
	}

	return content
}

// buildTools converts tool definitions to Anthropic tool format.
func buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if params := tool.Function.Parameters; params != nil {
			if properties, exists := params["properties"]; exists {
				inputSchema.Properties = properties
			}

			switch req := params["required"].(type) {
			case []string:
				inputSchema.Required = req
			case []any:
				for _, r := range req {
					if s, ok := r.(string); ok {
						inputSchema.Required = append(inputSchema.Required, s)
					}
				}
			}
		}

		param := anthropic.ToolUnionParamOfTool(inputSchema, tool.Function.Name)
		if param.OfTool != nil && tool.Function.Description != "" {
			param.OfTool.Description = anthropic.String(tool.Function.Description)
		}

		anthropicTools[i] = param
	}

	return anthropicTools
}

func toolChoice(tc model.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch tc.Mode {
	case model.ToolChoiceRequired:
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case model.ToolChoiceNamed:
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: tc.Name}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
