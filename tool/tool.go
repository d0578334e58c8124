// Package tool implements the tool declaration and correlation subsystem: a
// node declares the tools a completion step may select, and the correlator
// pairs the calls the step returned with those declarations, validating
// arguments against the schema before any handler sees them.
package tool

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/internal/util"
	"github.com/hupe1980/routemesh/model"
)

// Definition declares a tool: its name, the description shown to the model
// and the JSON schema of its arguments.
type Definition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// New derives a Definition whose parameter schema is built from the struct
// type of args (json, description and enum tags are honoured).
//
// Example:
//
//	type priceArgs struct {
//	  Ticker string `json:"ticker" description:"The ticker symbol"`
//	}
//
//	stockPrice := tool.New("stock-price", "Look up a stock price", priceArgs{})
func New(name, description string, args any) Definition {
	return Definition{
		Name:        name,
		Description: description,
		Parameters:  util.CreateSchema(args),
	}
}

// WithEnum returns a copy whose property field is restricted to values.
func (d Definition) WithEnum(field string, values []string) Definition {
	params := maps.Clone(d.Parameters)
	if params == nil {
		params = map[string]any{"type": "object"}
	}

	props, _ := params["properties"].(map[string]any)
	props = maps.Clone(props)
	if props == nil {
		props = map[string]any{}
	}

	prop, _ := props[field].(map[string]any)
	prop = maps.Clone(prop)
	if prop == nil {
		prop = map[string]any{"type": "string"}
	}

	prop["enum"] = slices.Clone(values)
	props[field] = prop
	params["properties"] = props
	d.Parameters = params

	return d
}

// Model converts the definition into the provider-neutral model shape.
func (d Definition) Model() model.ToolDefinition {
	return model.ToolDefinition{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  d.Parameters,
		},
	}
}

// Validate checks args against the parameter schema.
func (d Definition) Validate(args map[string]any) error {
	if err := util.ValidateParameters(args, d.Parameters); err != nil {
		te := NewToolError(d.Name, fmt.Sprintf("parameter validation failed: %v", err), CodeValidation)
		te.Details = err

		return te
	}

	return nil
}

// Set is the ordered set of tools a node declares.
type Set []Definition

// NewSet creates a Set.
func NewSet(defs ...Definition) Set { return Set(defs) }

// Lookup returns the definition named name.
func (s Set) Lookup(name string) (Definition, bool) {
	for _, d := range s {
		if d.Name == name {
			return d, true
		}
	}

	return Definition{}, false
}

// Names returns the tool names in declaration order.
func (s Set) Names() []string {
	names := make([]string, 0, len(s))
	for _, d := range s {
		names = append(names, d.Name)
	}

	return names
}

// Model converts the set into model tool definitions.
func (s Set) Model() []model.ToolDefinition {
	defs := make([]model.ToolDefinition, 0, len(s))
	for _, d := range s {
		defs = append(defs, d.Model())
	}

	return defs
}

// ValidationError represents parameter validation errors with detailed information.
type ValidationError = util.ValidationError

// Error codes carried by ToolError.
const (
	CodeValidation = "VALIDATION_ERROR"
	CodeDecode     = "DECODE_ERROR"
	CodeUnknown    = "UNKNOWN_TOOL"
)

// ToolError represents errors that occur while correlating or decoding a tool call.
type ToolError struct {
	Tool    string `json:"tool"`              // Name of the tool that failed
	Message string `json:"message"`           // Error message
	Code    string `json:"code"`              // Error code for categorization
	Details any    `json:"details,omitempty"` // Additional error details
}

func (e *ToolError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("tool error [%s] in %s: %s", e.Code, e.Tool, e.Message)
	}

	return fmt.Sprintf("tool error in %s: %s", e.Tool, e.Message)
}

// NewToolError creates a new ToolError with the specified details.
func NewToolError(tool, message, code string) *ToolError {
	return &ToolError{
		Tool:    tool,
		Message: message,
		Code:    code,
	}
}

// Decode converts the call's arguments into dst (a pointer to a struct).
func Decode(call core.ToolCall, dst any) error {
	raw, err := json.Marshal(call.Args)
	if err != nil {
		return NewToolError(call.Name, err.Error(), CodeDecode)
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return NewToolError(call.Name, err.Error(), CodeDecode)
	}

	return nil
}

// Respond builds the ToolMessage answering call.
func Respond(call core.ToolCall, content string) core.ToolMessage {
	return core.NewToolMessage(call, content)
}

// RespondJSON builds the ToolMessage answering call with v encoded as JSON.
func RespondJSON(call core.ToolCall, v any) (core.ToolMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return core.ToolMessage{}, fmt.Errorf("encode response for %s: %w", call.Name, err)
	}

	return core.NewToolMessage(call, string(b)), nil
}

// Manufacture creates a synthetic tool call with a fresh id. Nodes use it when
// they, not a completion step, decide a call happened.
func Manufacture(name string, args map[string]any) core.ToolCall {
	return core.ToolCall{ID: core.NewID(), Name: name, Args: args}
}
