// Package router classifies the newest message of a conversation into
// exactly one workflow route.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/internal/util"
	"github.com/hupe1980/routemesh/logging"
	"github.com/hupe1980/routemesh/model"
	"github.com/hupe1980/routemesh/tool"
)

// Decision is the outcome of routing one turn. The router never writes it
// into conversation state; the dispatcher does.
type Decision struct {
	Route    Route
	Fallback bool   // true when classification failed and GeneralInput was substituted
	Reason   string // why a fallback happened
}

// Options configure the Router.
type Options struct {
	// Strict turns a failed classification into a fatal error instead of a
	// GeneralInput fallback.
	Strict bool
	// Instructions is the system prompt template. It receives .routes
	// (label: description lines) and .history (formatted prior messages).
	Instructions string
	Logger       logging.Logger
}

// DefaultInstructions is the routing prompt.
const DefaultInstructions = `You are a routing assistant. Decide which workflow should handle the user's latest message.

Available routes:
{{.routes}}

Only the latest message determines the route; earlier messages are context.
{{if .history}}
Conversation so far:
{{.history}}
{{end}}
Call the route tool with exactly one route.`

type routeArgs struct {
	Route string `json:"route" description:"The workflow that should handle the latest message"`
}

var routeTool = tool.New("route", "Select the workflow for the latest message", routeArgs{}).WithEnum("route", Names())

// Router classifies conversations. It holds no per-conversation state and is
// safe for concurrent use.
type Router struct {
	model model.Model
	opts  Options
}

// New creates a Router backed by m.
func New(m model.Model, optFns ...func(o *Options)) *Router {
	opts := Options{
		Instructions: DefaultInstructions,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Router{model: m, opts: opts}
}

// Route classifies the last message of msgs. An empty history is always a
// *core.ClassificationError. Provider failures are returned as is.
func (r *Router) Route(ctx context.Context, msgs []core.Message) (Decision, error) {
	prior, last, ok := core.SplitLast(msgs)
	if !ok {
		return Decision{}, &core.ClassificationError{Reason: "empty conversation"}
	}

	instructions, err := util.RenderTemplate(r.opts.Instructions, map[string]any{
		"routes":  formatRoutes(),
		"history": FormatHistory(prior),
	})
	if err != nil {
		return Decision{}, fmt.Errorf("render routing prompt: %w", err)
	}

	resp, err := model.Complete(ctx, r.model, model.Request{
		Instructions: instructions,
		Messages:     []core.Message{asHuman(last)},
		Tools:        []model.ToolDefinition{routeTool.Model()},
		ToolChoice:   model.ForceTool(routeTool.Name),
	})
	if err != nil {
		return Decision{}, fmt.Errorf("routing completion: %w", err)
	}

	route, cerr := decide(resp.Message)
	if cerr == nil {
		r.opts.Logger.Debug("router.decision", "route", string(route))
		return Decision{Route: route}, nil
	}

	if r.opts.Strict {
		return Decision{}, cerr
	}

	r.opts.Logger.Warn("router.fallback", "route", string(GeneralInput), "error", cerr.Error())

	return Decision{Route: GeneralInput, Fallback: true, Reason: cerr.Error()}, nil
}

func decide(msg core.AIMessage) (Route, error) {
	for _, call := range msg.ToolCalls {
		if call.Name != routeTool.Name {
			continue
		}

		label, _ := call.Args["route"].(string)
		if route, ok := ParseRoute(label); ok {
			return route, nil
		}

		return "", &core.ClassificationError{Reason: fmt.Sprintf("unknown route %q", label)}
	}

	// Some providers answer in text despite the forced tool.
	if route, ok := ParseRoute(msg.Content); ok {
		return route, nil
	}

	return "", &core.ClassificationError{Reason: "no route tool call", Err: errors.New("completion returned no structured decision")}
}

func asHuman(m core.Message) core.Message {
	if h, ok := m.(core.HumanMessage); ok {
		return h
	}

	return core.HumanMessage{ID: m.MessageID(), Content: m.Text()}
}

func formatRoutes() string {
	var b strings.Builder
	for _, r := range routes {
		fmt.Fprintf(&b, "- %s: %s\n", r, r.Description())
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// FormatHistory renders messages as a plain transcript for prompts.
func FormatHistory(msgs []core.Message) string {
	var b strings.Builder

	for _, m := range msgs {
		switch v := m.(type) {
		case core.HumanMessage:
			fmt.Fprintf(&b, "Human: %s\n", v.Content)
		case core.AIMessage:
			if v.Content != "" {
				fmt.Fprintf(&b, "AI: %s\n", v.Content)
			}

			for _, tc := range v.ToolCalls {
				fmt.Fprintf(&b, "AI called %s with %s\n", tc.Name, model.EncodeArgs(tc.Args))
			}
		case core.ToolMessage:
			fmt.Fprintf(&b, "Tool %s: %s\n", v.Name, v.Content)
		case core.SystemMessage:
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}
