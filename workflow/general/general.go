// Package general implements the generalInput workflow: a single plain reply.
package general

import (
	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/flow"
	"github.com/hupe1980/routemesh/model"
	"github.com/hupe1980/routemesh/router"
)

// NodeRespond is the only node.
const NodeRespond = "respond"

// DefaultInstructions is the system prompt for ordinary replies.
const DefaultInstructions = `You are a helpful assistant. You can also help users with stocks, trip planning, writing code, and ordering pizza. Reply to the user's latest message.`

// ClarifyInstructions is appended when routing could not classify the message.
const ClarifyInstructions = `The user's request could not be matched to one of your capabilities. Ask a short clarifying question about what they would like to do.`

// Options configure the workflow.
type Options struct {
	Instructions string
}

// New builds the general graph.
func New(m model.Model, optFns ...func(o *Options)) *flow.Graph {
	opts := Options{Instructions: DefaultInstructions}

	for _, fn := range optFns {
		fn(&opts)
	}

	respond := func(rc *core.RunContext) (flow.Result, error) {
		instructions := opts.Instructions
		if rc.Routing.Fallback {
			instructions += "\n\n" + ClarifyInstructions
		}

		msg, err := model.Call(rc, m, model.Request{
			Instructions: instructions,
			Messages:     rc.Messages(),
		})
		if err != nil {
			return flow.Result{}, err
		}

		// Tools are not offered here; drop any stray calls.
		reply := core.AIMessage{ID: msg.ID, Content: msg.Content}

		return flow.Result{Patch: core.Patch{Messages: []core.Message{reply}}}, nil
	}

	return flow.NewGraph(router.GeneralInput.String()).
		AddNode(flow.NewNode(NodeRespond, respond)).
		SetEntry(NodeRespond)
}
