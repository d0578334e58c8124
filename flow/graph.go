package flow

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/routemesh/core"
)

// Graph wires nodes of one workflow.
type Graph struct {
	name  string
	nodes map[string]Node
	edges map[string]string
	entry func(state core.ConversationState) string
}

// NewGraph creates an empty graph.
func NewGraph(name string) *Graph {
	return &Graph{
		name:  name,
		nodes: map[string]Node{},
		edges: map[string]string{},
	}
}

// Name returns the workflow name.
func (g *Graph) Name() string { return g.name }

// AddNode registers n (chainable).
func (g *Graph) AddNode(n Node) *Graph {
	g.nodes[n.Name()] = n
	return g
}

// AddEdge sets the static successor of from (chainable).
func (g *Graph) AddEdge(from, to string) *Graph {
	g.edges[from] = to
	return g
}

// SetEntry makes node the unconditional entry point (chainable).
func (g *Graph) SetEntry(node string) *Graph {
	g.entry = func(core.ConversationState) string { return node }
	return g
}

// SetConditionalEntry selects the entry node from the incoming state (chainable).
func (g *Graph) SetConditionalEntry(fn func(state core.ConversationState) string) *Graph {
	g.entry = fn
	return g
}

// Validate checks that an entry exists and all edges point at known nodes.
func (g *Graph) Validate() error {
	if g.entry == nil {
		return fmt.Errorf("workflow %s: no entry node", g.name)
	}

	for from, to := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("workflow %s: edge from unknown node %s", g.name, from)
		}

		if _, ok := g.nodes[to]; !ok && to != END {
			return fmt.Errorf("workflow %s: edge to unknown node %s", g.name, to)
		}
	}

	return nil
}

// Run executes the graph from its entry node.
func (g *Graph) Run(rc *core.RunContext) (Outcome, error) {
	if g.entry == nil {
		return Outcome{State: rc.State}, fmt.Errorf("workflow %s: no entry node", g.name)
	}

	return g.loop(rc, g.entry(rc.State), nil)
}

// Resume continues a suspended run at node with value.
func (g *Graph) Resume(rc *core.RunContext, node string, value any) (Outcome, error) {
	n, ok := g.nodes[node]
	if !ok {
		return Outcome{State: rc.State}, fmt.Errorf("workflow %s: unknown node %s", g.name, node)
	}

	r, ok := n.(Resumer)
	if !ok {
		return Outcome{State: rc.State}, &NodeError{Workflow: g.name, Node: node, Err: ErrNotResumable}
	}

	first := func(nrc *core.RunContext) (Result, error) { return r.Resume(nrc, value) }

	return g.loop(rc, node, first)
}

// loop drives nodes until END or an interrupt. When first is set it replaces
// the Run of the start node.
func (g *Graph) loop(rc *core.RunContext, start string, first func(*core.RunContext) (Result, error)) (Outcome, error) {
	out := Outcome{State: rc.State}
	current := start

	var input any

	for current != END {
		n, ok := g.nodes[current]
		if !ok {
			return out, fmt.Errorf("workflow %s: unknown node %s", g.name, current)
		}

		if err := rc.Err(); err != nil {
			return out, &NodeError{Workflow: g.name, Node: current, Err: err}
		}

		if err := rc.Limiter.Increment(); err != nil {
			return out, &NodeError{Workflow: g.name, Node: current, Err: err}
		}

		nrc := rc.ForNode(g.name, current, out.State)
		nrc.Input, input = input, nil

		run := n.Run
		if first != nil {
			run, first = first, nil
		}

		rc.LogDebug("flow.node.start", "workflow", g.name, "node", current)
		began := time.Now()

		res, err := safeRun(run, nrc)
		if err != nil {
			rc.LogError("flow.node.error", "workflow", g.name, "node", current, "duration_ms", time.Since(began).Milliseconds(), "error", err.Error())
			return out, &NodeError{Workflow: g.name, Node: current, Err: err}
		}

		rc.LogDebug("flow.node.complete", "workflow", g.name, "node", current, "duration_ms", time.Since(began).Milliseconds())

		out.Patch = out.Patch.Merge(res.Patch)
		out.State = core.Apply(out.State, res.Patch)
		out.Steps = append(out.Steps, current)
		out.Patches = append(out.Patches, res.Patch)

		if res.Interrupt != nil {
			pending := *res.Interrupt
			if pending.Workflow == "" {
				pending.Workflow = g.name
			}

			if pending.Node == "" {
				pending.Node = current
			}

			suspend := core.Patch{Pending: &pending}
			out.Patch = out.Patch.Merge(suspend)
			out.State = core.Apply(out.State, suspend)
			out.Interrupt = &pending

			rc.LogInfo("flow.interrupt", "workflow", g.name, "node", pending.Node, "tool_call_id", pending.ToolCallID)

			return out, nil
		}

		input = res.Input

		current = res.Next
		if current == "" {
			current = g.edges[n.Name()]
		}

		if current == "" {
			current = END
		}
	}

	return out, nil
}

func safeRun(run func(*core.RunContext) (Result, error), rc *core.RunContext) (res Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return run(rc)
}
