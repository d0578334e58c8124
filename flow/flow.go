// Package flow provides the node graph runtime workflows are built on.
//
// A Graph is a set of named nodes plus edges. Running a graph executes nodes
// one at a time against a working copy of the conversation state: each node
// returns a Result whose Patch is folded into the working state before the
// next node runs. A node chooses its successor (Result.Next), falls back to a
// static edge, or ends the run (END). A node may also suspend the run with an
// interrupt; the run is later continued by Resume at the suspended node.
//
// Node patches are atomic: a node that fails contributes nothing, while the
// patches of nodes that completed earlier in the same run are returned
// alongside the error.
package flow

import (
	"errors"
	"fmt"

	"github.com/hupe1980/routemesh/core"
)

// END terminates a run.
const END = "__end__"

// ErrNotResumable is returned when Resume targets a node that does not
// implement Resumer.
var ErrNotResumable = errors.New("node is not resumable")

// Result is what a node returns.
type Result struct {
	// Patch is folded into the working state.
	Patch core.Patch
	// Next names the successor; empty follows the static edge (or END).
	Next string
	// Interrupt, when set, suspends the run after Patch is applied.
	Interrupt *core.PendingInterrupt
	// Input is handed to the next node as RunContext.Input.
	Input any
}

// Node is a single step of a workflow.
type Node interface {
	Name() string
	Run(rc *core.RunContext) (Result, error)
}

// Resumer is implemented by nodes that can continue a suspended run with a
// human decision.
type Resumer interface {
	Node
	Resume(rc *core.RunContext, value any) (Result, error)
}

type nodeFunc struct {
	name string
	fn   func(rc *core.RunContext) (Result, error)
}

func (n nodeFunc) Name() string                            { return n.name }
func (n nodeFunc) Run(rc *core.RunContext) (Result, error) { return n.fn(rc) }

// NewNode adapts a function to Node.
func NewNode(name string, fn func(rc *core.RunContext) (Result, error)) Node {
	return nodeFunc{name: name, fn: fn}
}

// Outcome summarises a run.
type Outcome struct {
	// Patch is the merge of all completed node patches, in order.
	Patch core.Patch
	// State is the working state after Patch.
	State core.ConversationState
	// Interrupt is set when the run suspended.
	Interrupt *core.PendingInterrupt
	// Steps lists the nodes that completed.
	Steps []string
	// Patches holds each completed node's own patch, aligned with Steps.
	Patches []core.Patch
}

// NodeError wraps a node failure with its location.
type NodeError struct {
	Workflow string
	Node     string
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s/%s: %v", e.Workflow, e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// PanicError is returned when a node panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (p *PanicError) Error() string { return fmt.Sprintf("panic recovered: %v", p.Value) }
