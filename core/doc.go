// Package core provides the foundational domain types shared by every routemesh
// component. It defines:
//
//   - Messages (a closed variant of human, ai, tool and system records)
//   - UIEvents and the ordered UIList they are merged into
//   - ConversationState and the Patch values workflow nodes produce
//   - The pure reducer (Apply) that folds a Patch into a state
//   - The tool-call protocol invariant and its validation
//   - The turn error taxonomy (configuration, classification, fetch, missing tool call)
//   - RunContext, the per-node execution scope
//
// The package has no knowledge of routing, workflows or providers; those live
// in router, flow, engine and workflow/*. Everything here is value-oriented so
// the checkpoint layer can snapshot, branch and replay states freely.
package core
