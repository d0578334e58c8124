// Package workflow holds the sub-workflows the engine dispatches to. Each
// sub-package builds a flow.Graph named after the router.Route it serves:
//
//   - general: the generalInput fallback reply
//   - stockbroker: price lookups, portfolio and purchase proposals
//   - tripplanner: trip extraction, relevance check and lodging/restaurant tools
//   - opencode: plan, propose, and approve file changes step by step
//   - pizza: find a store, then place an order
package workflow

