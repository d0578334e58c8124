// Package engine implements the turn orchestration layer for RouteMesh.
//
// The Engine owns the static dispatch table from routes to workflows and
// drives one turn at a time per conversation thread. A turn:
//
//  1. terminates any interrupt still pending on the thread,
//  2. appends the new human message and checks the tool-call protocol,
//  3. asks the router for a decision (falling back to generalInput),
//  4. runs the selected workflow to its end or to an interrupt,
//  5. publishes the turn's UI events and records metrics.
//
// The result is a core.Patch the caller applies to its copy of the state; the
// engine never stores conversation state itself.
//
// # Key Components
//
// Dispatch:
//   - Workflow interface satisfied by *flow.Graph
//   - DefaultWorkflows builds the table for all routes from one model
//   - Unknown routes dispatch to generalInput
//
// Concurrency:
//   - One turn per thread; a concurrent Turn or Resume on the same thread
//     fails fast with ErrTurnInProgress
//   - Different threads run in parallel
//
// Interrupts:
//   - A workflow may suspend a turn (TurnResult.Interrupted)
//   - Resume continues it at the suspended node without routing
//
// Callbacks:
//   - CallbackManager runs hooks before a turn, after routing, after a turn,
//     on interrupts, on errors and before a patch is returned
//
// # Usage
//
//	eng, err := engine.New(router.New(m), engine.DefaultWorkflows(m),
//	    func(o *engine.Options) { o.Logger = logger })
//	if err != nil {
//	    return err
//	}
//
//	res, err := eng.Turn(ctx, state, core.NewHumanMessage("What's AAPL's price?"))
//	if err != nil {
//	    return err
//	}
//	state = core.Apply(state, res.Patch)
package engine
