package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/flow"
	"github.com/hupe1980/routemesh/logging"
	"github.com/hupe1980/routemesh/metrics"
	"github.com/hupe1980/routemesh/router"
	"github.com/hupe1980/routemesh/ui"
)

var (
	// ErrTurnInProgress is returned when a thread already has a running turn.
	ErrTurnInProgress = errors.New("a turn is already in progress for this thread")

	// ErrNoPendingInterrupt is returned by Resume when nothing is suspended.
	ErrNoPendingInterrupt = errors.New("no pending interrupt to resume")
)

// Workflow is a dispatch target. *flow.Graph implements it.
type Workflow interface {
	Name() string
	Run(rc *core.RunContext) (flow.Outcome, error)
	Resume(rc *core.RunContext, node string, value any) (flow.Outcome, error)
}

// Router classifies the latest message of a conversation.
type Router interface {
	Route(ctx context.Context, msgs []core.Message) (router.Decision, error)
}

// Config defines tuning parameters of the engine.
type Config struct {
	// MaxSteps bounds node executions per turn. 0 means unlimited.
	MaxSteps int
}

// DefaultConfig provides the default configuration.
var DefaultConfig = Config{
	MaxSteps: 50,
}

// Options configures an Engine.
type Options struct {
	Config Config

	// Sink receives each turn's UI events. Publishing errors are logged and
	// do not fail the turn.
	Sink ui.Sink

	// Metrics records turn metrics; nil disables them.
	Metrics *metrics.Metrics

	// Callbacks are run at the turn lifecycle points.
	Callbacks *CallbackManager

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Now is the clock handed to workflows.
	Now func() time.Time
}

// Engine routes human turns to workflows. It is safe for concurrent use
// across threads; within one thread, turns are exclusive.
type Engine struct {
	router    Router
	workflows map[router.Route]Workflow
	opts      Options

	mu     sync.Mutex
	active map[string]struct{} // threads with a running turn
}

// TurnResult is the outcome of a Turn or Resume.
type TurnResult struct {
	RunID string

	// Decision is the routing decision. Resumes carry the suspended
	// workflow's route and no fallback.
	Decision router.Decision

	// Patch holds everything the turn produced. On error it holds what the
	// nodes that completed before the failure produced.
	Patch core.Patch

	// State is the input state with Patch applied.
	State core.ConversationState

	// Interrupted reports that the workflow suspended waiting for a human
	// decision; Interrupt describes it.
	Interrupted bool
	Interrupt   *core.PendingInterrupt

	// Steps lists the executed nodes.
	Steps []string
}

// New creates an Engine. workflows must contain a generalInput entry; routes
// without an entry dispatch to it.
func New(r Router, workflows map[router.Route]Workflow, optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		Config:    DefaultConfig,
		Sink:      ui.Discard,
		Callbacks: NewCallbackManager(),
		Logger:    logging.NoOpLogger{},
		Now:       time.Now,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if _, ok := workflows[router.GeneralInput]; !ok {
		return nil, fmt.Errorf("dispatch table has no %s workflow", router.GeneralInput)
	}

	table := make(map[router.Route]Workflow, len(workflows))
	for route, wf := range workflows {
		if !route.Valid() {
			return nil, fmt.Errorf("dispatch table: unknown route %q", route)
		}

		if v, ok := wf.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return nil, err
			}
		}

		table[route] = wf
	}

	opts.Callbacks.RegisterCallback(NewUIRefsCallback())

	return &Engine{
		router:    r,
		workflows: table,
		opts:      opts,
		active:    map[string]struct{}{},
	}, nil
}

// Dispatch returns the workflow for route, or generalInput.
func (e *Engine) Dispatch(route router.Route) Workflow {
	if wf, ok := e.workflows[route]; ok {
		return wf
	}

	return e.workflows[router.GeneralInput]
}

func (e *Engine) acquire(threadID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, busy := e.active[threadID]; busy {
		return ErrTurnInProgress
	}

	e.active[threadID] = struct{}{}

	return nil
}

func (e *Engine) release(threadID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.active, threadID)
}

func (e *Engine) runContext(ctx context.Context, state core.ConversationState, runID string, logger logging.Logger) *core.RunContext {
	return core.NewRunContext(ctx, state.ThreadID, runID, state, core.NewStepLimiter(e.opts.Config.MaxSteps), e.opts.Now, logger)
}

// Turn processes the human message msg on the thread described by state.
func (e *Engine) Turn(ctx context.Context, state core.ConversationState, msg core.HumanMessage) (*TurnResult, error) {
	if err := e.acquire(state.ThreadID); err != nil {
		return nil, err
	}
	defer e.release(state.ThreadID)

	start := e.opts.Now()
	defer e.opts.Metrics.TurnStarted()()

	runID := uuid.NewString()
	logger := logging.ForThread(e.opts.Logger, state.ThreadID, runID)
	res := &TurnResult{RunID: runID, State: state}

	cc := &CallbackContext{ThreadID: state.ThreadID, RunID: runID, State: state, Metadata: map[string]any{}}

	fail := func(route string, err error) (*TurnResult, error) {
		res.State = core.Apply(state, res.Patch)
		cc.Err = err

		if cbErr := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnError, cc); cbErr != nil {
			logger.Warn("turn.callback.failed", "error", cbErr.Error())
		}

		e.opts.Metrics.ObserveTurn(route, metrics.OutcomeFailed, e.opts.Now().Sub(start))
		logTurn(logger, route, len(res.Steps), e.opts.Now().Sub(start), err)

		return res, err
	}

	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackBeforeTurn, cc); err != nil {
		return fail("", err)
	}

	working := state

	// A new message while a decision is pending stops the suspended workflow.
	if state.Pending != nil {
		patch := e.terminatePending(ctx, working, runID, logger)
		res.Patch = res.Patch.Merge(patch)
		working = core.Apply(working, patch)
	}

	if msg.ID == "" {
		msg.ID = core.NewID()
	}

	res.Patch = res.Patch.Merge(core.Patch{Messages: []core.Message{msg}})
	working = core.Apply(working, core.Patch{Messages: []core.Message{msg}})
	cc.State = working

	if err := core.ValidateToolProtocol(working.Messages, false); err != nil {
		return fail("", fmt.Errorf("history rejected before routing: %w", err))
	}

	decision, err := e.router.Route(ctx, working.Messages)
	if err != nil {
		return fail("", err)
	}

	if decision.Fallback {
		logger.Warn("turn.route.fallback", "route", string(decision.Route), "reason", decision.Reason)
	}

	res.Decision = decision
	cc.Decision = &decision
	e.opts.Metrics.ObserveDecision(string(decision.Route), decision.Fallback)

	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackAfterRoute, cc); err != nil {
		return fail(string(decision.Route), err)
	}

	routePatch := core.Patch{Route: core.StringPtr(string(decision.Route))}
	res.Patch = res.Patch.Merge(routePatch)
	working = core.Apply(working, routePatch)

	wf := e.Dispatch(decision.Route)
	rc := e.runContext(ctx, working, runID, logger)
	rc.Routing = core.Routing{Route: string(decision.Route), Fallback: decision.Fallback, Reason: decision.Reason}

	logger.Info("turn.dispatch", "route", string(decision.Route), "workflow", wf.Name(), "fallback", decision.Fallback)

	outcome, runErr := wf.Run(rc)

	return e.finish(ctx, res, cc, outcome, runErr, string(decision.Route), start, logger, fail)
}

// Resume continues the workflow suspended on the thread with value (for
// open-code, a core.ResumeValue). Resuming does not route.
func (e *Engine) Resume(ctx context.Context, state core.ConversationState, value any) (*TurnResult, error) {
	pending := state.Pending
	if pending == nil {
		return nil, ErrNoPendingInterrupt
	}

	if err := e.acquire(state.ThreadID); err != nil {
		return nil, err
	}
	defer e.release(state.ThreadID)

	start := e.opts.Now()
	defer e.opts.Metrics.TurnStarted()()

	runID := uuid.NewString()
	logger := logging.ForThread(e.opts.Logger, state.ThreadID, runID)
	route := router.Route(pending.Workflow)
	res := &TurnResult{RunID: runID, State: state, Decision: router.Decision{Route: route, Reason: "resume"}}
	cc := &CallbackContext{ThreadID: state.ThreadID, RunID: runID, State: state, Metadata: map[string]any{"resume": value}}

	fail := func(route string, err error) (*TurnResult, error) {
		res.State = core.Apply(state, res.Patch)
		cc.Err = err

		if cbErr := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnError, cc); cbErr != nil {
			logger.Warn("turn.callback.failed", "error", cbErr.Error())
		}

		e.opts.Metrics.ObserveTurn(route, metrics.OutcomeFailed, e.opts.Now().Sub(start))
		logTurn(logger, route, len(res.Steps), e.opts.Now().Sub(start), err)

		return res, err
	}

	wf, ok := e.workflows[route]
	if !ok {
		return fail(pending.Workflow, fmt.Errorf("pending interrupt names unknown workflow %q", pending.Workflow))
	}

	e.opts.Metrics.ObserveResume(pending.Workflow, resumeAction(value))
	logger.Info("turn.resume", "workflow", pending.Workflow, "node", pending.Node, "action", resumeAction(value))

	outcome, runErr := wf.Resume(e.runContext(ctx, state, runID, logger), pending.Node, value)

	return e.finish(ctx, res, cc, outcome, runErr, pending.Workflow, start, logger, fail)
}

// finish folds a workflow outcome into the result, runs the patch callbacks
// and publishes UI events.
func (e *Engine) finish(
	ctx context.Context,
	res *TurnResult,
	cc *CallbackContext,
	outcome flow.Outcome,
	runErr error,
	route string,
	start time.Time,
	logger logging.Logger,
	fail func(string, error) (*TurnResult, error),
) (*TurnResult, error) {
	res.Patch = res.Patch.Merge(outcome.Patch)
	res.Patch.Timestamp = e.opts.Now()
	res.Steps = outcome.Steps

	if runErr != nil {
		return fail(route, runErr)
	}

	cc.Patch = &res.Patch
	cc.NodePatches = outcome.Patches
	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnPatch, cc); err != nil {
		return fail(route, err)
	}

	res.State = core.Apply(res.State, res.Patch)

	outcomeLabel := metrics.OutcomeCompleted
	if outcome.Interrupt != nil {
		res.Interrupted = true
		res.Interrupt = outcome.Interrupt
		outcomeLabel = metrics.OutcomeInterrupted
		cc.Interrupt = outcome.Interrupt

		if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackOnInterrupt, cc); err != nil {
			logger.Warn("turn.callback.failed", "error", err.Error())
		}
	}

	if len(res.Patch.UI) > 0 {
		if err := e.opts.Sink.Publish(ctx, res.State.ThreadID, res.Patch.UI); err != nil {
			logger.Warn("turn.ui.publish_failed", "events", len(res.Patch.UI), "error", err.Error())
		}

		e.opts.Metrics.ObserveUIEvents(res.Patch.UI)
	}

	if err := e.opts.Callbacks.ExecuteCallbacks(ctx, CallbackAfterTurn, cc); err != nil {
		logger.Warn("turn.callback.failed", "error", err.Error())
	}

	dur := e.opts.Now().Sub(start)
	e.opts.Metrics.ObserveTurn(route, outcomeLabel, dur)
	logTurn(logger, route, len(res.Steps), dur, nil)

	return res, nil
}

// terminatePending stops the suspended workflow through its own resume path.
// If that fails the pending call is answered directly so the history stays
// valid.
func (e *Engine) terminatePending(ctx context.Context, state core.ConversationState, runID string, logger logging.Logger) core.Patch {
	pending := state.Pending
	stop := core.ResumeValue{Action: core.ResumeTerminate}

	if wf, ok := e.workflows[router.Route(pending.Workflow)]; ok {
		outcome, err := wf.Resume(e.runContext(ctx, state, runID, logger), pending.Node, stop)
		if err == nil && outcome.Interrupt == nil {
			logger.Info("turn.interrupt.terminated", "workflow", pending.Workflow, "tool_call_id", pending.ToolCallID)
			e.opts.Metrics.ObserveResume(pending.Workflow, string(core.ResumeTerminate))

			return outcome.Patch.Merge(core.Patch{ClearPending: true})
		}

		if err != nil {
			logger.Warn("turn.interrupt.terminate_failed", "workflow", pending.Workflow, "error", err.Error())
		}
	}

	patch := core.Patch{ClearPending: true}

	for _, v := range core.UnansweredToolCalls(state.Messages) {
		if v.ToolCallID == pending.ToolCallID {
			patch.Messages = append(patch.Messages, core.ToolMessage{
				ID:         core.NewID(),
				ToolCallID: v.ToolCallID,
				Name:       v.ToolName,
				Content:    "stopped",
			})
		}
	}

	return patch
}

func resumeAction(value any) string {
	switch v := value.(type) {
	case core.ResumeValue:
		return string(v.Action)
	case *core.ResumeValue:
		if v != nil {
			return string(v.Action)
		}
	}

	return "custom"
}

func logTurn(logger logging.Logger, route string, steps int, dur time.Duration, err error) {
	if l, ok := logger.(interface {
		LogTurn(route string, steps int, dur time.Duration, success bool, err error)
	}); ok {
		l.LogTurn(route, steps, dur, err == nil, err)
		return
	}

	if err != nil {
		logger.Error("turn.failed", "route", route, "steps", steps, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}

	logger.Info("turn.completed", "route", route, "steps", steps, "duration_ms", dur.Milliseconds())
}
