package core

import (
	"context"
	"time"

	"github.com/hupe1980/routemesh/logging"
)

// RunContext carries execution state & helpers for one node execution.
// It aggregates:
//   - The ambient cancellation Context
//   - Identifiers (ThreadID, RunID, Workflow, Node)
//   - A working ConversationState snapshot (read-only for the node; changes
//     are returned as a Patch)
//   - The turn's StepLimiter
//   - A clock, so date arithmetic is deterministic under test
//
// A RunContext is owned by the single active turn; nodes must not retain it
// after they return.
type RunContext struct {
	Context         context.Context
	ThreadID, RunID string
	Workflow, Node  string
	State           ConversationState
	Limiter         *StepLimiter
	Routing         Routing
	Input           any // handed over by the previous node
	now             func() time.Time
	logger          logging.Logger
}

// Routing describes how the current turn was dispatched.
type Routing struct {
	Route    string
	Fallback bool
	Reason   string
}

// NewRunContext constructs a RunContext for a turn. A nil now defaults to
// time.Now; a nil limiter allows unlimited steps.
func NewRunContext(
	ctx context.Context,
	threadID, runID string,
	state ConversationState,
	limiter *StepLimiter,
	now func() time.Time,
	logger logging.Logger,
) *RunContext {
	if now == nil {
		now = time.Now
	}

	if limiter == nil {
		limiter = NewStepLimiter(0)
	}

	return &RunContext{
		Context:  ctx,
		ThreadID: threadID,
		RunID:    runID,
		State:    state,
		Limiter:  limiter,
		now:      now,
		logger:   logger,
	}
}

// Logger returns the turn's logger, never nil.
func (rc *RunContext) Logger() logging.Logger {
	if rc.logger == nil {
		return logging.NoOpLogger{}
	}

	return rc.logger
}

// LogDebug, LogInfo, LogWarn and LogError log through the turn's logger,
// tagging entries with the executing workflow and node.
func (rc *RunContext) LogDebug(msg string, args ...any) { rc.Logger().Debug(msg, rc.scope(args)...) }

func (rc *RunContext) LogInfo(msg string, args ...any) { rc.Logger().Info(msg, rc.scope(args)...) }

func (rc *RunContext) LogWarn(msg string, args ...any) { rc.Logger().Warn(msg, rc.scope(args)...) }

func (rc *RunContext) LogError(msg string, args ...any) { rc.Logger().Error(msg, rc.scope(args)...) }

func (rc *RunContext) scope(args []any) []any {
	if rc.Node == "" {
		return args
	}

	return append([]any{"workflow", rc.Workflow, "node", rc.Node}, args...)
}

// Done returns a channel closed when the underlying context is cancelled.
func (rc *RunContext) Done() <-chan struct{} { return rc.Context.Done() }

// Err returns the cancellation error (if any) from the underlying context.
func (rc *RunContext) Err() error { return rc.Context.Err() }

// Now returns the current time according to the turn's clock.
func (rc *RunContext) Now() time.Time { return rc.now() }

// Messages returns the working message history.
func (rc *RunContext) Messages() []Message { return rc.State.Messages }

// ForNode derives the context for executing node of workflow against state.
func (rc *RunContext) ForNode(workflow, node string, state ConversationState) *RunContext {
	c := *rc
	c.Workflow = workflow
	c.Node = node
	c.State = state
	c.Input = nil

	return &c
}

// WithContext returns a shallow copy bound to ctx.
func (rc *RunContext) WithContext(ctx context.Context) *RunContext {
	c := *rc
	c.Context = ctx

	return &c
}

// Sleep pauses for d or until the context is cancelled.
func (rc *RunContext) Sleep(d time.Duration) error {
	if d <= 0 {
		return nil
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-rc.Context.Done():
		return rc.Context.Err()
	case <-t.C:
		return nil
	}
}
