package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/router"
	"github.com/hupe1980/routemesh/ui"
)

// CallbackType defines the lifecycle points of a turn where callbacks run.
//
// Callbacks run synchronously. A callback returning an error aborts the turn
// (OnError and AfterTurn errors are logged instead, the turn already ended).
type CallbackType string

const (
	// CallbackBeforeTurn runs after the thread lock is taken, before routing.
	CallbackBeforeTurn CallbackType = "before_turn"

	// CallbackAfterRoute runs once the routing decision is known.
	CallbackAfterRoute CallbackType = "after_route"

	// CallbackOnPatch runs before a turn's patch is returned. Use it to
	// enforce invariants on what the workflow produced.
	CallbackOnPatch CallbackType = "on_patch"

	// CallbackOnInterrupt runs when a workflow suspends the turn.
	CallbackOnInterrupt CallbackType = "on_interrupt"

	// CallbackAfterTurn runs after a successful turn.
	CallbackAfterTurn CallbackType = "after_turn"

	// CallbackOnError runs when a turn fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries what a callback may inspect.
type CallbackContext struct {
	ThreadID string
	RunID    string

	// CallbackType indicates which lifecycle point triggered the callback.
	CallbackType CallbackType

	// State is the state the turn started from (plus the new human message).
	State core.ConversationState

	// Decision is set from CallbackAfterRoute on. Nil for resumes.
	Decision *router.Decision

	// Patch is the accumulated turn patch (CallbackOnPatch and later).
	Patch *core.Patch

	// NodePatches are the workflow's per-node patches in execution order
	// (CallbackOnPatch and later). State plus these, in order, rebuilds the
	// history each node saw.
	NodePatches []core.Patch

	// Interrupt is set for CallbackOnInterrupt.
	Interrupt *core.PendingInterrupt

	// Err is set for CallbackOnError.
	Err error

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback is a turn lifecycle hook.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a Callback.
//
// Example:
//
//	audit := NewFunctionCallback(CallbackAfterRoute,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("thread %s routed to %s", cc.ThreadID, cc.Decision.Route)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is a registry of callbacks by type. Callbacks of one type
// run in registration order; the first error stops the chain. It is safe for
// concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs the callbacks registered for callbackType.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}

	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// LoggingCallback forwards a one-line description of each lifecycle event to
// a logging function.
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the lifecycle event.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}

	route := ""
	if callbackCtx.Decision != nil {
		route = string(callbackCtx.Decision.Route)
	}

	c.logger(fmt.Sprintf("[%s] thread=%s run=%s route=%s", c.callbackType, callbackCtx.ThreadID, callbackCtx.RunID, route))

	return nil
}

// PatchValidationCallback validates a turn's patch before it is returned.
type PatchValidationCallback struct {
	validator func(state core.ConversationState, patch core.Patch) error
}

// NewPatchValidationCallback creates a validation callback.
func NewPatchValidationCallback(validator func(state core.ConversationState, patch core.Patch) error) *PatchValidationCallback {
	return &PatchValidationCallback{validator: validator}
}

// Type returns CallbackOnPatch.
func (c *PatchValidationCallback) Type() CallbackType {
	return CallbackOnPatch
}

// Execute runs the validator against the patch.
func (c *PatchValidationCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.validator == nil || callbackCtx.Patch == nil {
		return nil
	}

	return c.validator(callbackCtx.State, *callbackCtx.Patch)
}

// ValidateUIRefs checks, node by node, that every UI event referencing a tool
// call names a call of the most recent AI message as of that node. state is the
// history the workflow started from. It is registered by default.
func ValidateUIRefs(state core.ConversationState, nodes []core.Patch) error {
	msgs := slices.Clone(state.Messages)

	for i, p := range nodes {
		msgs = append(msgs, p.Messages...)

		if err := ui.CheckToolCallRefs(msgs, p.UI); err != nil {
			return fmt.Errorf("node patch %d: %w", i, err)
		}
	}

	return nil
}

// NewUIRefsCallback runs ValidateUIRefs on the turn's node patches.
func NewUIRefsCallback() *FunctionCallback {
	return NewFunctionCallback(CallbackOnPatch, func(_ context.Context, cc *CallbackContext) error {
		return ValidateUIRefs(cc.State, cc.NodePatches)
	})
}
