// Package routemesh provides a high-level façade over the turn engine and
// its services (checkpointing, UI sinks, metrics and logging). Most
// applications interact with this package by:
//  1. Creating a Mesh via New() with a completion model (optionally
//     overriding the default in-memory checkpoint store)
//  2. Sending human messages with Turn
//  3. Answering open-code approval requests with Resume
//
// The façade loads the latest checkpoint of a thread, runs the turn and
// stores the resulting state as a new checkpoint. All defaults are safe for
// local development and testing; production deployments typically supply a
// durable checkpoint store and a structured logger.
package routemesh

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/routemesh/checkpoint"
	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/engine"
	"github.com/hupe1980/routemesh/logging"
	"github.com/hupe1980/routemesh/metrics"
	"github.com/hupe1980/routemesh/model"
	"github.com/hupe1980/routemesh/router"
	"github.com/hupe1980/routemesh/ui"
)

// Options configures the Mesh instance.
type Options struct {
	// EngineConfig bounds node executions per turn.
	EngineConfig engine.Config

	// StrictRouting makes a failed classification fail the turn instead of
	// falling back to the general workflow.
	StrictRouting bool

	// MaxConcurrentTurns limits turns running at the same time across all
	// threads. 0 means unlimited.
	MaxConcurrentTurns int64

	// Workflows tunes the built-in workflows.
	Workflows engine.WorkflowOptions

	// Store persists thread state (defaults to an in-memory store).
	Store checkpoint.Store

	// Sink receives UI events of every turn (defaults to discarding them).
	Sink ui.Sink

	// Metrics records turn metrics; nil disables them.
	Metrics *metrics.Metrics

	// Callbacks run at turn lifecycle points.
	Callbacks *engine.CallbackManager

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// Mesh is the high-level façade aggregating the engine and its services.
type Mesh struct {
	opts   Options
	engine *engine.Engine
	sem    *semaphore.Weighted

	mu   sync.Mutex
	busy map[string]struct{}
}

// New creates a Mesh whose router and workflows share the completion model m.
func New(m model.Model, optFns ...func(o *Options)) (*Mesh, error) {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Workflows:    engine.WorkflowOptions{PizzaFindDelay: -1, PizzaOrderDelay: -1},
		Store:        checkpoint.NewMemoryStore(),
		Sink:         ui.Discard,
		Callbacks:    engine.NewCallbackManager(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Workflows.Logger == nil {
		opts.Workflows.Logger = opts.Logger
	}

	r := router.New(m, func(o *router.Options) {
		o.Strict = opts.StrictRouting
		o.Logger = opts.Logger
	})

	wfOpts := opts.Workflows

	eng, err := engine.New(r, engine.DefaultWorkflows(m, func(o *engine.WorkflowOptions) { *o = wfOpts }), func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Sink = opts.Sink
		o.Metrics = opts.Metrics
		o.Callbacks = opts.Callbacks
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	mesh := &Mesh{opts: opts, engine: eng, busy: map[string]struct{}{}}
	if opts.MaxConcurrentTurns > 0 {
		mesh.sem = semaphore.NewWeighted(opts.MaxConcurrentTurns)
	}

	return mesh, nil
}

// Engine exposes the underlying engine.
func (m *Mesh) Engine() *engine.Engine { return m.engine }

// Store exposes the checkpoint store.
func (m *Mesh) Store() checkpoint.Store { return m.opts.Store }

// Turn sends text as a human message on threadID. The resulting state is
// checkpointed only when the turn succeeds.
func (m *Mesh) Turn(ctx context.Context, threadID, text string) (*engine.TurnResult, error) {
	return m.run(ctx, threadID, func(state core.ConversationState) (*engine.TurnResult, error) {
		return m.engine.Turn(ctx, state, core.NewHumanMessage(text))
	})
}

// Resume answers the pending interrupt of threadID with value.
func (m *Mesh) Resume(ctx context.Context, threadID string, value core.ResumeValue) (*engine.TurnResult, error) {
	return m.run(ctx, threadID, func(state core.ConversationState) (*engine.TurnResult, error) {
		return m.engine.Resume(ctx, state, value)
	})
}

// SetAutoAccept toggles automatic approval of proposed code changes.
func (m *Mesh) SetAutoAccept(ctx context.Context, threadID string, on bool) error {
	if err := m.lock(threadID); err != nil {
		return err
	}
	defer m.unlock(threadID)

	state, err := checkpoint.LoadOrNew(ctx, m.opts.Store, threadID)
	if err != nil {
		return err
	}

	if state.AutoAccept == on {
		return nil
	}

	state.AutoAccept = on

	_, err = m.opts.Store.Put(ctx, threadID, state)

	return err
}

// State returns the latest state of threadID (empty for unknown threads).
func (m *Mesh) State(ctx context.Context, threadID string) (core.ConversationState, error) {
	return checkpoint.LoadOrNew(ctx, m.opts.Store, threadID)
}

func (m *Mesh) run(ctx context.Context, threadID string, fn func(core.ConversationState) (*engine.TurnResult, error)) (*engine.TurnResult, error) {
	if m.sem != nil {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			return nil, err
		}
		defer m.sem.Release(1)
	}

	if err := m.lock(threadID); err != nil {
		return nil, err
	}
	defer m.unlock(threadID)

	state, err := checkpoint.LoadOrNew(ctx, m.opts.Store, threadID)
	if err != nil {
		return nil, fmt.Errorf("load thread %s: %w", threadID, err)
	}

	res, err := fn(state)
	if err != nil {
		return res, err
	}

	if _, err := m.opts.Store.Put(ctx, threadID, res.State); err != nil {
		return res, fmt.Errorf("checkpoint thread %s: %w", threadID, err)
	}

	return res, nil
}

// lock spans load, turn and checkpoint so a second turn never starts from a
// stale snapshot.
func (m *Mesh) lock(threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.busy[threadID]; ok {
		return engine.ErrTurnInProgress
	}

	m.busy[threadID] = struct{}{}

	return nil
}

func (m *Mesh) unlock(threadID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.busy, threadID)
}
