// Package checkpoint persists ConversationState snapshots per thread so a
// conversation can be resumed, inspected, replayed or branched.
//
// Every Put appends a new Checkpoint whose ParentID links to the previous
// head of the thread. History returns the chain oldest first; Branch copies a
// snapshot into the head of a fresh thread.
//
// Two backends are provided:
//
//   - MemoryStore for tests and single-process use
//   - SQLiteStore for durable local storage
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/hupe1980/routemesh/core"
)

// ErrNotFound is returned when a thread or checkpoint does not exist.
var ErrNotFound = errors.New("checkpoint not found")

// Checkpoint is an immutable snapshot of a thread's state.
type Checkpoint struct {
	ID        string
	ThreadID  string
	ParentID  string // empty for the first checkpoint of a thread
	State     core.ConversationState
	CreatedAt time.Time
}

// Store persists checkpoints.
type Store interface {
	// Put records state as the new head of threadID.
	Put(ctx context.Context, threadID string, state core.ConversationState) (Checkpoint, error)
	// Latest returns the head of threadID.
	Latest(ctx context.Context, threadID string) (Checkpoint, error)
	// Get returns a checkpoint by id.
	Get(ctx context.Context, id string) (Checkpoint, error)
	// History lists the checkpoints of threadID, oldest first.
	History(ctx context.Context, threadID string) ([]Checkpoint, error)
	// Branch copies checkpoint id into the head of newThreadID.
	Branch(ctx context.Context, id, newThreadID string) (Checkpoint, error)
}

// Options configure a store.
type Options struct {
	// Now stamps CreatedAt. Defaults to time.Now.
	Now func() time.Time
}

func defaultOptions() Options {
	return Options{Now: time.Now}
}

// LoadOrNew returns the latest state of threadID or a fresh state when the
// thread has no checkpoints yet.
func LoadOrNew(ctx context.Context, s Store, threadID string) (core.ConversationState, error) {
	cp, err := s.Latest(ctx, threadID)
	if errors.Is(err, ErrNotFound) {
		return core.NewConversationState(threadID), nil
	}

	if err != nil {
		return core.ConversationState{}, err
	}

	return cp.State, nil
}

// rethread returns a copy of state owned by threadID.
func rethread(state core.ConversationState, threadID string) core.ConversationState {
	c := state.Clone()
	c.ThreadID = threadID

	return c
}
