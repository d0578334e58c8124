package checkpoint

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/routemesh/core"
)

// MemoryStore keeps checkpoints in a process local map. It is safe for
// concurrent access. States are cloned on the way in and on the way out so
// callers can never mutate a stored snapshot.
type MemoryStore struct {
	mu      sync.RWMutex
	opts    Options
	byID    map[string]Checkpoint
	threads map[string][]string // thread id -> checkpoint ids, oldest first
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore(optFns ...func(o *Options)) *MemoryStore {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &MemoryStore{
		opts:    opts,
		byID:    map[string]Checkpoint{},
		threads: map[string][]string{},
	}
}

// Put implements Store.
func (s *MemoryStore) Put(_ context.Context, threadID string, state core.ConversationState) (Checkpoint, error) {
	if threadID == "" {
		return Checkpoint{}, fmt.Errorf("put checkpoint: empty thread id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendLocked(threadID, state), nil
}

// Latest implements Store.
func (s *MemoryStore) Latest(_ context.Context, threadID string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.threads[threadID]
	if len(ids) == 0 {
		return Checkpoint{}, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}

	return clone(s.byID[ids[len(ids)-1]]), nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, id string) (Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.byID[id]
	if !ok {
		return Checkpoint{}, fmt.Errorf("checkpoint %s: %w", id, ErrNotFound)
	}

	return clone(cp), nil
}

// History implements Store.
func (s *MemoryStore) History(_ context.Context, threadID string) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.threads[threadID]
	if len(ids) == 0 {
		return nil, fmt.Errorf("thread %s: %w", threadID, ErrNotFound)
	}

	out := make([]Checkpoint, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(s.byID[id]))
	}

	return out, nil
}

// Branch implements Store.
func (s *MemoryStore) Branch(_ context.Context, id, newThreadID string) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src, ok := s.byID[id]
	if !ok {
		return Checkpoint{}, fmt.Errorf("checkpoint %s: %w", id, ErrNotFound)
	}

	if len(s.threads[newThreadID]) > 0 {
		return Checkpoint{}, fmt.Errorf("branch into %s: thread already exists", newThreadID)
	}

	return s.appendLocked(newThreadID, rethread(src.State, newThreadID)), nil
}

// appendLocked stores a new head; caller must hold the write lock.
func (s *MemoryStore) appendLocked(threadID string, state core.ConversationState) Checkpoint {
	cp := Checkpoint{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		State:     state.Clone(),
		CreatedAt: s.opts.Now(),
	}

	if ids := s.threads[threadID]; len(ids) > 0 {
		cp.ParentID = ids[len(ids)-1]
	}

	s.byID[cp.ID] = cp
	s.threads[threadID] = append(s.threads[threadID], cp.ID)

	return clone(cp)
}

func clone(cp Checkpoint) Checkpoint {
	cp.State = cp.State.Clone()
	return cp
}
