package ui

import (
	"context"
	"slices"
	"sync"

	"github.com/hupe1980/routemesh/core"
)

// Sink receives the UIEvents produced by a turn, in emission order.
type Sink interface {
	Publish(ctx context.Context, threadID string, events []core.UIEvent) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, threadID string, events []core.UIEvent) error

// Publish implements Sink.
func (f SinkFunc) Publish(ctx context.Context, threadID string, events []core.UIEvent) error {
	return f(ctx, threadID, events)
}

// Discard is a Sink that drops everything.
var Discard Sink = SinkFunc(func(context.Context, string, []core.UIEvent) error { return nil })

// MemorySink records published events per thread. Safe for concurrent use.
type MemorySink struct {
	mu     sync.RWMutex
	events map[string][]core.UIEvent
}

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{events: map[string][]core.UIEvent{}}
}

// Publish implements Sink.
func (s *MemorySink) Publish(_ context.Context, threadID string, events []core.UIEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[threadID] = append(s.events[threadID], events...)

	return nil
}

// Events returns a copy of the events published for threadID.
func (s *MemorySink) Events(threadID string) []core.UIEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.events[threadID])
}

// Multi fans out to several sinks, stopping at the first error.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(ctx context.Context, threadID string, events []core.UIEvent) error {
		for _, s := range sinks {
			if err := s.Publish(ctx, threadID, events); err != nil {
				return err
			}
		}

		return nil
	})
}
