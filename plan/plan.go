// Package plan tracks the partition of a fixed master plan into executed,
// remaining and rejected steps.
package plan

import (
	"errors"
	"fmt"
	"slices"

	"github.com/hupe1980/routemesh/core"
)

// ErrUnknownItem is returned when a step is not part of the master plan.
var ErrUnknownItem = errors.New("plan item is not part of the master plan")

// ErrNotRemaining is returned when accepting or rejecting a step that is not
// in the remaining partition.
var ErrNotRemaining = errors.New("plan item is not remaining")

// Tracker validates and advances PlanState partitions against a master plan.
// Every state it returns keeps each partition in master order, and the three
// partitions together always cover the master plan exactly once.
type Tracker struct {
	master []string
	index  map[string]int
}

// New creates a Tracker. The master plan must not contain duplicates.
func New(master []string) (*Tracker, error) {
	index := make(map[string]int, len(master))
	for i, item := range master {
		if _, dup := index[item]; dup {
			return nil, fmt.Errorf("duplicate plan item %q", item)
		}

		index[item] = i
	}

	return &Tracker{master: slices.Clone(master), index: index}, nil
}

// Master returns a copy of the master plan.
func (t *Tracker) Master() []string { return slices.Clone(t.master) }

// Index returns the master position of item, or -1.
func (t *Tracker) Index(item string) int {
	if i, ok := t.index[item]; ok {
		return i
	}

	return -1
}

// Initial returns the state before any step ran: everything remaining.
func (t *Tracker) Initial() core.PlanState {
	return core.PlanState{
		ExecutedPlans:  []string{},
		RemainingPlans: slices.Clone(t.master),
		RejectedPlans:  []string{},
	}
}

// Validate checks that ps partitions the master plan.
func (t *Tracker) Validate(ps core.PlanState) error {
	seen := make(map[string]string, len(t.master))

	check := func(name string, items []string) error {
		last := -1
		for _, item := range items {
			i, ok := t.index[item]
			if !ok {
				return fmt.Errorf("%s: %w: %q", name, ErrUnknownItem, item)
			}

			if prev, dup := seen[item]; dup {
				return fmt.Errorf("plan item %q appears in both %s and %s", item, prev, name)
			}

			if i < last {
				return fmt.Errorf("%s: item %q is out of order", name, item)
			}

			seen[item] = name
			last = i
		}

		return nil
	}

	if err := check("executedPlans", ps.ExecutedPlans); err != nil {
		return err
	}

	if err := check("remainingPlans", ps.RemainingPlans); err != nil {
		return err
	}

	if err := check("rejectedPlans", ps.RejectedPlans); err != nil {
		return err
	}

	if len(seen) != len(t.master) {
		return fmt.Errorf("plan partitions cover %d of %d items", len(seen), len(t.master))
	}

	return nil
}

// Accept moves item from remaining to executed.
func (t *Tracker) Accept(ps core.PlanState, item string) (core.PlanState, error) {
	return t.move(ps, item, func(next *core.PlanState) *[]string { return &next.ExecutedPlans })
}

// Reject moves item from remaining to rejected.
func (t *Tracker) Reject(ps core.PlanState, item string) (core.PlanState, error) {
	return t.move(ps, item, func(next *core.PlanState) *[]string { return &next.RejectedPlans })
}

func (t *Tracker) move(ps core.PlanState, item string, target func(*core.PlanState) *[]string) (core.PlanState, error) {
	if _, ok := t.index[item]; !ok {
		return ps, fmt.Errorf("%w: %q", ErrUnknownItem, item)
	}

	if !slices.Contains(ps.RemainingPlans, item) {
		return ps, fmt.Errorf("%w: %q", ErrNotRemaining, item)
	}

	next := ps.Clone()
	next.RemainingPlans = slices.DeleteFunc(next.RemainingPlans, func(s string) bool { return s == item })

	dst := target(&next)
	*dst = append(*dst, item)
	slices.SortFunc(*dst, func(a, b string) int { return t.index[a] - t.index[b] })

	if next.ExecutedPlans == nil {
		next.ExecutedPlans = []string{}
	}

	if next.RejectedPlans == nil {
		next.RejectedPlans = []string{}
	}

	return next, nil
}

// Next returns the first remaining step.
func (t *Tracker) Next(ps core.PlanState) (string, bool) {
	if len(ps.RemainingPlans) == 0 {
		return "", false
	}

	return ps.RemainingPlans[0], true
}

// Done reports whether no step remains.
func (t *Tracker) Done(ps core.PlanState) bool { return len(ps.RemainingPlans) == 0 }
