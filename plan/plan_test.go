package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/routemesh/core"
)

var master = []string{"one", "two", "three", "four"}

func newTracker(t *testing.T) *Tracker {
	t.Helper()

	tr, err := New(master)
	require.NoError(t, err)

	return tr
}

func TestNew_RejectsDuplicates(t *testing.T) {
	_, err := New([]string{"a", "a"})
	assert.Error(t, err)
}

func TestTracker_PartitionInvariantHolds(t *testing.T) {
	tr := newTracker(t)
	ps := tr.Initial()
	require.NoError(t, tr.Validate(ps))

	decisions := []bool{true, false, true, true}
	for _, accept := range decisions {
		item, ok := tr.Next(ps)
		require.True(t, ok)

		var err error
		if accept {
			ps, err = tr.Accept(ps, item)
		} else {
			ps, err = tr.Reject(ps, item)
		}
		require.NoError(t, err)
		require.NoError(t, tr.Validate(ps))
		assert.Equal(t, len(master), len(ps.ExecutedPlans)+len(ps.RemainingPlans)+len(ps.RejectedPlans))
	}

	assert.True(t, tr.Done(ps))
	assert.Equal(t, []string{"one", "three", "four"}, ps.ExecutedPlans)
	assert.Equal(t, []string{"two"}, ps.RejectedPlans)
}

func TestTracker_AcceptKeepsMasterOrder(t *testing.T) {
	tr := newTracker(t)
	ps := tr.Initial()

	ps, err := tr.Accept(ps, "three")
	require.NoError(t, err)
	ps, err = tr.Accept(ps, "one")
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "three"}, ps.ExecutedPlans)
	assert.Equal(t, []string{"two", "four"}, ps.RemainingPlans)
}

func TestTracker_Errors(t *testing.T) {
	tr := newTracker(t)
	ps := tr.Initial()

	_, err := tr.Accept(ps, "five")
	assert.ErrorIs(t, err, ErrUnknownItem)

	ps, err = tr.Accept(ps, "one")
	require.NoError(t, err)

	_, err = tr.Reject(ps, "one")
	assert.ErrorIs(t, err, ErrNotRemaining)
}

func TestTracker_Validate(t *testing.T) {
	tr := newTracker(t)

	tests := []struct {
		name string
		ps   core.PlanState
	}{
		{"missing item", core.PlanState{RemainingPlans: []string{"one", "two", "three"}}},
		{"duplicate across partitions", core.PlanState{ExecutedPlans: []string{"one"}, RemainingPlans: []string{"one", "two", "three", "four"}}},
		{"unknown", core.PlanState{RemainingPlans: []string{"one", "two", "three", "four", "five"}}},
		{"out of order", core.PlanState{RemainingPlans: []string{"two", "one", "three", "four"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tr.Validate(tt.ps))
		})
	}
}
