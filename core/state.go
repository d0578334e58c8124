package core

import (
	"slices"
	"time"
)

// TripDetails describes the trip a Trip Planner conversation is about. It is
// always replaced wholesale or cleared, never partially updated. Dates use the
// YYYY-MM-DD layout.
type TripDetails struct {
	Location       string `json:"location"`
	StartDate      string `json:"startDate"`
	EndDate        string `json:"endDate"`
	NumberOfGuests int    `json:"numberOfGuests"`
}

// PlanState partitions the Open-Code master plan into executed, remaining and
// rejected step descriptions.
type PlanState struct {
	ExecutedPlans  []string `json:"executedPlans"`
	RemainingPlans []string `json:"remainingPlans"`
	RejectedPlans  []string `json:"rejectedPlans"`
}

// Clone returns a deep copy.
func (p PlanState) Clone() PlanState {
	return PlanState{
		ExecutedPlans:  slices.Clone(p.ExecutedPlans),
		RemainingPlans: slices.Clone(p.RemainingPlans),
		RejectedPlans:  slices.Clone(p.RejectedPlans),
	}
}

// PendingInterrupt records a workflow suspended while waiting for a human
// decision. Node is the node that resumes; ToolCallID is the manufactured call
// awaiting its response.
type PendingInterrupt struct {
	Workflow   string         `json:"workflow"`
	Node       string         `json:"node"`
	ToolCallID string         `json:"toolCallId"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// ConversationState is the shared per-thread record a turn reads and patches.
// Messages are append-only; UI is merged by id; Route holds the decision of the
// most recent turn only.
type ConversationState struct {
	ThreadID    string
	Messages    []Message
	UI          *UIList
	Route       string
	TripDetails *TripDetails
	Plan        *PlanState
	Pending     *PendingInterrupt
	AutoAccept  bool
	Timestamp   time.Time
}

// NewConversationState creates an empty state for a thread.
func NewConversationState(threadID string) ConversationState {
	return ConversationState{ThreadID: threadID, UI: NewUIList()}
}

// Clone returns a deep copy of the state (messages are immutable values and
// are shared by copy of the slice).
func (s ConversationState) Clone() ConversationState {
	c := s
	c.Messages = slices.Clone(s.Messages)
	c.UI = s.UI.Clone()
	if s.TripDetails != nil {
		td := *s.TripDetails
		c.TripDetails = &td
	}
	if s.Plan != nil {
		p := s.Plan.Clone()
		c.Plan = &p
	}
	if s.Pending != nil {
		pi := *s.Pending
		c.Pending = &pi
	}
	return c
}

// Patch is the only way state changes. Nodes return patches; Apply folds them.
type Patch struct {
	Messages         []Message
	UI               []UIEvent
	Route            *string
	TripDetails      *TripDetails
	ClearTripDetails bool
	Plan             *PlanState
	Pending          *PendingInterrupt
	ClearPending     bool
	Timestamp        time.Time
}

// IsEmpty reports whether applying the patch would be a no-op.
func (p Patch) IsEmpty() bool {
	return len(p.Messages) == 0 && len(p.UI) == 0 && p.Route == nil &&
		p.TripDetails == nil && !p.ClearTripDetails && p.Plan == nil &&
		p.Pending == nil && !p.ClearPending && p.Timestamp.IsZero()
}

// Merge combines p with a later patch of the same turn. Messages and UI
// concatenate; scalar fields take the later value; a later set overrides an
// earlier clear and vice versa.
func (p Patch) Merge(next Patch) Patch {
	out := p
	out.Messages = append(slices.Clone(p.Messages), next.Messages...)
	out.UI = append(slices.Clone(p.UI), next.UI...)
	if next.Route != nil {
		out.Route = next.Route
	}
	if next.ClearTripDetails {
		out.TripDetails, out.ClearTripDetails = nil, true
	}
	if next.TripDetails != nil {
		out.TripDetails, out.ClearTripDetails = next.TripDetails, false
	}
	if next.Plan != nil {
		out.Plan = next.Plan
	}
	if next.ClearPending {
		out.Pending, out.ClearPending = nil, true
	}
	if next.Pending != nil {
		out.Pending, out.ClearPending = next.Pending, false
	}
	if !next.Timestamp.IsZero() {
		out.Timestamp = next.Timestamp
	}
	return out
}

// Apply folds patch into state and returns the new state. It never mutates its
// inputs and never panics.
func Apply(state ConversationState, patch Patch) ConversationState {
	next := state.Clone()

	next.Messages = append(next.Messages, patch.Messages...)
	for _, ev := range patch.UI {
		next.UI.Merge(ev)
	}
	if patch.Route != nil {
		next.Route = *patch.Route
	}
	if patch.ClearTripDetails {
		next.TripDetails = nil
	}
	if patch.TripDetails != nil {
		td := *patch.TripDetails
		next.TripDetails = &td
	}
	if patch.Plan != nil {
		p := patch.Plan.Clone()
		next.Plan = &p
	}
	if patch.ClearPending {
		next.Pending = nil
	}
	if patch.Pending != nil {
		pi := *patch.Pending
		next.Pending = &pi
	}
	if !patch.Timestamp.IsZero() {
		next.Timestamp = patch.Timestamp
	}
	return next
}

// StringPtr is a small helper for Patch.Route.
func StringPtr(s string) *string { return &s }

// ResumeAction is the human decision that continues an interrupted workflow.
type ResumeAction string

const (
	// ResumeAccept applies the proposed change.
	ResumeAccept ResumeAction = "accept"
	// ResumeReject discards the proposed change, optionally with feedback.
	ResumeReject ResumeAction = "reject"
	// ResumeTerminate stops the workflow leaving the plan untouched.
	ResumeTerminate ResumeAction = "terminate"
)

// ResumeValue carries the decision for a PendingInterrupt.
type ResumeValue struct {
	Action   ResumeAction `json:"action"`
	Feedback string       `json:"feedback,omitempty"`
}
