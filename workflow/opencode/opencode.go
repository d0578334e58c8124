// Package opencode implements the code-writing workflow. A fixed plan is
// walked one step at a time: planner records the plan, executor proposes the
// file change for the next step, and interrupt waits for the user to accept,
// reject or stop. Accepted and rejected steps go back to planner, which is the
// only node writing the plan state.
package opencode

import (
	"errors"
	"fmt"
	"maps"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/flow"
	"github.com/hupe1980/routemesh/internal/util"
	"github.com/hupe1980/routemesh/plan"
	"github.com/hupe1980/routemesh/router"
	"github.com/hupe1980/routemesh/tool"
	"github.com/hupe1980/routemesh/ui"
)

// Node, tool and component names.
const (
	NodePlanner   = "planner"
	NodeExecutor  = "executor"
	NodeInterrupt = "interrupt"

	ToolPlan       = "plan"
	ToolUpdateFile = "update_file"

	ComponentProposedChange = "proposed-change"
)

// Tool responses written when the user decides on a proposed change.
const (
	ResponseAccepted = "accepted"
	ResponseRejected = "rejected"
	ResponseStopped  = "stopped"
)

// ErrInvalidResume is returned when Resume receives something other than a
// core.ResumeValue with a known action.
var ErrInvalidResume = errors.New("invalid resume value")

const planMessage = `Here is the plan:
{{numbered .items}}`

type workflow struct {
	tracker *plan.Tracker
}

// New builds the open-code graph.
func New() *flow.Graph {
	tracker, err := plan.New(Items())
	if err != nil {
		// The master plan is static; a duplicate is a programming error.
		panic(err)
	}

	w := &workflow{tracker: tracker}

	return flow.NewGraph(router.OpenCode.String()).
		AddNode(flow.NewNode(NodePlanner, w.planner)).
		AddNode(flow.NewNode(NodeExecutor, w.executor)).
		AddNode(&interrupt{w: w}).
		SetEntry(NodePlanner).
		AddEdge(NodeExecutor, NodeInterrupt)
}

// planner records the plan. Partitions handed over by interrupt are persisted
// as given once validated; otherwise the thread's plan is kept, or the full
// plan is proposed when there is none.
func (w *workflow) planner(rc *core.RunContext) (flow.Result, error) {
	var (
		ps      core.PlanState
		content string
	)

	switch in := rc.Input.(type) {
	case core.PlanState:
		if err := w.tracker.Validate(in); err != nil {
			return flow.Result{}, fmt.Errorf("plan update rejected: %w", err)
		}

		ps = in
		content = fmt.Sprintf("Plan updated: %d done, %d rejected, %d remaining.", len(ps.ExecutedPlans), len(ps.RejectedPlans), len(ps.RemainingPlans))
	default:
		if rc.State.Plan != nil && w.tracker.Validate(*rc.State.Plan) == nil {
			ps = rc.State.Plan.Clone()
			content = fmt.Sprintf("Continuing the plan with %d remaining steps.", len(ps.RemainingPlans))
		} else {
			ps = w.tracker.Initial()

			text, err := util.RenderTemplate(planMessage, map[string]any{"items": w.tracker.Master()})
			if err != nil {
				return flow.Result{}, err
			}

			content = text
		}
	}

	done := w.tracker.Done(ps)
	if done {
		content = "All planned changes have been processed."
	}

	call := tool.Manufacture(ToolPlan, map[string]any{
		"executedPlans":  ps.ExecutedPlans,
		"remainingPlans": ps.RemainingPlans,
		"rejectedPlans":  ps.RejectedPlans,
	})
	msg := core.NewAIMessage(content, call)

	rc.LogInfo("opencode.plan", "executed", len(ps.ExecutedPlans), "remaining", len(ps.RemainingPlans), "rejected", len(ps.RejectedPlans))

	next := NodeExecutor
	if done {
		next = flow.END
	}

	return flow.Result{
		Patch: core.Patch{
			Messages: []core.Message{msg, tool.Respond(call, "approved")},
			Plan:     &ps,
		},
		Next: next,
	}, nil
}

// executor proposes the change of the next step.
func (w *workflow) executor(rc *core.RunContext) (flow.Result, error) {
	index := w.stepIndex(rc)

	content, err := Content(index)
	if err != nil {
		return flow.Result{}, err
	}

	step := MasterPlan[index]

	call := tool.Manufacture(ToolUpdateFile, map[string]any{
		"new_file_content":   content,
		"executed_plan_item": step.Item,
	})
	msg := core.NewAIMessage(fmt.Sprintf("Proposed change for %q (%s).", step.Item, step.Path), call)

	emitter := ui.NewEmitter(msg)
	if _, err := emitter.Push(ComponentProposedChange, map[string]any{
		"toolCallId": call.ID,
		"change":     content,
		"file":       step.Path,
		"planItem":   step.Item,
		"fullPlan":   w.tracker.Master(),
	}, call.ID); err != nil {
		return flow.Result{}, err
	}

	return flow.Result{Patch: core.Patch{Messages: []core.Message{msg}, UI: emitter.Events()}}, nil
}

// stepIndex is the master position of the plan's next item. Without plan
// state it is the number of proposals answered so far, not counting stopped
// ones (their step was never decided).
func (w *workflow) stepIndex(rc *core.RunContext) int {
	if ps := rc.State.Plan; ps != nil {
		if next, ok := w.tracker.Next(*ps); ok {
			if i := w.tracker.Index(next); i >= 0 {
				return i
			}
		}
	}

	msgs := rc.Messages()
	stopped := map[string]bool{}

	for _, m := range msgs {
		if tm, ok := m.(core.ToolMessage); ok && tm.Name == ToolUpdateFile && tm.Content == ResponseStopped {
			stopped[tm.ToolCallID] = true
		}
	}

	n := 0

	for _, m := range msgs {
		ai, ok := m.(core.AIMessage)
		if !ok {
			continue
		}

		for _, tc := range ai.ToolCalls {
			if tc.Name == ToolUpdateFile && !stopped[tc.ID] {
				n++
				break
			}
		}
	}

	return n
}

// interrupt suspends the turn until the user decides on the proposed change.
// With auto-accept enabled it accepts immediately.
type interrupt struct {
	w *workflow
}

func (i *interrupt) Name() string { return NodeInterrupt }

func (i *interrupt) Run(rc *core.RunContext) (flow.Result, error) {
	call, item, err := proposed(rc.Messages())
	if err != nil {
		return flow.Result{}, err
	}

	if rc.State.AutoAccept {
		rc.LogInfo("opencode.auto_accept", "item", item)
		return i.decide(rc, call, item, core.ResumeValue{Action: core.ResumeAccept})
	}

	return flow.Result{Interrupt: &core.PendingInterrupt{
		ToolCallID: call.ID,
		Payload: map[string]any{
			"planItem": item,
			"actions":  []string{string(core.ResumeAccept), string(core.ResumeReject), string(core.ResumeTerminate)},
		},
	}}, nil
}

func (i *interrupt) Resume(rc *core.RunContext, value any) (flow.Result, error) {
	var rv core.ResumeValue

	switch v := value.(type) {
	case core.ResumeValue:
		rv = v
	case *core.ResumeValue:
		if v == nil {
			return flow.Result{}, ErrInvalidResume
		}
		rv = *v
	default:
		return flow.Result{}, fmt.Errorf("%w: %T", ErrInvalidResume, value)
	}

	call, item, err := proposed(rc.Messages())
	if err != nil {
		return flow.Result{}, err
	}

	if p := rc.State.Pending; p != nil && p.ToolCallID != call.ID {
		return flow.Result{}, fmt.Errorf("pending call %s does not match proposed change %s", p.ToolCallID, call.ID)
	}

	return i.decide(rc, call, item, rv)
}

func (i *interrupt) decide(rc *core.RunContext, call core.ToolCall, item string, rv core.ResumeValue) (flow.Result, error) {
	ps := i.w.tracker.Initial()
	if rc.State.Plan != nil {
		ps = *rc.State.Plan
	}

	var (
		next    core.PlanState
		content string
		err     error
	)

	switch rv.Action {
	case core.ResumeAccept:
		next, err = i.w.tracker.Accept(ps, item)
		content = ResponseAccepted
	case core.ResumeReject:
		next, err = i.w.tracker.Reject(ps, item)
		content = ResponseRejected
		if rv.Feedback != "" {
			content += ": " + rv.Feedback
		}
	case core.ResumeTerminate:
		rc.LogInfo("opencode.terminated", "item", item)

		patch := core.Patch{Messages: []core.Message{tool.Respond(call, ResponseStopped)}, ClearPending: true}
		if ev, ok := proposalEvent(rc.State, call.ID); ok {
			patch.UI = []core.UIEvent{ui.NewEmitter(core.AIMessage{}).Remove(ev.ID)}
		}

		return flow.Result{Patch: patch, Next: flow.END}, nil
	default:
		return flow.Result{}, fmt.Errorf("%w: action %q", ErrInvalidResume, rv.Action)
	}

	if err != nil {
		return flow.Result{}, err
	}

	rc.LogInfo("opencode.decision", "action", string(rv.Action), "item", item)

	patch := core.Patch{Messages: []core.Message{tool.Respond(call, content)}, ClearPending: true}

	if ev, ok := proposalEvent(rc.State, call.ID); ok {
		if last, ok := core.LastAIMessage(rc.Messages()); ok {
			props := maps.Clone(ev.Props)
			props["status"] = content

			updated, err := ui.NewEmitter(last).Update(ev, props)
			if err != nil {
				return flow.Result{}, err
			}

			patch.UI = []core.UIEvent{updated}
		}
	}

	return flow.Result{Patch: patch, Next: NodePlanner, Input: next}, nil
}

// proposalEvent finds the proposed-change card rendered for callID.
func proposalEvent(state core.ConversationState, callID string) (core.UIEvent, bool) {
	if state.UI == nil {
		return core.UIEvent{}, false
	}

	for _, ev := range state.UI.ByComponent(ComponentProposedChange) {
		if ev.ToolCallID == callID {
			return ev, true
		}
	}

	return core.UIEvent{}, false
}

// proposed finds the most recent update_file call and its plan item.
func proposed(msgs []core.Message) (core.ToolCall, string, error) {
	for j := len(msgs) - 1; j >= 0; j-- {
		ai, ok := msgs[j].(core.AIMessage)
		if !ok {
			continue
		}

		for _, tc := range ai.ToolCalls {
			if tc.Name == ToolUpdateFile {
				item, _ := tc.Args["executed_plan_item"].(string)
				return tc, item, nil
			}
		}
	}

	return core.ToolCall{}, "", errors.New("no proposed change to decide on")
}
