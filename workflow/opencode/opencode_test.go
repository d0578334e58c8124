package opencode

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/flow"
	"github.com/hupe1980/routemesh/internal/testutil"
	"github.com/hupe1980/routemesh/plan"
	"github.com/hupe1980/routemesh/ui"
)

func rcFor(state core.ConversationState) *core.RunContext {
	return core.NewRunContext(context.Background(), state.ThreadID, "run", state, core.NewStepLimiter(100), nil, nil)
}

func start(t *testing.T) (*flow.Graph, flow.Outcome) {
	t.Helper()

	g := New()
	require.NoError(t, g.Validate())

	out, err := g.Run(rcFor(testutil.NewHistory().Human("Build me a todo app").State("t")))
	require.NoError(t, err)

	return g, out
}

func lastToolMessage(t *testing.T, msgs []core.Message) core.ToolMessage {
	t.Helper()
	for i := len(msgs) - 1; i >= 0; i-- {
		if tm, ok := msgs[i].(core.ToolMessage); ok {
			return tm
		}
	}
	t.Fatal("no tool message")
	return core.ToolMessage{}
}

func checkPartition(t *testing.T, ps *core.PlanState) {
	t.Helper()
	require.NotNil(t, ps)

	tracker, err := plan.New(Items())
	require.NoError(t, err)
	require.NoError(t, tracker.Validate(*ps))
}

func TestRun_ProposesFirstStepAndSuspends(t *testing.T) {
	_, out := start(t)

	assert.Equal(t, []string{NodePlanner, NodeExecutor, NodeInterrupt}, out.Steps)
	require.NotNil(t, out.Interrupt)
	assert.Equal(t, NodeInterrupt, out.Interrupt.Node)
	assert.Equal(t, "openCode", out.Interrupt.Workflow)
	assert.Equal(t, MasterPlan[0].Item, out.Interrupt.Payload["planItem"])

	require.NotNil(t, out.State.Plan)
	assert.Equal(t, Items(), out.State.Plan.RemainingPlans)
	assert.Empty(t, out.State.Plan.ExecutedPlans)

	changes := out.State.UI.ByComponent(ComponentProposedChange)
	require.Len(t, changes, 1)
	assert.Equal(t, MasterPlan[0].Item, changes[0].Props["planItem"])
	assert.Equal(t, out.Interrupt.ToolCallID, changes[0].Props["toolCallId"])
	assert.Contains(t, changes[0].Props["change"], `"name": "todo-app"`)

	require.NoError(t, ui.CheckToolCallRefs(out.State.Messages, changes))
	require.NoError(t, core.ValidateToolProtocol(out.State.Messages, false))
	assert.Len(t, core.UnansweredToolCalls(out.State.Messages), 1)
}

func TestResume_AcceptMovesToExecutedAndProposesNext(t *testing.T) {
	g, first := start(t)

	out, err := g.Resume(rcFor(first.State), NodeInterrupt, core.ResumeValue{Action: core.ResumeAccept})
	require.NoError(t, err)

	assert.Equal(t, []string{NodeInterrupt, NodePlanner, NodeExecutor, NodeInterrupt}, out.Steps)
	checkPartition(t, out.State.Plan)
	assert.Equal(t, []string{MasterPlan[0].Item}, out.State.Plan.ExecutedPlans)
	assert.Equal(t, Items()[1:], out.State.Plan.RemainingPlans)

	require.NotNil(t, out.Interrupt)
	assert.Equal(t, MasterPlan[1].Item, out.Interrupt.Payload["planItem"])
	assert.Len(t, out.State.UI.ByComponent(ComponentProposedChange), 2)

	answer := out.Patch.Messages[0].(core.ToolMessage)
	assert.Equal(t, first.Interrupt.ToolCallID, answer.ToolCallID)
	assert.Equal(t, ResponseAccepted, answer.Content)
}

func TestResume_RejectWithFeedback(t *testing.T) {
	g, first := start(t)

	out, err := g.Resume(rcFor(first.State), NodeInterrupt, &core.ResumeValue{Action: core.ResumeReject, Feedback: "use pnpm"})
	require.NoError(t, err)

	checkPartition(t, out.State.Plan)
	assert.Equal(t, []string{MasterPlan[0].Item}, out.State.Plan.RejectedPlans)
	assert.Empty(t, out.State.Plan.ExecutedPlans)
	assert.Equal(t, "rejected: use pnpm", out.Patch.Messages[0].Text())
}

func TestResume_TerminateKeepsPlan(t *testing.T) {
	g, first := start(t)

	out, err := g.Resume(rcFor(first.State), NodeInterrupt, core.ResumeValue{Action: core.ResumeTerminate})
	require.NoError(t, err)

	assert.Equal(t, []string{NodeInterrupt}, out.Steps)
	assert.Nil(t, out.Interrupt)
	assert.Nil(t, out.State.Pending)
	assert.Equal(t, first.State.Plan, out.State.Plan)
	assert.Equal(t, ResponseStopped, lastToolMessage(t, out.State.Messages).Content)
	require.NoError(t, core.ValidateToolProtocol(out.State.Messages, true))
}

func TestResume_InvalidValue(t *testing.T) {
	g, first := start(t)

	_, err := g.Resume(rcFor(first.State), NodeInterrupt, "yes please")
	require.ErrorIs(t, err, ErrInvalidResume)

	_, err = g.Resume(rcFor(first.State), NodeInterrupt, core.ResumeValue{Action: "maybe"})
	require.ErrorIs(t, err, ErrInvalidResume)
}

func TestAutoAccept_WalksWholePlan(t *testing.T) {
	state := testutil.NewHistory().Human("Build me a todo app").State("t")
	state.AutoAccept = true

	out, err := New().Run(rcFor(state))
	require.NoError(t, err)

	assert.Nil(t, out.Interrupt)
	checkPartition(t, out.State.Plan)
	assert.Equal(t, Items(), out.State.Plan.ExecutedPlans)
	assert.Empty(t, out.State.Plan.RemainingPlans)
	assert.Equal(t, len(MasterPlan), core.CountToolCalls(out.State.Messages, ToolUpdateFile))
	assert.Len(t, out.State.UI.ByComponent(ComponentProposedChange), len(MasterPlan))
	require.NoError(t, core.ValidateToolProtocol(out.State.Messages, true))

	last, ok := core.LastAIMessage(out.State.Messages)
	require.True(t, ok)
	assert.Equal(t, "All planned changes have been processed.", last.Content)
}

func TestPartitionInvariantAcrossDecisions(t *testing.T) {
	g, out := start(t)

	decisions := []core.ResumeAction{core.ResumeAccept, core.ResumeReject, core.ResumeAccept, core.ResumeReject, core.ResumeAccept}
	for _, action := range decisions {
		var err error
		out, err = g.Resume(rcFor(out.State), NodeInterrupt, core.ResumeValue{Action: action})
		require.NoError(t, err)
		checkPartition(t, out.State.Plan)
	}

	out, err := g.Resume(rcFor(out.State), NodeInterrupt, core.ResumeValue{Action: core.ResumeAccept})
	require.NoError(t, err)
	assert.Nil(t, out.Interrupt)

	ps := out.State.Plan
	checkPartition(t, ps)
	assert.Len(t, ps.ExecutedPlans, 4)
	assert.Len(t, ps.RejectedPlans, 2)
	assert.Empty(t, ps.RemainingPlans)
}

func newWorkflow(t *testing.T) *workflow {
	t.Helper()

	tracker, err := plan.New(Items())
	require.NoError(t, err)

	return &workflow{tracker: tracker}
}

func TestExecutor_NoContentLeft(t *testing.T) {
	h := testutil.NewHistory().Human("more code")
	for range MasterPlan {
		h.AICall(ToolUpdateFile, map[string]any{"executed_plan_item": "x"}).Tool(ResponseAccepted)
	}

	_, err := newWorkflow(t).executor(rcFor(h.State("t")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no file updates found")
}

func TestStepIndex(t *testing.T) {
	w := newWorkflow(t)

	h := testutil.NewHistory().Human("build").
		AICall(ToolUpdateFile, map[string]any{"executed_plan_item": MasterPlan[0].Item}).Tool(ResponseAccepted).
		AICall(ToolUpdateFile, map[string]any{"executed_plan_item": MasterPlan[1].Item}).Tool(ResponseStopped)

	state := h.State("t")
	assert.Equal(t, 1, w.stepIndex(rcFor(state)), "stopped proposals are not counted")

	ps := core.PlanState{ExecutedPlans: []string{}, RemainingPlans: Items()[2:], RejectedPlans: Items()[:2]}
	state.Plan = &ps
	assert.Equal(t, 2, w.stepIndex(rcFor(state)), "the plan's next item wins")
}

func TestTerminate_NextRunProposesSameStep(t *testing.T) {
	g, first := start(t)

	stopped, err := g.Resume(rcFor(first.State), NodeInterrupt, core.ResumeValue{Action: core.ResumeTerminate})
	require.NoError(t, err)
	assert.Empty(t, stopped.State.UI.ByComponent(ComponentProposedChange), "the stopped proposal is removed")

	state := stopped.State
	state.Messages = append(state.Messages, core.NewHumanMessage("continue the app"))

	again, err := g.Run(rcFor(state))
	require.NoError(t, err)
	require.NotNil(t, again.Interrupt)
	assert.Equal(t, MasterPlan[0].Item, again.Interrupt.Payload["planItem"])

	state = again.State
	state.AutoAccept = true

	done, err := g.Resume(rcFor(state), NodeInterrupt, core.ResumeValue{Action: core.ResumeAccept})
	require.NoError(t, err)
	assert.Nil(t, done.Interrupt)
	assert.Equal(t, Items(), done.State.Plan.ExecutedPlans)
	assert.Empty(t, done.State.Plan.RemainingPlans)
	require.NoError(t, core.ValidateToolProtocol(done.State.Messages, true))
}

func TestDecisions_UpdateProposalCard(t *testing.T) {
	g, first := start(t)

	out, err := g.Resume(rcFor(first.State), NodeInterrupt, core.ResumeValue{Action: core.ResumeAccept})
	require.NoError(t, err)

	var card core.UIEvent
	for _, ev := range out.State.UI.ByComponent(ComponentProposedChange) {
		if ev.ToolCallID == first.Interrupt.ToolCallID {
			card = ev
		}
	}

	assert.Equal(t, core.UIModeUpdate, card.Mode)
	assert.Equal(t, ResponseAccepted, card.Props["status"])
	assert.Equal(t, MasterPlan[0].Item, card.Props["planItem"])
}

func TestContent(t *testing.T) {
	for i := range MasterPlan {
		c, err := Content(i)
		require.NoError(t, err)
		assert.NotEmpty(t, c)
	}

	_, err := Content(len(MasterPlan))
	require.Error(t, err)
}
