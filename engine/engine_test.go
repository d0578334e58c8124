package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/flow"
	"github.com/hupe1980/routemesh/internal/testutil"
	"github.com/hupe1980/routemesh/marketdata"
	"github.com/hupe1980/routemesh/metrics"
	"github.com/hupe1980/routemesh/model"
	"github.com/hupe1980/routemesh/router"
	"github.com/hupe1980/routemesh/ui"
	"github.com/hupe1980/routemesh/workflow/opencode"
	"github.com/hupe1980/routemesh/workflow/stockbroker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixedRouter struct {
	decision router.Decision
	err      error
}

func (f fixedRouter) Route(context.Context, []core.Message) (router.Decision, error) {
	return f.decision, f.err
}

type staticMarket struct{}

func (staticMarket) PriceHistory(context.Context, string) (marketdata.PriceHistory, error) {
	return marketdata.PriceHistory{OneDay: []marketdata.Price{{Close: 1}}, ThirtyDay: []marketdata.Price{{Close: 2}}}, nil
}

func (staticMarket) Snapshot(_ context.Context, ticker string) (marketdata.Snapshot, error) {
	return marketdata.Snapshot{Ticker: ticker, Price: 10}, nil
}

var fixedNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newEngine(t *testing.T, r Router, m model.Model, optFns ...func(o *Options)) *Engine {
	t.Helper()

	wfs := DefaultWorkflows(m, func(o *WorkflowOptions) {
		o.MarketData = staticMarket{}
		o.PizzaFindDelay = 0
		o.PizzaOrderDelay = 0
	})

	fns := append([]func(o *Options){func(o *Options) { o.Now = func() time.Time { return fixedNow } }}, optFns...)

	e, err := New(r, wfs, fns...)
	require.NoError(t, err)

	return e
}

func TestTurn_StockQuestionEndToEnd(t *testing.T) {
	m := model.NewMockModel("mock", "test")
	m.SetHandler(func(req model.Request) (core.AIMessage, error) {
		if req.ToolChoice.Name == "route" {
			return core.AIMessage{ToolCalls: []core.ToolCall{{Name: "route", Args: map[string]any{"route": "stockbroker"}}}}, nil
		}
		return core.AIMessage{ToolCalls: []core.ToolCall{{Name: stockbroker.ToolStockPrice, Args: map[string]any{"ticker": "AAPL"}}}}, nil
	})

	sink := ui.NewMemorySink()
	reg := prometheus.NewRegistry()
	met, err := metrics.New(reg)
	require.NoError(t, err)

	e := newEngine(t, router.New(m), m, func(o *Options) {
		o.Sink = sink
		o.Metrics = met
	})

	res, err := e.Turn(context.Background(), core.NewConversationState("t1"), core.NewHumanMessage("What's AAPL's price?"))
	require.NoError(t, err)

	assert.Equal(t, router.Stockbroker, res.Decision.Route)
	require.NotNil(t, res.Patch.Route)
	assert.Equal(t, "stockbroker", *res.Patch.Route)
	assert.Equal(t, fixedNow, res.Patch.Timestamp)
	assert.False(t, res.Interrupted)

	events := res.State.UI.ByComponent(stockbroker.ToolStockPrice)
	require.Len(t, events, 1)
	assert.Equal(t, "AAPL", events[0].Props["ticker"])
	assert.Equal(t, "What's AAPL's price?", res.Patch.Messages[0].Text())
	require.NoError(t, ui.CheckToolCallRefs(res.State.Messages, events))

	assert.Len(t, sink.Events("t1"), 1)
	assert.Equal(t, 1.0, promtest.ToFloat64(met.Turns.WithLabelValues("stockbroker", metrics.OutcomeCompleted)))
	assert.Equal(t, 1.0, promtest.ToFloat64(met.UIEvents.WithLabelValues(stockbroker.ToolStockPrice, "create")))
}

func TestTurn_FallbackAsksToClarify(t *testing.T) {
	m := model.NewMockModel("mock", "test").AddText("Could you tell me more?")
	e := newEngine(t, fixedRouter{decision: router.Decision{Route: router.GeneralInput, Fallback: true, Reason: "no route"}}, m)

	res, err := e.Turn(context.Background(), core.NewConversationState("t"), core.NewHumanMessage("hmm"))
	require.NoError(t, err)

	assert.True(t, res.Decision.Fallback)
	assert.Contains(t, m.Requests()[0].Instructions, "clarifying question")
	last, _ := core.LastAIMessage(res.State.Messages)
	assert.Equal(t, "Could you tell me more?", last.Content)
}

func TestTurn_RouterErrorIsFatal(t *testing.T) {
	cerr := &core.ClassificationError{Reason: "strict"}
	e := newEngine(t, fixedRouter{err: cerr}, model.NewMockModel("mock", "test"))

	res, err := e.Turn(context.Background(), core.NewConversationState("t"), core.NewHumanMessage("?"))
	require.True(t, core.IsClassificationError(err))
	require.NotNil(t, res)
	assert.Nil(t, res.Patch.Route)
	assert.Len(t, res.Patch.Messages, 1, "the human message is still returned")
}

func TestTurn_FailedWorkflowKeepsCompletedNodes(t *testing.T) {
	m := model.NewMockModel("mock", "test").
		AddToolCall("find_pizza_shop", map[string]any{"location": "SoMa"}).
		AddError(errors.New("provider down"))

	e := newEngine(t, fixedRouter{decision: router.Decision{Route: router.OrderPizza}}, m)

	res, err := e.Turn(context.Background(), core.NewConversationState("t"), core.NewHumanMessage("pizza in SoMa"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider down")

	// human + find_store AI message + its tool response
	assert.Len(t, res.Patch.Messages, 3)
	assert.Equal(t, []string{"find_store"}, res.Steps)
	require.NotNil(t, res.Patch.Route)
}

func TestTurn_RejectsBrokenHistory(t *testing.T) {
	e := newEngine(t, fixedRouter{decision: router.Decision{Route: router.GeneralInput}}, model.NewMockModel("mock", "test"))

	state := testutil.NewHistory().Human("hi").AICall("stock-price", map[string]any{"ticker": "AAPL"}).State("t")

	_, err := e.Turn(context.Background(), state, core.NewHumanMessage("again"))

	var pe *core.ProtocolError
	require.ErrorAs(t, err, &pe)
}

func TestTurn_ThreadExclusivity(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	blocking := flow.NewGraph("generalInput").
		AddNode(flow.NewNode("wait", func(*core.RunContext) (flow.Result, error) {
			close(entered)
			<-release
			return flow.Result{}, nil
		})).
		SetEntry("wait")

	e, err := New(fixedRouter{decision: router.Decision{Route: router.GeneralInput}},
		map[router.Route]Workflow{router.GeneralInput: blocking})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := e.Turn(context.Background(), core.NewConversationState("same"), core.NewHumanMessage("one"))
		done <- err
	}()

	<-entered

	_, err = e.Turn(context.Background(), core.NewConversationState("same"), core.NewHumanMessage("two"))
	require.ErrorIs(t, err, ErrTurnInProgress)

	state := core.NewConversationState("same")
	state.Pending = &core.PendingInterrupt{Workflow: "generalInput", Node: "wait"}
	_, err = e.Resume(context.Background(), state, nil)
	require.ErrorIs(t, err, ErrTurnInProgress)

	close(release)
	require.NoError(t, <-done)
}

func openCodeEngine(t *testing.T, optFns ...func(o *Options)) *Engine {
	return newEngine(t, fixedRouter{decision: router.Decision{Route: router.OpenCode}}, model.NewMockModel("mock", "test"), optFns...)
}

func TestTurn_InterruptAndResume(t *testing.T) {
	var interrupts int

	cbs := NewCallbackManager()
	cbs.RegisterCallback(NewFunctionCallback(CallbackOnInterrupt, func(context.Context, *CallbackContext) error {
		interrupts++
		return nil
	}))

	e := openCodeEngine(t, func(o *Options) { o.Callbacks = cbs })

	res, err := e.Turn(context.Background(), core.NewConversationState("t"), core.NewHumanMessage("build a todo app"))
	require.NoError(t, err)
	require.True(t, res.Interrupted)
	require.NotNil(t, res.State.Pending)
	assert.Equal(t, "openCode", res.State.Pending.Workflow)

	resumed, err := e.Resume(context.Background(), res.State, core.ResumeValue{Action: core.ResumeAccept})
	require.NoError(t, err)
	require.True(t, resumed.Interrupted)
	assert.Nil(t, resumed.Patch.Route, "a resume is not a new routing decision")
	assert.Equal(t, []string{opencode.MasterPlan[0].Item}, resumed.State.Plan.ExecutedPlans)
	assert.Equal(t, 2, interrupts)

	_, err = e.Resume(context.Background(), core.NewConversationState("t"), core.ResumeValue{Action: core.ResumeAccept})
	require.ErrorIs(t, err, ErrNoPendingInterrupt)
}

func TestTurn_NewMessageTerminatesPendingInterrupt(t *testing.T) {
	e := openCodeEngine(t)

	first, err := e.Turn(context.Background(), core.NewConversationState("t"), core.NewHumanMessage("build a todo app"))
	require.NoError(t, err)
	pendingCall := first.State.Pending.ToolCallID

	gen := newEngine(t, fixedRouter{decision: router.Decision{Route: router.GeneralInput}}, model.NewMockModel("mock", "test").AddText("ok"))

	res, err := gen.Turn(context.Background(), first.State, core.NewHumanMessage("never mind"))
	require.NoError(t, err)

	assert.Nil(t, res.State.Pending)
	require.GreaterOrEqual(t, len(res.Patch.Messages), 2)

	stop, ok := res.Patch.Messages[0].(core.ToolMessage)
	require.True(t, ok)
	assert.Equal(t, pendingCall, stop.ToolCallID)
	assert.Equal(t, opencode.ResponseStopped, stop.Content)
	assert.Equal(t, "never mind", res.Patch.Messages[1].Text())

	require.NoError(t, core.ValidateToolProtocol(res.State.Messages, true))
	assert.Equal(t, first.State.Plan, res.State.Plan)
}

func TestTurn_AutoAcceptRunsToCompletion(t *testing.T) {
	e := openCodeEngine(t)

	state := core.NewConversationState("t")
	state.AutoAccept = true

	res, err := e.Turn(context.Background(), state, core.NewHumanMessage("build a todo app"))
	require.NoError(t, err)
	assert.False(t, res.Interrupted)
	assert.Empty(t, res.State.Plan.RemainingPlans)
}

func TestTurn_CallbackCanAbort(t *testing.T) {
	cbs := NewCallbackManager()
	cbs.RegisterCallback(NewFunctionCallback(CallbackAfterRoute, func(_ context.Context, cc *CallbackContext) error {
		if cc.Decision.Route == router.OrderPizza {
			return errors.New("pizza is closed")
		}
		return nil
	}))

	var logged []string
	cbs.RegisterCallback(NewLoggingCallback(CallbackOnError, func(msg string) { logged = append(logged, msg) }))

	e := newEngine(t, fixedRouter{decision: router.Decision{Route: router.OrderPizza}}, model.NewMockModel("mock", "test"),
		func(o *Options) { o.Callbacks = cbs })

	_, err := e.Turn(context.Background(), core.NewConversationState("t"), core.NewHumanMessage("pizza"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pizza is closed")
	require.Len(t, logged, 1)
	assert.Contains(t, logged[0], "route=orderPizza")
}

func TestDispatch_UnknownRouteFallsBackToGeneral(t *testing.T) {
	e := newEngine(t, fixedRouter{}, model.NewMockModel("mock", "test"))
	assert.Equal(t, "generalInput", e.Dispatch("bogus").Name())
	assert.Equal(t, "tripPlanner", e.Dispatch(router.TripPlanner).Name())
}

func TestNew_RequiresGeneralWorkflow(t *testing.T) {
	_, err := New(fixedRouter{}, map[router.Route]Workflow{router.OpenCode: opencode.New()})
	require.Error(t, err)

	_, err = New(fixedRouter{}, map[router.Route]Workflow{
		router.GeneralInput: opencode.New(),
		"weather":           opencode.New(),
	})
	require.Error(t, err)
}

func TestValidateUIRefs(t *testing.T) {
	c1 := core.ToolCall{ID: "c1", Name: "portfolio"}
	c2 := core.ToolCall{ID: "c2", Name: "portfolio"}

	first := core.Patch{
		Messages: []core.Message{core.NewAIMessage("", c1), core.NewToolMessage(c1, "ok")},
		UI:       []core.UIEvent{{ID: "u1", ComponentKey: "portfolio", ToolCallID: "c1"}},
	}
	require.NoError(t, ValidateUIRefs(core.ConversationState{}, []core.Patch{first}))

	followUp := core.Patch{
		Messages: []core.Message{core.NewHumanMessage("again")},
		UI:       []core.UIEvent{{ID: "u1", ComponentKey: "portfolio", ToolCallID: "c1", Mode: core.UIModeUpdate}},
	}
	require.NoError(t, ValidateUIRefs(core.ConversationState{}, []core.Patch{first, followUp}),
		"a node without an AI message may refer to the latest one")

	stale := core.Patch{
		Messages: []core.Message{core.NewAIMessage("", c2), core.NewToolMessage(c2, "ok")},
		UI:       []core.UIEvent{{ID: "u2", ComponentKey: "portfolio", ToolCallID: "c1"}},
	}
	require.Error(t, ValidateUIRefs(core.ConversationState{}, []core.Patch{first, stale}),
		"c1 was issued this turn but not by the message preceding the event")

	history := testutil.NewHistory().Human("hi").AICall("portfolio", nil).State("t")
	resumed := core.Patch{UI: []core.UIEvent{{ID: "u3", ComponentKey: "portfolio", ToolCallID: "call-2", Mode: core.UIModeUpdate}}}
	require.NoError(t, ValidateUIRefs(history, []core.Patch{resumed}))

	orphan := core.Patch{UI: []core.UIEvent{{ID: "u4", ToolCallID: "nope"}}}
	require.Error(t, ValidateUIRefs(core.ConversationState{}, []core.Patch{orphan}))
}

func TestTurn_PatchValidationCallback(t *testing.T) {
	cbs := NewCallbackManager()
	cbs.RegisterCallback(NewPatchValidationCallback(func(_ core.ConversationState, patch core.Patch) error {
		if len(patch.UI) > 0 {
			return errors.New("no widgets today")
		}
		return nil
	}))

	m := model.NewMockModel("mock", "test").
		AddToolCall(stockbroker.ToolPortfolio, map[string]any{})
	e := newEngine(t, fixedRouter{decision: router.Decision{Route: router.Stockbroker}}, m,
		func(o *Options) { o.Callbacks = cbs })

	res, err := e.Turn(context.Background(), core.NewConversationState("t"), core.NewHumanMessage("show my portfolio"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no widgets today")
	assert.Equal(t, []string{stockbroker.NodeAgent}, res.Steps)

	e = newEngine(t, fixedRouter{decision: router.Decision{Route: router.GeneralInput}}, model.NewMockModel("mock", "test").AddText("hi"),
		func(o *Options) { o.Callbacks = cbs })

	_, err = e.Turn(context.Background(), core.NewConversationState("t"), core.NewHumanMessage("hello"))
	require.NoError(t, err)
}
