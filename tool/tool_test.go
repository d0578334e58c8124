package tool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/routemesh/core"
)

type priceArgs struct {
	Ticker string `json:"ticker" description:"The ticker symbol"`
}

type buyArgs struct {
	Ticker   string  `json:"ticker"`
	Quantity float64 `json:"quantity"`
}

type emptyArgs struct{}

func testSet() Set {
	return NewSet(
		New("stock-price", "price lookup", priceArgs{}),
		New("portfolio", "show portfolio", emptyArgs{}),
		New("buy-stock", "buy", buyArgs{}),
	)
}

func newRunContext() *core.RunContext {
	rc := core.NewRunContext(context.Background(), "t1", "r1", core.NewConversationState("t1"), nil, nil, nil)
	return rc.ForNode("stockbroker", "agent", rc.State)
}

func TestCorrelate_MatchesInOrderAndSkipsUnknown(t *testing.T) {
	calls := []core.ToolCall{
		{ID: "1", Name: "portfolio", Args: map[string]any{}},
		{ID: "2", Name: "weather", Args: map[string]any{}},
		{ID: "3", Name: "stock-price", Args: map[string]any{"ticker": "AAPL"}},
		{ID: "4", Name: "buy-stock", Args: map[string]any{"ticker": "AAPL"}}, // missing quantity
	}

	matches, err := Correlate(newRunContext(), testSet(), calls, true)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "1", matches[0].Call.ID)
	assert.Equal(t, "3", matches[1].Call.ID)
	assert.Equal(t, "stock-price", matches[1].Definition.Name)
}

func TestCorrelate_RequiredWithoutMatch(t *testing.T) {
	_, err := Correlate(newRunContext(), testSet(), nil, true)

	var missing *core.MissingToolCallError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "agent", missing.Node)
	assert.Equal(t, []string{"stock-price", "portfolio", "buy-stock"}, missing.Tools)

	matches, err := Correlate(newRunContext(), testSet(), nil, false)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestDecode(t *testing.T) {
	var args buyArgs
	err := Decode(core.ToolCall{Name: "buy-stock", Args: map[string]any{"ticker": "MSFT", "quantity": 3.0}}, &args)
	require.NoError(t, err)
	assert.Equal(t, "MSFT", args.Ticker)
	assert.Equal(t, 3.0, args.Quantity)

	err = Decode(core.ToolCall{Name: "buy-stock", Args: map[string]any{"quantity": "many"}}, &args)
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, CodeDecode, te.Code)
}

func TestDefinition_ValidateReportsToolError(t *testing.T) {
	def := New("buy-stock", "Buy shares.", buyArgs{})

	err := def.Validate(map[string]any{"quantity": 1.0})
	var te *ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "buy-stock", te.Tool)
	assert.Equal(t, CodeValidation, te.Code)
	assert.NotNil(t, te.Details)
	assert.Contains(t, te.Error(), "[VALIDATION_ERROR]")
}

func TestManufactureAndRespond(t *testing.T) {
	call := Manufacture("plan", map[string]any{"remainingPlans": []string{"a"}})
	assert.NotEmpty(t, call.ID)

	msg := Respond(call, "approved")
	assert.Equal(t, call.ID, msg.ToolCallID)
	assert.Equal(t, "plan", msg.Name)

	js, err := RespondJSON(call, map[string]string{"status": "ok"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"ok"}`, js.Content)
}

func TestSet_Model(t *testing.T) {
	defs := testSet().Model()
	require.Len(t, defs, 3)
	assert.Equal(t, "function", defs[0].Type)
	assert.Equal(t, "stock-price", defs[0].Function.Name)
	assert.Equal(t, []string{"ticker"}, defs[0].Function.Parameters["required"])
}

func TestDefinition_WithEnum(t *testing.T) {
	base := New("route", "pick", priceArgs{})
	restricted := base.WithEnum("ticker", []string{"AAPL", "MSFT"})

	require.NoError(t, restricted.Validate(map[string]any{"ticker": "AAPL"}))
	assert.Error(t, restricted.Validate(map[string]any{"ticker": "GOOG"}))

	// The original definition is untouched.
	assert.NoError(t, base.Validate(map[string]any{"ticker": "GOOG"}))
}

func TestAnswerUnmatched(t *testing.T) {
	known := core.ToolCall{ID: "a", Name: "stock-price", Args: map[string]any{"ticker": "AAPL"}}
	unknown := core.ToolCall{ID: "b", Name: "sell-stock"}
	msg := core.NewAIMessage("", known, unknown)

	out := AnswerUnmatched(msg, []Match{{Call: known}})
	require.Len(t, out, 1)

	tm, ok := out[0].(core.ToolMessage)
	require.True(t, ok)
	assert.Equal(t, "b", tm.ToolCallID)
	assert.Contains(t, tm.Content, "sell-stock")
}
