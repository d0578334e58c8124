package pizza

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/internal/testutil"
	"github.com/hupe1980/routemesh/model"
)

func noDelay(o *Options) {
	o.FindDelay = 0
	o.OrderDelay = 0
}

func TestPizza_FindThenOrder(t *testing.T) {
	m := model.NewMockModel("mock", "test").
		AddToolCall(ToolFindShop, map[string]any{"location": "Mission District", "pizza_company": "Golden Boy"}).
		AddToolCall(ToolPlaceOrder, map[string]any{"address": ShopAddress, "phone_number": ShopPhone, "order": "one large pepperoni"})

	state := testutil.NewHistory().Human("Order a large pepperoni from Golden Boy in the Mission").State("t")
	rc := core.NewRunContext(context.Background(), "t", "r", state, nil, nil, nil)

	out, err := New(m, noDelay).Run(rc)
	require.NoError(t, err)

	assert.Equal(t, []string{NodeFindStore, NodeOrderPizza}, out.Steps)
	require.Len(t, out.Patch.Messages, 4)
	assert.Contains(t, out.Patch.Messages[1].Text(), ShopAddress)
	assert.Contains(t, out.Patch.Messages[1].Text(), "Golden Boy")
	assert.Contains(t, out.Patch.Messages[3].Text(), "one large pepperoni")
	require.NoError(t, core.ValidateToolProtocol(out.State.Messages, true))

	reqs := m.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, model.ForceTool(ToolFindShop), reqs[0].ToolChoice)
	assert.Equal(t, model.ForceTool(ToolPlaceOrder), reqs[1].ToolChoice)
	assert.Len(t, reqs[1].Messages, 3, "order step sees the store search")
}

func TestPizza_MissingCall(t *testing.T) {
	m := model.NewMockModel("mock", "test").AddText("What pizza?")

	rc := core.NewRunContext(context.Background(), "t", "r", testutil.NewHistory().Human("pizza").State("t"), nil, nil, nil)

	out, err := New(m, noDelay).Run(rc)
	require.True(t, core.IsMissingToolCall(err))
	assert.Empty(t, out.Patch.Messages)
}

func TestPizza_DelayHonoursCancellation(t *testing.T) {
	m := model.NewMockModel("mock", "test").
		AddToolCall(ToolFindShop, map[string]any{"location": "SoMa"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	rc := core.NewRunContext(ctx, "t", "r", testutil.NewHistory().Human("pizza in SoMa").State("t"), nil, nil, nil)

	start := time.Now()
	_, err := New(m, func(o *Options) { o.FindDelay = time.Minute }).Run(rc)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}
