// Package pizza implements the pizza ordering workflow: find_store locates a
// shop near the user and order_pizza places the order. Both calls go to
// simulated services.
package pizza

import (
	"fmt"
	"time"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/flow"
	"github.com/hupe1980/routemesh/logging"
	"github.com/hupe1980/routemesh/model"
	"github.com/hupe1980/routemesh/router"
	"github.com/hupe1980/routemesh/tool"
)

// Node and tool names.
const (
	NodeFindStore  = "find_store"
	NodeOrderPizza = "order_pizza"

	ToolFindShop   = "find_pizza_shop"
	ToolPlaceOrder = "place_pizza_order"
)

// The simulated shop every search finds.
const (
	ShopAddress = "1119 19th St, San Francisco, CA 94107"
	ShopPhone   = "415-555-1234"
)

type findShopArgs struct {
	Location     string `json:"location" description:"The location the user wants the pizza shop near"`
	PizzaCompany string `json:"pizza_company,omitempty" description:"A specific pizza company, if the user named one"`
}

type placeOrderArgs struct {
	Address     string `json:"address" description:"The address of the pizza shop"`
	PhoneNumber string `json:"phone_number" description:"The phone number of the pizza shop"`
	Order       string `json:"order" description:"The full order to place"`
}

var (
	findShopTool   = tool.NewSet(tool.New(ToolFindShop, "Find the closest pizza shop to a location.", findShopArgs{}))
	placeOrderTool = tool.NewSet(tool.New(ToolPlaceOrder, "Place an order with a pizza shop.", placeOrderArgs{}))
)

const findInstructions = `You are helping the user order pizza. First find a pizza shop near the location the user gave by calling the find_pizza_shop tool.`

const orderInstructions = `You found a pizza shop for the user. Place the user's order with it by calling the place_pizza_order tool, using the shop's address and phone number from the conversation.`

// Options configure the workflow.
type Options struct {
	// FindDelay simulates the store search latency.
	FindDelay time.Duration
	// OrderDelay simulates the order placement latency.
	OrderDelay time.Duration
	Logger     logging.Logger
}

// DefaultOptions returns the default delays.
func DefaultOptions() Options {
	return Options{
		FindDelay:  1500 * time.Millisecond,
		OrderDelay: 500 * time.Millisecond,
		Logger:     logging.NoOpLogger{},
	}
}

type orderer struct {
	model model.Model
	opts  Options
}

// New builds the pizza ordering graph.
func New(m model.Model, optFns ...func(o *Options)) *flow.Graph {
	opts := DefaultOptions()

	for _, fn := range optFns {
		fn(&opts)
	}

	o := &orderer{model: m, opts: opts}

	return flow.NewGraph(router.OrderPizza.String()).
		AddNode(flow.NewNode(NodeFindStore, o.findStore)).
		AddNode(flow.NewNode(NodeOrderPizza, o.orderPizza)).
		SetEntry(NodeFindStore).
		AddEdge(NodeFindStore, NodeOrderPizza).
		AddEdge(NodeOrderPizza, flow.END)
}

// step performs one forced tool call, waits the simulated latency and
// answers the call with the content built by respond.
func (o *orderer) step(rc *core.RunContext, instructions string, set tool.Set, delay time.Duration, respond func(call core.ToolCall) (string, error)) (flow.Result, error) {
	msg, err := model.Call(rc, o.model, model.Request{
		Instructions: instructions,
		Messages:     rc.Messages(),
		Tools:        set.Model(),
		ToolChoice:   model.ForceTool(set[0].Name),
	})
	if err != nil {
		return flow.Result{}, err
	}

	matches, err := tool.Correlate(rc, set, msg.ToolCalls, true)
	if err != nil {
		return flow.Result{}, err
	}

	if err := rc.Sleep(delay); err != nil {
		return flow.Result{}, err
	}

	content, err := respond(matches[0].Call)
	if err != nil {
		return flow.Result{}, err
	}

	messages := []core.Message{msg}
	for _, m := range matches {
		c := content
		if m.Call.ID != matches[0].Call.ID {
			c = "Ignored: only one call is handled per step."
		}

		messages = append(messages, tool.Respond(m.Call, c))
	}

	messages = append(messages, tool.AnswerUnmatched(msg, matches)...)

	return flow.Result{Patch: core.Patch{Messages: messages}}, nil
}

func (o *orderer) findStore(rc *core.RunContext) (flow.Result, error) {
	return o.step(rc, findInstructions, findShopTool, o.opts.FindDelay, func(call core.ToolCall) (string, error) {
		var args findShopArgs
		if err := tool.Decode(call, &args); err != nil {
			return "", err
		}

		shop := args.PizzaCompany
		if shop == "" {
			shop = "pizza shop"
		}

		rc.LogInfo("pizza.store.found", "location", args.Location, "company", args.PizzaCompany)

		return fmt.Sprintf("The closest %s to %s is located at %s. Its phone number is %s.", shop, args.Location, ShopAddress, ShopPhone), nil
	})
}

func (o *orderer) orderPizza(rc *core.RunContext) (flow.Result, error) {
	return o.step(rc, orderInstructions, placeOrderTool, o.opts.OrderDelay, func(call core.ToolCall) (string, error) {
		var args placeOrderArgs
		if err := tool.Decode(call, &args); err != nil {
			return "", err
		}

		rc.LogInfo("pizza.order.placed", "address", args.Address, "phone", args.PhoneNumber)

		return fmt.Sprintf("Pizza order placed successfully with the shop at %s: %s", args.Address, args.Order), nil
	})
}
