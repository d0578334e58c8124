// Package stockbroker implements the stock brokerage workflow: a single agent
// node that lets the model look up prices, show the portfolio and propose
// purchases, rendering one UI component per tool call.
package stockbroker

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/flow"
	"github.com/hupe1980/routemesh/logging"
	"github.com/hupe1980/routemesh/marketdata"
	"github.com/hupe1980/routemesh/model"
	"github.com/hupe1980/routemesh/router"
	"github.com/hupe1980/routemesh/tool"
	"github.com/hupe1980/routemesh/ui"
)

// Tool names and the UI components rendered for them.
const (
	ToolStockPrice = "stock-price"
	ToolPortfolio  = "portfolio"
	ToolBuyStock   = "buy-stock"

	NodeAgent = "agent"
)

// MarketData is the subset of the market data client the workflow needs.
type MarketData interface {
	PriceHistory(ctx context.Context, ticker string) (marketdata.PriceHistory, error)
	Snapshot(ctx context.Context, ticker string) (marketdata.Snapshot, error)
}

// DefaultInstructions is the agent's system prompt.
const DefaultInstructions = `You are a stockbroker agent. You can look up the price of a stock, show the user's portfolio, and propose purchases of stocks.
Use the tools when they help answer the user's request. You may call several tools at once.`

type stockPriceArgs struct {
	Ticker string `json:"ticker" description:"The ticker symbol of the company, e.g. AAPL"`
}

type portfolioArgs struct{}

type buyStockArgs struct {
	Ticker   string  `json:"ticker" description:"The ticker symbol of the company to buy"`
	Quantity float64 `json:"quantity" description:"The number of shares to buy"`
}

// Tools is the tool set the agent may select from.
var Tools = tool.NewSet(
	tool.New(ToolStockPrice, "Get the price history of a stock (intraday and the last 30 days).", stockPriceArgs{}),
	tool.New(ToolPortfolio, "Show the user's current portfolio.", portfolioArgs{}),
	tool.New(ToolBuyStock, "Propose buying a quantity of a stock at its current price.", buyStockArgs{}),
)

// Options configure the workflow.
type Options struct {
	Instructions string
	MarketData   MarketData
	Logger       logging.Logger
}

// New builds the stockbroker graph.
func New(m model.Model, optFns ...func(o *Options)) *flow.Graph {
	opts := Options{
		Instructions: DefaultInstructions,
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.MarketData == nil {
		opts.MarketData = marketdata.New(func(o *marketdata.Options) { o.Logger = opts.Logger })
	}

	a := &agent{model: m, opts: opts}

	return flow.NewGraph(router.Stockbroker.String()).
		AddNode(flow.NewNode(NodeAgent, a.run)).
		SetEntry(NodeAgent).
		AddEdge(NodeAgent, flow.END)
}

type agent struct {
	model model.Model
	opts  Options
}

// lookup is the resolved data for one matched call.
type lookup struct {
	history  marketdata.PriceHistory
	snapshot marketdata.Snapshot
	ticker   string
	quantity float64
}

func (a *agent) run(rc *core.RunContext) (flow.Result, error) {
	msg, err := model.Call(rc, a.model, model.Request{
		Instructions: a.opts.Instructions,
		Messages:     rc.Messages(),
		Tools:        Tools.Model(),
	})
	if err != nil {
		return flow.Result{}, err
	}

	matches, err := tool.Correlate(rc, Tools, msg.ToolCalls, false)
	if err != nil {
		return flow.Result{}, err
	}

	// Every lookup finishes before any UI is produced so a failure leaves no
	// partial render behind.
	results, err := a.resolve(rc.Context, matches)
	if err != nil {
		return flow.Result{}, err
	}

	emitter := ui.NewEmitter(msg)
	messages := []core.Message{msg}

	for i, match := range matches {
		call, res := match.Call, results[i]

		var (
			props   map[string]any
			content string
		)

		switch call.Name {
		case ToolStockPrice:
			props = map[string]any{
				"ticker":          res.ticker,
				"oneDayPrices":    res.history.OneDay,
				"thirtyDayPrices": res.history.ThirtyDay,
			}
			content = fmt.Sprintf("Showing the price history of %s.", res.ticker)
		case ToolPortfolio:
			props = map[string]any{}
			content = "Showing the user's portfolio."
		case ToolBuyStock:
			props = map[string]any{
				"toolCallId": call.ID,
				"snapshot":   res.snapshot,
				"quantity":   res.quantity,
			}
			content = fmt.Sprintf("Proposed purchase of %g shares of %s at %.2f.", res.quantity, res.ticker, res.snapshot.Price)
		}

		if _, err := emitter.Push(call.Name, props, call.ID); err != nil {
			return flow.Result{}, err
		}

		messages = append(messages, tool.Respond(call, content))
	}

	messages = append(messages, tool.AnswerUnmatched(msg, matches)...)

	rc.LogInfo("stockbroker.agent.complete", "tool_calls", len(msg.ToolCalls), "matched", len(matches))

	return flow.Result{Patch: core.Patch{Messages: messages, UI: emitter.Events()}}, nil
}

// resolve performs the market data lookups of all matches concurrently and
// returns their results in match order. Arguments are decoded up front so no
// lookup starts for a malformed batch.
func (a *agent) resolve(ctx context.Context, matches []tool.Match) ([]lookup, error) {
	results := make([]lookup, len(matches))

	for i, match := range matches {
		switch match.Call.Name {
		case ToolStockPrice:
			var args stockPriceArgs
			if err := tool.Decode(match.Call, &args); err != nil {
				return nil, err
			}

			results[i].ticker = args.Ticker
		case ToolBuyStock:
			var args buyStockArgs
			if err := tool.Decode(match.Call, &args); err != nil {
				return nil, err
			}

			results[i].ticker, results[i].quantity = args.Ticker, args.Quantity
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	for i, match := range matches {
		res := &results[i]

		switch match.Call.Name {
		case ToolStockPrice:
			g.Go(func() (err error) {
				if res.history, err = a.opts.MarketData.PriceHistory(gctx, res.ticker); err != nil {
					return fmt.Errorf("price history for %s: %w", res.ticker, err)
				}

				return nil
			})
		case ToolBuyStock:
			g.Go(func() (err error) {
				if res.snapshot, err = a.opts.MarketData.Snapshot(gctx, res.ticker); err != nil {
					return fmt.Errorf("snapshot for %s: %w", res.ticker, err)
				}

				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}
