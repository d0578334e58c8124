package engine

import (
	"time"

	"github.com/hupe1980/routemesh/logging"
	"github.com/hupe1980/routemesh/model"
	"github.com/hupe1980/routemesh/router"
	"github.com/hupe1980/routemesh/workflow/general"
	"github.com/hupe1980/routemesh/workflow/opencode"
	"github.com/hupe1980/routemesh/workflow/pizza"
	"github.com/hupe1980/routemesh/workflow/stockbroker"
	"github.com/hupe1980/routemesh/workflow/tripplanner"
)

// WorkflowOptions tune the built-in workflows.
type WorkflowOptions struct {
	// MarketData overrides the stockbroker's market data client.
	MarketData stockbroker.MarketData

	// PizzaFindDelay and PizzaOrderDelay override the simulated latencies.
	// Negative values keep the defaults.
	PizzaFindDelay  time.Duration
	PizzaOrderDelay time.Duration

	Logger logging.Logger
}

// DefaultWorkflows builds the dispatch table for every route from one model.
func DefaultWorkflows(m model.Model, optFns ...func(o *WorkflowOptions)) map[router.Route]Workflow {
	pd := pizza.DefaultOptions()
	opts := WorkflowOptions{
		PizzaFindDelay:  pd.FindDelay,
		PizzaOrderDelay: pd.OrderDelay,
		Logger:          logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return map[router.Route]Workflow{
		router.GeneralInput: general.New(m),
		router.Stockbroker: stockbroker.New(m, func(o *stockbroker.Options) {
			o.MarketData = opts.MarketData
			o.Logger = opts.Logger
		}),
		router.TripPlanner: tripplanner.New(m, func(o *tripplanner.Options) { o.Logger = opts.Logger }),
		router.OpenCode:    opencode.New(),
		router.OrderPizza: pizza.New(m, func(o *pizza.Options) {
			if opts.PizzaFindDelay >= 0 {
				o.FindDelay = opts.PizzaFindDelay
			}
			if opts.PizzaOrderDelay >= 0 {
				o.OrderDelay = opts.PizzaOrderDelay
			}
			o.Logger = opts.Logger
		}),
	}
}
