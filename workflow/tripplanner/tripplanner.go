// Package tripplanner implements the trip planning workflow.
//
// The graph has three nodes. When the conversation already has trip details,
// classify decides whether the latest message still concerns that trip; if
// not, the details are cleared and extraction runs. extraction pulls the trip
// out of the conversation, defaulting missing dates and guests. tools lets the
// model list or book accommodations and restaurants for the trip.
package tripplanner

import (
	"fmt"
	"time"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/flow"
	"github.com/hupe1980/routemesh/internal/util"
	"github.com/hupe1980/routemesh/logging"
	"github.com/hupe1980/routemesh/model"
	"github.com/hupe1980/routemesh/router"
	"github.com/hupe1980/routemesh/tool"
)

// Node names.
const (
	NodeClassify   = "classify"
	NodeExtraction = "extraction"
	NodeTools      = "tools"
)

// Tool and UI component names.
const (
	ToolClassify          = "classify"
	ToolExtract           = "extract"
	ToolListAccommodation = "list-accommodations"
	ToolBookAccommodation = "book-accommodation"
	ToolListRestaurants   = "list-restaurants"
	ToolBookRestaurant    = "book-restaurant"

	ComponentAccommodations    = "accommodations-list"
	ComponentRestaurants       = "restaurants-list"
	ComponentBookAccommodation = "book-accommodation"
	ComponentBookRestaurant    = "book-restaurant"
)

// DefaultGuests is used when the conversation names no party size.
const DefaultGuests = 2

// DefaultQuestion is asked when no destination could be extracted.
const DefaultQuestion = "Where would you like to go, and when are you planning to travel?"

const classifyInstructions = `You are checking whether the user's latest message still concerns the trip they are planning.
Current trip:
{{.trip}}

Call the classify tool. Set isRelevant to false if the user changes the destination, the dates or the number of guests, or talks about a different trip.`

const extractionInstructions = `You are helping a user plan a trip. Extract the destination, the travel dates (YYYY-MM-DD) and the number of guests from the conversation by calling the extract tool.
Today is {{.today}}. Only fill in dates and guests the user actually mentioned.
If the user has not named a destination yet, do not call the tool; ask where they would like to go instead.`

const toolsInstructions = `You are a travel assistant for this trip:
{{.trip}}

Use the tools to show or book accommodations and restaurants. Always call at least one tool.`

type classifyArgs struct {
	IsRelevant bool `json:"isRelevant" description:"Whether the latest message concerns the current trip"`
}

type extractArgs struct {
	Location       string `json:"location" description:"The destination city"`
	StartDate      string `json:"startDate,omitempty" description:"Start date (YYYY-MM-DD)"`
	EndDate        string `json:"endDate,omitempty" description:"End date (YYYY-MM-DD)"`
	NumberOfGuests int    `json:"numberOfGuests,omitempty" description:"Number of guests"`
}

type emptyArgs struct{}

type bookAccommodationArgs struct {
	AccommodationName string `json:"accommodationName" description:"Name of the accommodation to book"`
}

type bookRestaurantArgs struct {
	RestaurantName string `json:"restaurantName" description:"Name of the restaurant to book"`
}

var (
	classifyTool = tool.NewSet(tool.New(ToolClassify, "Classify whether the latest message is relevant to the current trip.", classifyArgs{}))
	extractTool  = tool.NewSet(tool.New(ToolExtract, "Record the trip the user wants to plan.", extractArgs{}))

	// Tools is the set offered by the tools node.
	Tools = tool.NewSet(
		tool.New(ToolListAccommodation, "List accommodations for the trip.", emptyArgs{}),
		tool.New(ToolBookAccommodation, "Book an accommodation by name.", bookAccommodationArgs{}),
		tool.New(ToolListRestaurants, "List restaurants for the trip.", emptyArgs{}),
		tool.New(ToolBookRestaurant, "Book a restaurant by name.", bookRestaurantArgs{}),
	)
)

// Options configure the workflow.
type Options struct {
	Logger logging.Logger
}

type planner struct {
	model model.Model
	opts  Options
}

// New builds the trip planner graph.
func New(m model.Model, optFns ...func(o *Options)) *flow.Graph {
	opts := Options{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	p := &planner{model: m, opts: opts}

	return flow.NewGraph(router.TripPlanner.String()).
		AddNode(flow.NewNode(NodeClassify, p.classify)).
		AddNode(flow.NewNode(NodeExtraction, p.extract)).
		AddNode(flow.NewNode(NodeTools, p.tools)).
		SetConditionalEntry(func(s core.ConversationState) string {
			if s.TripDetails != nil {
				return NodeClassify
			}
			return NodeExtraction
		}).
		AddEdge(NodeTools, flow.END)
}

func (p *planner) classify(rc *core.RunContext) (flow.Result, error) {
	instructions, err := util.RenderTemplate(classifyInstructions, map[string]any{"trip": describe(rc.State.TripDetails)})
	if err != nil {
		return flow.Result{}, err
	}

	var latest []core.Message
	if h, ok := core.LastHumanMessage(rc.Messages()); ok {
		latest = []core.Message{h}
	}

	msg, err := model.Call(rc, p.model, model.Request{
		Instructions: instructions,
		Messages:     latest,
		Tools:        classifyTool.Model(),
		ToolChoice:   model.ForceTool(ToolClassify),
	})
	if err != nil {
		return flow.Result{}, err
	}

	matches, err := tool.Correlate(rc, classifyTool, msg.ToolCalls, true)
	if err != nil {
		return flow.Result{}, err
	}

	var args classifyArgs
	if err := tool.Decode(matches[0].Call, &args); err != nil {
		return flow.Result{}, err
	}

	rc.LogDebug("tripplanner.classify", "relevant", args.IsRelevant, "location", rc.State.TripDetails.Location)

	// The classify exchange is internal and is not added to the history.
	if !args.IsRelevant {
		return flow.Result{Patch: core.Patch{ClearTripDetails: true}, Next: NodeExtraction}, nil
	}

	return flow.Result{Next: NodeTools}, nil
}

func (p *planner) extract(rc *core.RunContext) (flow.Result, error) {
	instructions, err := util.RenderTemplate(extractionInstructions, map[string]any{"today": rc.Now().Format(time.DateOnly)})
	if err != nil {
		return flow.Result{}, err
	}

	msg, err := model.Call(rc, p.model, model.Request{
		Instructions: instructions,
		Messages:     rc.Messages(),
		Tools:        extractTool.Model(),
	})
	if err != nil {
		return flow.Result{}, err
	}

	matches, err := tool.Correlate(rc, extractTool, msg.ToolCalls, false)
	if err != nil {
		return flow.Result{}, err
	}

	var args extractArgs

	m, ok := tool.First(matches, ToolExtract)
	if ok {
		if err := tool.Decode(m.Call, &args); err != nil {
			return flow.Result{}, err
		}
	}

	if !ok || args.Location == "" {
		reply := core.AIMessage{ID: msg.ID, Content: msg.Content}
		if reply.Content == "" {
			reply.Content = DefaultQuestion
		}

		return flow.Result{Patch: core.Patch{Messages: []core.Message{reply}}, Next: flow.END}, nil
	}

	td := Resolve(rc.Now(), args.Location, args.StartDate, args.EndDate, args.NumberOfGuests)

	messages := []core.Message{msg, tool.Respond(m.Call, fmt.Sprintf("Trip details recorded: %s.", describe(&td)))}
	messages = append(messages, tool.AnswerUnmatched(msg, matches)...)

	rc.LogInfo("tripplanner.extracted", "location", td.Location, "start", td.StartDate, "end", td.EndDate, "guests", td.NumberOfGuests)

	return flow.Result{
		Patch: core.Patch{Messages: messages, TripDetails: &td},
		Next:  NodeTools,
	}, nil
}

// Resolve builds trip details, defaulting what the user did not say relative
// to now: no dates means four to five weeks out; a single date implies a one
// week stay; guests default to two. Unparseable dates count as missing.
func Resolve(now time.Time, location, start, end string, guests int) core.TripDetails {
	s, sok := parseDate(start)
	e, eok := parseDate(end)

	switch {
	case !sok && !eok:
		y, m, d := now.Date()
		today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		s, e = today.AddDate(0, 0, 28), today.AddDate(0, 0, 35)
	case sok && !eok:
		e = s.AddDate(0, 0, 7)
	case !sok && eok:
		s = e.AddDate(0, 0, -7)
	}

	if guests <= 0 {
		guests = DefaultGuests
	}

	return core.TripDetails{
		Location:       location,
		StartDate:      s.Format(time.DateOnly),
		EndDate:        e.Format(time.DateOnly),
		NumberOfGuests: guests,
	}
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	t, err := time.Parse(time.DateOnly, s)

	return t, err == nil
}

func describe(td *core.TripDetails) string {
	if td == nil {
		return "none"
	}

	return fmt.Sprintf("%s from %s to %s for %d guests", td.Location, td.StartDate, td.EndDate, td.NumberOfGuests)
}
