package tripplanner

import (
	"fmt"

	"github.com/hupe1980/routemesh/core"
	"github.com/hupe1980/routemesh/flow"
	"github.com/hupe1980/routemesh/internal/util"
	"github.com/hupe1980/routemesh/mockdata"
	"github.com/hupe1980/routemesh/model"
	"github.com/hupe1980/routemesh/tool"
	"github.com/hupe1980/routemesh/ui"
)

func (p *planner) tools(rc *core.RunContext) (flow.Result, error) {
	td := rc.State.TripDetails
	if td == nil {
		return flow.Result{}, fmt.Errorf("tools node reached without trip details")
	}

	instructions, err := util.RenderTemplate(toolsInstructions, map[string]any{"trip": describe(td)})
	if err != nil {
		return flow.Result{}, err
	}

	msg, err := model.Call(rc, p.model, model.Request{
		Instructions: instructions,
		Messages:     rc.Messages(),
		Tools:        Tools.Model(),
		ToolChoice:   model.RequireTool(),
	})
	if err != nil {
		return flow.Result{}, err
	}

	matches, err := tool.Correlate(rc, Tools, msg.ToolCalls, true)
	if err != nil {
		return flow.Result{}, err
	}

	emitter := ui.NewEmitter(msg)
	messages := []core.Message{msg}

	for _, match := range matches {
		component, props, content, err := render(*td, match.Call)
		if err != nil {
			return flow.Result{}, err
		}

		props["tripDetails"] = *td
		props["toolCallId"] = match.Call.ID

		if _, err := emitter.Push(component, props, match.Call.ID); err != nil {
			return flow.Result{}, err
		}

		messages = append(messages, tool.Respond(match.Call, content))
	}

	messages = append(messages, tool.AnswerUnmatched(msg, matches)...)

	return flow.Result{Patch: core.Patch{Messages: messages, UI: emitter.Events()}}, nil
}

// render resolves one tool call against the destination's listings. Bookings
// always render; an unknown name renders with found=false and no entry.
func render(td core.TripDetails, call core.ToolCall) (string, map[string]any, string, error) {
	switch call.Name {
	case ToolListAccommodation:
		return ComponentAccommodations,
			map[string]any{"accommodations": mockdata.Accommodations(td)},
			fmt.Sprintf("Showing %d accommodations in %s.", mockdata.Count, td.Location), nil
	case ToolListRestaurants:
		return ComponentRestaurants,
			map[string]any{"restaurants": mockdata.Restaurants(td)},
			fmt.Sprintf("Showing %d restaurants in %s.", mockdata.Count, td.Location), nil
	case ToolBookAccommodation:
		var args bookAccommodationArgs
		if err := tool.Decode(call, &args); err != nil {
			return "", nil, "", err
		}

		props := map[string]any{"accommodationName": args.AccommodationName, "accommodation": nil, "found": false}

		acc, ok := mockdata.FindAccommodation(td, args.AccommodationName)
		if !ok {
			return ComponentBookAccommodation, props,
				fmt.Sprintf("No accommodation named %q was found in %s.", args.AccommodationName, td.Location), nil
		}

		props["accommodation"], props["found"] = acc, true

		return ComponentBookAccommodation, props,
			fmt.Sprintf("Booking %s from %s to %s.", acc.Name, td.StartDate, td.EndDate), nil
	case ToolBookRestaurant:
		var args bookRestaurantArgs
		if err := tool.Decode(call, &args); err != nil {
			return "", nil, "", err
		}

		props := map[string]any{"restaurantName": args.RestaurantName, "restaurant": nil, "found": false}

		rest, ok := mockdata.FindRestaurant(td, args.RestaurantName)
		if !ok {
			return ComponentBookRestaurant, props,
				fmt.Sprintf("No restaurant named %q was found in %s.", args.RestaurantName, td.Location), nil
		}

		props["restaurant"], props["found"] = rest, true

		return ComponentBookRestaurant, props,
			fmt.Sprintf("Booking a table at %s.", rest.Name), nil
	}

	return "", nil, "", fmt.Errorf("unhandled tool %s", call.Name)
}
