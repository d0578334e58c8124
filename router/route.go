package router

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Route names a workflow. The set is closed; Routes lists it.
type Route string

const (
	// Stockbroker handles price lookups, portfolio views and purchases.
	Stockbroker Route = "stockbroker"
	// TripPlanner handles lodging and dining for a trip.
	TripPlanner Route = "tripPlanner"
	// OpenCode walks a code-change plan with human approval.
	OpenCode Route = "openCode"
	// OrderPizza finds a shop and places an order.
	OrderPizza Route = "orderPizza"
	// GeneralInput is the catch-all conversational reply.
	GeneralInput Route = "generalInput"
)

var routes = []Route{Stockbroker, TripPlanner, OpenCode, OrderPizza, GeneralInput}

var descriptions = map[Route]string{
	Stockbroker:  "stock prices, portfolio questions, buying shares",
	TripPlanner:  "planning a trip, finding or booking accommodations and restaurants",
	OpenCode:     "writing or changing code, building an app",
	OrderPizza:   "finding a pizza shop and ordering pizza",
	GeneralInput: "anything else, small talk, or unclear requests",
}

// Routes returns the closed set of routes in canonical order.
func Routes() []Route { return append([]Route(nil), routes...) }

// Names returns the route labels as strings.
func Names() []string {
	out := make([]string, 0, len(routes))
	for _, r := range routes {
		out = append(out, string(r))
	}

	return out
}

// Description returns the human readable scope of r.
func (r Route) Description() string { return descriptions[r] }

// Valid reports whether r is one of Routes.
func (r Route) Valid() bool {
	_, ok := descriptions[r]
	return ok
}

func (r Route) String() string { return string(r) }

// maxLabelDistance bounds fuzzy label matching.
const maxLabelDistance = 2

// ParseRoute resolves a label produced by a completion step: exact match,
// then case-insensitive match ignoring separators, then the closest label
// within a small edit distance.
func ParseRoute(s string) (Route, bool) {
	if r := Route(s); r.Valid() {
		return r, true
	}

	norm := normalize(s)
	if norm == "" {
		return "", false
	}

	best, bestDist := Route(""), maxLabelDistance+1

	for _, r := range routes {
		candidate := normalize(string(r))
		if candidate == norm {
			return r, true
		}

		if d := levenshtein.ComputeDistance(norm, candidate); d < bestDist {
			best, bestDist = r, d
		}
	}

	if bestDist <= maxLabelDistance {
		return best, true
	}

	return "", false
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	return strings.NewReplacer("_", "", "-", "", " ", "", "\"", "", "'", "").Replace(s)
}
