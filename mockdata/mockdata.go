// Package mockdata generates deterministic lodging and restaurant listings
// for a trip destination. The same destination always yields the same
// listings, so a booking request can be resolved against the list the user
// was shown earlier.
package mockdata

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/hupe1980/routemesh/core"
)

// Count is the number of listings generated per kind.
const Count = 6

// Accommodation is a lodging listing.
type Accommodation struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Type          string  `json:"type"`
	City          string  `json:"city"`
	PricePerNight float64 `json:"price"`
	Rating        float64 `json:"rating"`
	Beds          int     `json:"beds"`
}

// Restaurant is a dining listing.
type Restaurant struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Cuisine    string  `json:"cuisine"`
	City       string  `json:"city"`
	PriceLevel string  `json:"priceRange"`
	Rating     float64 `json:"rating"`
}

var (
	lodgingPrefixes = []string{"Grand", "Cozy", "Riverside", "Old Town", "Skyline", "Garden", "Harbor", "Royal"}
	lodgingTypes    = []string{"Hotel", "Apartment", "Guesthouse", "Loft", "Villa", "Hostel"}
	restaurantNames = []string{"Le Petit", "La Trattoria", "The Golden", "Blue", "Casa", "Olive", "Saffron", "Ember"}
	restaurantNouns = []string{"Bistro", "Kitchen", "Table", "Grill", "Brasserie", "Tavern"}
	cuisines        = []string{"French", "Italian", "Japanese", "Mexican", "Indian", "Mediterranean", "Thai", "Local"}
	priceLevels     = []string{"$", "$$", "$$$", "$$$$"}
)

func rng(kind, location string) *rand.Rand {
	h := fnv.New64a()
	_, _ = h.Write([]byte(kind))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(location))))
	seed := h.Sum64()

	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }

// Accommodations returns the lodging listings for the trip's destination.
func Accommodations(td core.TripDetails) []Accommodation {
	r := rng("accommodation", td.Location)
	out := make([]Accommodation, 0, Count)
	used := map[string]bool{}

	for i := 0; len(out) < Count; i++ {
		name := fmt.Sprintf("%s %s %s", lodgingPrefixes[r.IntN(len(lodgingPrefixes))], td.Location, lodgingTypes[r.IntN(len(lodgingTypes))])
		if used[name] {
			name = fmt.Sprintf("%s %d", name, i+1)
		}

		used[name] = true

		beds := max(1, td.NumberOfGuests/2+r.IntN(2))
		out = append(out, Accommodation{
			ID:            fmt.Sprintf("acc-%d", i+1),
			Name:          name,
			Type:          lodgingTypes[i%len(lodgingTypes)],
			City:          td.Location,
			PricePerNight: float64(60 + r.IntN(340)),
			Rating:        round1(3.5 + r.Float64()*1.5),
			Beds:          beds,
		})
	}

	return out
}

// Restaurants returns the dining listings for the trip's destination.
func Restaurants(td core.TripDetails) []Restaurant {
	r := rng("restaurant", td.Location)
	out := make([]Restaurant, 0, Count)
	used := map[string]bool{}

	for i := 0; len(out) < Count; i++ {
		name := fmt.Sprintf("%s %s", restaurantNames[r.IntN(len(restaurantNames))], restaurantNouns[r.IntN(len(restaurantNouns))])
		if used[name] {
			name = fmt.Sprintf("%s %d", name, i+1)
		}

		used[name] = true

		out = append(out, Restaurant{
			ID:         fmt.Sprintf("rest-%d", i+1),
			Name:       name,
			Cuisine:    cuisines[r.IntN(len(cuisines))],
			City:       td.Location,
			PriceLevel: priceLevels[r.IntN(len(priceLevels))],
			Rating:     round1(3.5 + r.Float64()*1.5),
		})
	}

	return out
}

// FindAccommodation resolves name (case-insensitive) against the destination's
// listings.
func FindAccommodation(td core.TripDetails, name string) (Accommodation, bool) {
	for _, a := range Accommodations(td) {
		if strings.EqualFold(a.Name, strings.TrimSpace(name)) {
			return a, true
		}
	}

	return Accommodation{}, false
}

// FindRestaurant resolves name (case-insensitive) against the destination's
// listings.
func FindRestaurant(td core.TripDetails, name string) (Restaurant, bool) {
	for _, rs := range Restaurants(td) {
		if strings.EqualFold(rs.Name, strings.TrimSpace(name)) {
			return rs, true
		}
	}

	return Restaurant{}, false
}
