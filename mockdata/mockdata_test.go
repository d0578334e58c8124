package mockdata

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/routemesh/core"
)

func TestAccommodations_DeterministicPerDestination(t *testing.T) {
	paris := core.TripDetails{Location: "Paris", NumberOfGuests: 2}

	first := Accommodations(paris)
	second := Accommodations(core.TripDetails{Location: " paris ", NumberOfGuests: 2})

	require.Len(t, first, Count)
	if diff := cmp.Diff(first, Accommodations(paris)); diff != "" {
		t.Fatalf("listings changed between calls (-first +second):\n%s", diff)
	}

	for i := range first {
		assert.Equal(t, first[i].PricePerNight, second[i].PricePerNight, "seed ignores case and spacing")
	}

	rome := Accommodations(core.TripDetails{Location: "Rome", NumberOfGuests: 2})
	assert.NotEqual(t, first[0].Name, rome[0].Name)
}

func TestListings_UniqueNames(t *testing.T) {
	td := core.TripDetails{Location: "Lisbon", NumberOfGuests: 4}

	seen := map[string]bool{}
	for _, a := range Accommodations(td) {
		assert.False(t, seen[a.Name], "duplicate %s", a.Name)
		seen[a.Name] = true
		assert.GreaterOrEqual(t, a.Rating, 3.5)
		assert.LessOrEqual(t, a.Rating, 5.0)
	}

	seen = map[string]bool{}
	for _, r := range Restaurants(td) {
		assert.False(t, seen[r.Name], "duplicate %s", r.Name)
		seen[r.Name] = true
	}
}

func TestFind(t *testing.T) {
	td := core.TripDetails{Location: "Tokyo", NumberOfGuests: 2}

	want := Restaurants(td)[3]
	got, ok := FindRestaurant(td, " "+want.Name+" ")
	require.True(t, ok)
	assert.Equal(t, want, got)

	acc := Accommodations(td)[0]
	found, ok := FindAccommodation(td, acc.Name)
	require.True(t, ok)
	assert.Equal(t, acc.ID, found.ID)

	_, ok = FindAccommodation(td, "Nowhere Inn")
	assert.False(t, ok)
}
