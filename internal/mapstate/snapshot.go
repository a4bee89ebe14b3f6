// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapstate

import (
	"slices"
	"time"

	"github.com/wneessen/mapstate/internal/geobus"
)

const (
	// AddressPending is shown until the first resolution finished.
	AddressPending = "Fetching address..."
	// AddressUnavailable is shown when resolving the address failed.
	AddressUnavailable = "Address unavailable"

	// LocationSpan is the map span in degrees around the device location.
	LocationSpan = 0.01
	// PlaceSpan is the tighter map span in degrees around a selected place.
	PlaceSpan = 0.005
)

// DefaultCenter is the map center before any location is known.
var DefaultCenter = geobus.Coordinate{Lat: 37.7749, Lon: -122.4194}

// SearchState is the state of the search coordinator.
type SearchState int

const (
	SearchIdle SearchState = iota
	SearchDebouncing
	Searching
)

func (s SearchState) String() string {
	switch s {
	case SearchIdle:
		return "idle"
	case SearchDebouncing:
		return "debouncing"
	case Searching:
		return "searching"
	default:
		return "unknown"
	}
}

type LocationSnapshot struct {
	// CurrentLocation is nil until the first fix was accepted.
	CurrentLocation     *geobus.Coordinate
	AuthorizationStatus AuthorizationStatus
	UpdatesActive       bool
	LastAcceptedAt      time.Time
}

type AddressSnapshot struct {
	Address   string
	Resolving bool
}

type SearchSnapshot struct {
	Query string
	// Results are in the order the provider returned them.
	Results       []Place
	SelectedPlace *Place
	State         SearchState
	// Failed is set if the latest search failed. Results then still hold the previous answer.
	Failed bool
}

// Region is the visible map area.
type Region struct {
	Center geobus.Coordinate
	// Span is the latitude and longitude delta in degrees.
	Span float64
}

// MapViewState is the read-only view of the whole map state delivered to observers. States are
// never modified after they were published. Observers share them and must not modify the
// Results slice.
type MapViewState struct {
	Location LocationSnapshot
	Address  AddressSnapshot
	Search   SearchSnapshot
	Region   Region
}

// Equal reports whether both states show the same thing.
func (s MapViewState) Equal(other MapViewState) bool {
	return equalPtr(s.Location.CurrentLocation, other.Location.CurrentLocation) &&
		s.Location.AuthorizationStatus == other.Location.AuthorizationStatus &&
		s.Location.UpdatesActive == other.Location.UpdatesActive &&
		s.Location.LastAcceptedAt.Equal(other.Location.LastAcceptedAt) &&
		s.Address == other.Address &&
		s.Search.Query == other.Search.Query &&
		slices.Equal(s.Search.Results, other.Search.Results) &&
		equalPtr(s.Search.SelectedPlace, other.Search.SelectedPlace) &&
		s.Search.State == other.Search.State &&
		s.Search.Failed == other.Search.Failed &&
		s.Region == other.Region
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
