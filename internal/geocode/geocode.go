// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/wneessen/mapstate/internal/geobus"
)

// AddressSeparator joins the components of a formatted address.
const AddressSeparator = ", "

// ErrNotImplemented is returned by providers that do not support an operation.
var ErrNotImplemented = errors.New("not implemented by geocode provider")

type Address struct {
	AddressFound bool
	CacheHit     bool
	Latitude     float64
	Longitude    float64
	DisplayName  string
	Country      string
	State        string
	Municipality string
	CityDistrict string
	Postcode     string
	City         string
	Suburb       string
	Street       string
	HouseNumber  string
}

// Format joins house number, street, city, state and postcode in that order. Missing components
// are skipped, so no leading, trailing or doubled separators are produced.
func (a Address) Format() string {
	parts := make([]string, 0, 5)
	for _, part := range []string{a.HouseNumber, a.Street, a.City, a.State, a.Postcode} {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, AddressSeparator)
}

// Place is a named point of interest returned by a nearby search.
type Place struct {
	Name       string
	Address    string
	Coordinate geobus.Coordinate
}

type Geocoder interface {
	Name() string
	Reverse(ctx context.Context, coords geobus.Coordinate) (Address, error)
}

// Searcher finds places matching query within radius meters around center. Results are returned
// in the order of the provider's response.
type Searcher interface {
	Name() string
	SearchNearby(ctx context.Context, query string, center geobus.Coordinate, radius float64) ([]Place, error)
}
