// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package google

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"golang.org/x/text/language"
	"googlemaps.github.io/maps"

	"github.com/wneessen/mapstate/internal/geobus"
	"github.com/wneessen/mapstate/internal/geocode"
)

const name = "google"

// ErrAPIKeyRequired is returned if the provider is created without an API key.
var ErrAPIKeyRequired = errors.New("google maps geocoder requires an API key")

// APIClient is the subset of the Google Maps client used by the provider.
type APIClient interface {
	ReverseGeocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
	NearbySearch(ctx context.Context, r *maps.NearbySearchRequest) (maps.PlacesSearchResponse, error)
}

// Google implements reverse geocoding and nearby search with the Google Maps Platform APIs.
type Google struct {
	client APIClient
	lang   language.Tag
}

// New creates a Google provider using a Maps client for apikey. requestsPerSecond is passed to
// the client's own rate limiter.
func New(apikey string, lang language.Tag, requestsPerSecond int) (*Google, error) {
	if apikey == "" {
		return nil, ErrAPIKeyRequired
	}
	opts := []maps.ClientOption{maps.WithAPIKey(apikey)}
	if requestsPerSecond > 0 {
		opts = append(opts, maps.WithRateLimit(requestsPerSecond))
	}
	client, err := maps.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Maps client: %w", err)
	}
	return NewWithClient(client, lang), nil
}

// NewWithClient creates a Google provider with an existing API client.
func NewWithClient(client APIClient, lang language.Tag) *Google {
	return &Google{client: client, lang: lang}
}

func (g *Google) Name() string {
	return name
}

func (g *Google) Reverse(ctx context.Context, coords geobus.Coordinate) (geocode.Address, error) {
	req := &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: coords.Lat, Lng: coords.Lon},
		Language: g.lang.String(),
	}
	results, err := g.client.ReverseGeocode(ctx, req)
	if err != nil {
		return geocode.Address{}, fmt.Errorf("failed to reverse geocode with Google Maps API: %w", err)
	}

	address := geocode.Address{Latitude: coords.Lat, Longitude: coords.Lon}
	if len(results) == 0 {
		return address, nil
	}

	result := results[0]
	address.AddressFound = true
	address.DisplayName = result.FormattedAddress
	for _, component := range result.AddressComponents {
		switch {
		case slices.Contains(component.Types, "street_number"):
			address.HouseNumber = component.LongName
		case slices.Contains(component.Types, "route"):
			address.Street = component.LongName
		case slices.Contains(component.Types, "locality"):
			address.City = component.LongName
		case slices.Contains(component.Types, "postal_town") && address.City == "":
			address.City = component.LongName
		case slices.Contains(component.Types, "sublocality"):
			address.CityDistrict = component.LongName
		case slices.Contains(component.Types, "administrative_area_level_1"):
			address.State = component.ShortName
		case slices.Contains(component.Types, "postal_code"):
			address.Postcode = component.LongName
		case slices.Contains(component.Types, "country"):
			address.Country = component.LongName
		}
	}

	return address, nil
}

// SearchNearby uses the Places nearby search with query as keyword.
func (g *Google) SearchNearby(ctx context.Context, query string, center geobus.Coordinate,
	radius float64,
) ([]geocode.Place, error) {
	req := &maps.NearbySearchRequest{
		Location: &maps.LatLng{Lat: center.Lat, Lng: center.Lon},
		Radius:   uint(math.Max(1, math.Round(radius))),
		Keyword:  query,
		Language: g.lang.String(),
	}
	response, err := g.client.NearbySearch(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to search places with Google Maps API: %w", err)
	}

	places := make([]geocode.Place, 0, len(response.Results))
	for _, result := range response.Results {
		address := result.Vicinity
		if address == "" {
			address = result.FormattedAddress
		}
		places = append(places, geocode.Place{
			Name:    result.Name,
			Address: address,
			Coordinate: geobus.Coordinate{
				Lat: result.Geometry.Location.Lat,
				Lon: result.Geometry.Location.Lng,
			},
		})
	}
	return places, nil
}
