// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nominatim

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"github.com/wneessen/mapstate/internal/geobus"
	"github.com/wneessen/mapstate/internal/geocode"
	"github.com/wneessen/mapstate/internal/http"
)

const (
	APISearchEndpoint  = "https://nominatim.openstreetmap.org/search"
	APIReverseEndpoint = "https://nominatim.openstreetmap.org/reverse"
	APITimeout         = time.Second * 10
	SearchLimit        = 20
	name               = "osm-nominatim"

	// metersPerDegree is the length of one degree of latitude.
	metersPerDegree = 111320.0
)

// Nominatim implements reverse geocoding and nearby search against the OpenStreetMap Nominatim
// API. All requests share a rate limiter, the public instance allows one request per second.
type Nominatim struct {
	http    *http.Client
	lang    language.Tag
	limiter *rate.Limiter
}

type ReverseResult struct {
	APILat      string  `json:"lat"`
	APILon      string  `json:"lon"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
	Error       string  `json:"error"`
}

type SearchResult struct {
	APILat      string  `json:"lat"`
	APILon      string  `json:"lon"`
	Name        string  `json:"name"`
	DisplayName string  `json:"display_name"`
	Address     Address `json:"address"`
}

type Address struct {
	HouseNumber  string `json:"house_number"`
	Road         string `json:"road"`
	Suburb       string `json:"suburb"`
	Municipality string `json:"municipality"`
	CityDistrict string `json:"city_district"`
	City         string `json:"city"`
	Town         string `json:"town"`
	Village      string `json:"village"`
	State        string `json:"state"`
	Postcode     string `json:"postcode"`
	Country      string `json:"country"`
}

// New returns a Nominatim provider. requestsPerSecond limits the request rate, a value of zero
// or less disables the limit.
func New(client *http.Client, lang language.Tag, requestsPerSecond float64) *Nominatim {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &Nominatim{
		lang:    lang,
		http:    client,
		limiter: rate.NewLimiter(limit, 1),
	}
}

func (n *Nominatim) Name() string {
	return name
}

func (n *Nominatim) Reverse(ctx context.Context, coords geobus.Coordinate) (geocode.Address, error) {
	var result ReverseResult
	var err error

	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", strconv.FormatFloat(coords.Lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(coords.Lon, 'f', -1, 64))
	query.Set("addressdetails", "1")
	query.Set("accept-language", n.lang.String())

	if err = n.limiter.Wait(ctx); err != nil {
		return geocode.Address{}, err
	}
	if _, err = n.http.Get(ctx, APIReverseEndpoint, &result, http.WithQuery(query),
		http.WithTimeout(APITimeout)); err != nil {
		return geocode.Address{}, fmt.Errorf("failed to fetch reverse address details from Nominatim API: %w", err)
	}
	if result.Error != "" {
		return geocode.Address{Latitude: coords.Lat, Longitude: coords.Lon}, nil
	}

	address := result.Address.toGeocode()
	address.AddressFound = true
	address.DisplayName = result.DisplayName
	address.Latitude, err = strconv.ParseFloat(result.APILat, 64)
	if err != nil {
		return geocode.Address{}, fmt.Errorf("failed to parse latitude from Nominatim API response: %w", err)
	}
	address.Longitude, err = strconv.ParseFloat(result.APILon, 64)
	if err != nil {
		return geocode.Address{}, fmt.Errorf("failed to parse longitude from Nominatim API response: %w", err)
	}

	return address, nil
}

// SearchNearby searches for query inside the bounding box of radius meters around center.
func (n *Nominatim) SearchNearby(ctx context.Context, query string, center geobus.Coordinate,
	radius float64,
) ([]geocode.Place, error) {
	var results []SearchResult

	values := url.Values{}
	values.Set("format", "jsonv2")
	values.Set("q", query)
	values.Set("viewbox", viewbox(center, radius))
	values.Set("bounded", "1")
	values.Set("addressdetails", "1")
	values.Set("limit", strconv.Itoa(SearchLimit))
	values.Set("accept-language", n.lang.String())

	if err := n.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if _, err := n.http.Get(ctx, APISearchEndpoint, &results, http.WithQuery(values),
		http.WithTimeout(APITimeout)); err != nil {
		return nil, fmt.Errorf("failed to search places with Nominatim API: %w", err)
	}

	places := make([]geocode.Place, 0, len(results))
	for _, result := range results {
		lat, err := strconv.ParseFloat(result.APILat, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse latitude from Nominatim API response: %w", err)
		}
		lon, err := strconv.ParseFloat(result.APILon, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse longitude from Nominatim API response: %w", err)
		}

		place := geocode.Place{
			Name:       result.Name,
			Address:    result.Address.toGeocode().Format(),
			Coordinate: geobus.Coordinate{Lat: lat, Lon: lon},
		}
		if place.Name == "" {
			place.Name, _, _ = strings.Cut(result.DisplayName, ",")
		}
		if place.Address == "" {
			place.Address = result.DisplayName
		}
		places = append(places, place)
	}

	return places, nil
}

func (a Address) toGeocode() geocode.Address {
	address := geocode.Address{
		Country:      a.Country,
		State:        a.State,
		Municipality: a.Municipality,
		CityDistrict: a.CityDistrict,
		Postcode:     a.Postcode,
		City:         a.City,
		Suburb:       a.Suburb,
		Street:       a.Road,
		HouseNumber:  a.HouseNumber,
	}
	if address.City == "" && a.Town != "" {
		address.City = a.Town
	}
	if address.City == "" && a.Village != "" {
		address.City = a.Village
	}
	return address
}

// viewbox returns the Nominatim viewbox (left,top,right,bottom) enclosing radius meters
// around center.
func viewbox(center geobus.Coordinate, radius float64) string {
	dLat := radius / metersPerDegree
	dLon := 180.0
	if cos := math.Cos(center.Lat * math.Pi / 180); cos > 1e-9 {
		dLon = math.Min(180, radius/(metersPerDegree*cos))
	}
	box := []float64{
		math.Max(-180, center.Lon-dLon),
		math.Min(90, center.Lat+dLat),
		math.Min(180, center.Lon+dLon),
		math.Max(-90, center.Lat-dLat),
	}
	parts := make([]string, len(box))
	for i, v := range box {
		parts[i] = strconv.FormatFloat(v, 'f', 6, 64)
	}
	return strings.Join(parts, ",")
}
