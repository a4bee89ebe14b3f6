// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package nominatim

import (
	"errors"
	"log/slog"
	stdhttp "net/http"
	"strconv"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"

	"github.com/wneessen/mapstate/internal/geobus"
	"github.com/wneessen/mapstate/internal/geocode"
	"github.com/wneessen/mapstate/internal/http"
	"github.com/wneessen/mapstate/internal/logger"
	"github.com/wneessen/mapstate/internal/testhelper"
)

const (
	cityExpected      = "67, Friedrichstraße, Berlin, 10117"
	cityFile          = "../../../../testdata/nominatim_berlin.json"
	cityFileBrokenLat = "../../../../testdata/nominatim_brokenlat.json"
	notFoundFile      = "../../../../testdata/nominatim_notfound.json"
	searchFile        = "../../../../testdata/nominatim_search_coffee.json"
	searchBrokenFile  = "../../../../testdata/nominatim_search_brokenlon.json"
	testHitTTL        = 1 * time.Second
	testMissTTL       = 1 * time.Second

	villageExpected = "Marshfield"
	villageFile     = "../../../../testdata/nominatim_marshfield.json"

	townExpected = "Otley"
	townFile     = "../../../../testdata/nominatim_otley.json"
)

var (
	cityCoords    = geobus.Coordinate{Lat: 52.5129, Lon: 13.3910}
	villageCoords = geobus.Coordinate{Lat: 51.46292, Lon: -2.31850}
	townCoords    = geobus.Coordinate{Lat: 53.90712, Lon: -1.69404}
	sfCoords      = geobus.Coordinate{Lat: 37.7749, Lon: -122.4194}
)

func TestNew(t *testing.T) {
	t.Run("creating a new provider succeeds", func(t *testing.T) {
		coder := testCoder(t)
		if coder == nil {
			t.Fatal("expected a non-nil geocoder")
		}
	})
	t.Run("provider name is correct", func(t *testing.T) {
		coder := testCoder(t)
		if coder.Name() != name {
			t.Errorf("expected provider name to be %q, got %q", name, coder.Name())
		}
	})
}

func TestNominatim_Reverse(t *testing.T) {
	t.Run("reverse geocoding succeeds", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			if req.URL.Query().Get("lat") != "52.5129" {
				t.Errorf("expected lat query to be 52.5129, got %q", req.URL.Query().Get("lat"))
			}
			return testhelper.JSONResponse(t, cityFile), nil
		}

		coder := testCoderWithRoundtripFunc(t, rtFn)
		addr, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if !addr.AddressFound {
			t.Fatal("expected address to be found")
		}
		if !strings.EqualFold(addr.Format(), cityExpected) {
			t.Errorf("expected address to be %q, got %q", cityExpected, addr.Format())
		}
		if addr.Latitude != 52.51289 {
			t.Errorf("expected latitude to be 52.51289, got %f", addr.Latitude)
		}
	})
	t.Run("reverse cached geocoding succeeds", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return testhelper.JSONResponse(t, cityFile), nil
		}

		coder := geocode.NewCachedGeocoder(testCoderWithRoundtripFunc(t, rtFn), testHitTTL, testMissTTL)
		if _, err := coder.Reverse(t.Context(), cityCoords); err != nil {
			t.Fatal(err)
		}
		addr, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if !addr.CacheHit {
			t.Error("expected cache hit")
		}
	})
	t.Run("reverse geocoding with town or village set should return the correct city", func(t *testing.T) {
		tests := []struct {
			name   string
			file   string
			coords geobus.Coordinate
			want   string
		}{
			{"town", townFile, townCoords, townExpected},
			{"village", villageFile, villageCoords, villageExpected},
		}
		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
					return testhelper.JSONResponse(t, tc.file), nil
				}
				coder := testCoderWithRoundtripFunc(t, rtFn)
				addr, err := coder.Reverse(t.Context(), tc.coords)
				if err != nil {
					t.Fatal(err)
				}
				if !strings.EqualFold(addr.City, tc.want) {
					t.Errorf("expected city to be %q, got %q", tc.want, addr.City)
				}
			})
		}
	})
	t.Run("unknown locations are not found", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return testhelper.JSONResponse(t, notFoundFile), nil
		}
		coder := testCoderWithRoundtripFunc(t, rtFn)
		addr, err := coder.Reverse(t.Context(), geobus.Coordinate{Lat: 0, Lon: -140})
		if err != nil {
			t.Fatal(err)
		}
		if addr.AddressFound {
			t.Error("expected address to not be found")
		}
	})
	t.Run("reverse geocoding with broken latitude fails", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return testhelper.JSONResponse(t, cityFileBrokenLat), nil
		}
		coder := testCoderWithRoundtripFunc(t, rtFn)
		if _, err := coder.Reverse(t.Context(), cityCoords); err == nil {
			t.Fatal("expected parsing the latitude to fail")
		}
	})
	t.Run("reverse geocoding fails", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return nil, errors.New("intentionally failing")
		}

		coder := testCoderWithRoundtripFunc(t, rtFn)
		_, err := coder.Reverse(t.Context(), cityCoords)
		if err == nil {
			t.Fatal("expected API request to fail")
		}
	})
}

func TestNominatim_SearchNearby(t *testing.T) {
	t.Run("nearby search succeeds and keeps the response order", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			query := req.URL.Query()
			if query.Get("q") != "coffee" {
				t.Errorf("expected query to be coffee, got %q", query.Get("q"))
			}
			if query.Get("bounded") != "1" {
				t.Error("expected search to be bounded")
			}
			if query.Get("limit") != strconv.Itoa(SearchLimit) {
				t.Errorf("expected limit to be %d, got %q", SearchLimit, query.Get("limit"))
			}
			return testhelper.JSONResponse(t, searchFile), nil
		}

		coder := testCoderWithRoundtripFunc(t, rtFn)
		places, err := coder.SearchNearby(t.Context(), "coffee", sfCoords, 1000)
		if err != nil {
			t.Fatal(err)
		}
		if len(places) != 2 {
			t.Fatalf("expected 2 places, got %d", len(places))
		}
		if places[0].Name != "Blue Bottle Coffee" {
			t.Errorf("expected first place to be Blue Bottle Coffee, got %q", places[0].Name)
		}
		if places[0].Address != "66, Mint Street, San Francisco, California, 94103" {
			t.Errorf("unexpected address of first place: %q", places[0].Address)
		}
		if places[1].Name != "Sightglass" {
			t.Errorf("expected second place name to fall back to display name, got %q", places[1].Name)
		}
		if !places[1].Coordinate.Equal(geobus.Coordinate{Lat: 37.776, Lon: -122.423}) {
			t.Errorf("unexpected coordinate of second place: %s", places[1].Coordinate)
		}
	})
	t.Run("nearby search with broken longitude fails", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return testhelper.JSONResponse(t, searchBrokenFile), nil
		}
		coder := testCoderWithRoundtripFunc(t, rtFn)
		if _, err := coder.SearchNearby(t.Context(), "coffee", sfCoords, 1000); err == nil {
			t.Fatal("expected parsing the longitude to fail")
		}
	})
	t.Run("nearby search fails", func(t *testing.T) {
		rtFn := func(req *stdhttp.Request) (*stdhttp.Response, error) {
			return nil, errors.New("intentionally failing")
		}
		coder := testCoderWithRoundtripFunc(t, rtFn)
		if _, err := coder.SearchNearby(t.Context(), "coffee", sfCoords, 1000); err == nil {
			t.Fatal("expected API request to fail")
		}
	})
}

func TestViewbox(t *testing.T) {
	box := strings.Split(viewbox(geobus.Coordinate{}, 111320), ",")
	want := []string{"-1.000000", "1.000000", "1.000000", "-1.000000"}
	for i := range want {
		if box[i] != want[i] {
			t.Errorf("expected viewbox component %d to be %s, got %s", i, want[i], box[i])
		}
	}
	box = strings.Split(viewbox(geobus.Coordinate{Lat: 90}, 1000), ",")
	if box[0] != "-180.000000" || box[2] != "180.000000" {
		t.Errorf("expected viewbox at the pole to span all longitudes, got %v", box)
	}
}

func TestNominatim_Reverse_integration(t *testing.T) {
	testhelper.PerformIntegrationTests(t)
	t.Run("reverse geocoding succeeds", func(t *testing.T) {
		coder := testCoder(t)
		addr, err := coder.Reverse(t.Context(), cityCoords)
		if err != nil {
			t.Fatal(err)
		}
		if !addr.AddressFound {
			t.Fatal("expected address to be found")
		}
	})
}

func testCoder(_ *testing.T) *Nominatim {
	testHttpClient := http.New(logger.New(slog.LevelDebug))
	return New(testHttpClient, language.English, 1)
}

func testCoderWithRoundtripFunc(_ *testing.T, fn func(req *stdhttp.Request) (*stdhttp.Response, error)) *Nominatim {
	testHttpClient := http.New(logger.New(slog.LevelDebug))
	testHttpClient.Transport = testhelper.MockRoundTripper{Fn: fn}
	return New(testHttpClient, language.English, 0)
}
