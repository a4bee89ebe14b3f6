// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapstate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"

	"github.com/wneessen/mapstate/internal/geobus"
	"github.com/wneessen/mapstate/internal/logger"
)

var sanFrancisco = geobus.Coordinate{Lat: 37.7749, Lon: -122.4194}

// fakeProvider is a LocationProvider controlled by the tests.
type fakeProvider struct {
	mu sync.Mutex

	status             AuthorizationStatus
	grant              AuthorizationStatus
	permissionRequests int
	watchers           map[int]func(AuthorizationStatus)
	nextWatcher        int

	subscribeErr  error
	subscriptions int
	cancellations int
	onFix         func([]Fix)
	onError       func(error)

	geocodeFn    func(ctx context.Context, coord geobus.Coordinate) (string, error)
	geocodeCalls int

	searchFn    func(ctx context.Context, query string) ([]SearchResult, error)
	searchCalls int
	lastQuery   string
	lastCenter  geobus.Coordinate
	lastRadius  float64
}

func newFakeProvider(status AuthorizationStatus) *fakeProvider {
	return &fakeProvider{
		status:   status,
		watchers: make(map[int]func(AuthorizationStatus)),
	}
}

func (p *fakeProvider) RequestPermission() {
	p.mu.Lock()
	p.permissionRequests++
	grant := p.grant
	p.mu.Unlock()
	if grant != NotDetermined {
		p.setAuthorization(grant)
	}
}

func (p *fakeProvider) AuthorizationStatus() AuthorizationStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *fakeProvider) WatchAuthorization(fn func(AuthorizationStatus)) Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextWatcher
	p.nextWatcher++
	p.watchers[id] = fn
	return SubscriptionFunc(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.watchers, id)
	})
}

// setAuthorization changes the status and notifies all watchers.
func (p *fakeProvider) setAuthorization(status AuthorizationStatus) {
	p.mu.Lock()
	p.status = status
	watchers := make([]func(AuthorizationStatus), 0, len(p.watchers))
	for _, fn := range p.watchers {
		watchers = append(watchers, fn)
	}
	p.mu.Unlock()
	for _, fn := range watchers {
		fn(status)
	}
}

func (p *fakeProvider) SubscribeLocationUpdates(onFix func([]Fix), onError func(error)) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.subscribeErr != nil {
		return nil, p.subscribeErr
	}
	p.subscriptions++
	p.onFix = onFix
	p.onError = onError
	return SubscriptionFunc(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.cancellations++
	}), nil
}

// deliver hands fixes to the latest location callback, also after it was cancelled.
func (p *fakeProvider) deliver(fixes ...Fix) {
	p.mu.Lock()
	onFix := p.onFix
	p.mu.Unlock()
	if onFix != nil {
		onFix(fixes)
	}
}

func (p *fakeProvider) deliverError(err error) {
	p.mu.Lock()
	onError := p.onError
	p.mu.Unlock()
	if onError != nil {
		onError(err)
	}
}

func (p *fakeProvider) ReverseGeocode(ctx context.Context, coord geobus.Coordinate) (string, error) {
	p.mu.Lock()
	p.geocodeCalls++
	fn := p.geocodeFn
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, coord)
	}
	return addressOf(coord), nil
}

func (p *fakeProvider) SearchNearby(ctx context.Context, query string, center geobus.Coordinate, radius float64) ([]SearchResult, error) {
	p.mu.Lock()
	p.searchCalls++
	p.lastQuery = query
	p.lastCenter = center
	p.lastRadius = radius
	fn := p.searchFn
	p.mu.Unlock()
	if fn != nil {
		return fn(ctx, query)
	}
	return coffeeResults(), nil
}

func (p *fakeProvider) counts() (geocodes, searches int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.geocodeCalls, p.searchCalls
}

func addressOf(coord geobus.Coordinate) string {
	return fmt.Sprintf("Street at %s", coord)
}

func coffeeResults() []SearchResult {
	return []SearchResult{
		{Name: "Blue Bottle Coffee", Address: "66 Mint St", Coordinate: geobus.Coordinate{Lat: 37.7823, Lon: -122.4078}},
		{Name: "Sightglass Coffee", Address: "270 7th St", Coordinate: geobus.Coordinate{Lat: 37.776, Lon: -122.423}},
	}
}

// north returns the coordinate meters north of c.
func north(c geobus.Coordinate, meters float64) geobus.Coordinate {
	return geobus.Coordinate{Lat: c.Lat + meters/(geobus.EarthRadius*math.Pi/180), Lon: c.Lon}
}

func testLogger() *logger.Logger {
	return logger.NewLogger(slog.LevelDebug, io.Discard)
}

func testFacade(t *testing.T, provider *fakeProvider, conf Config) *Facade {
	t.Helper()
	facade, err := New(provider, testLogger(), conf)
	if err != nil {
		t.Fatalf("failed to create map state: %s", err)
	}
	return facade
}

// startedFacade returns a facade with active location updates.
func startedFacade(t *testing.T, provider *fakeProvider, conf Config) *Facade {
	t.Helper()
	provider.status = AuthorizedWhenInUse
	facade := testFacade(t, provider, conf)
	if err := facade.StartUpdates(); err != nil {
		t.Fatalf("failed to start updates: %s", err)
	}
	return facade
}

func closeFacade(t *testing.T, f *Facade) {
	t.Helper()
	if err := f.Close(); err != nil {
		t.Errorf("failed to close map state: %s", err)
	}
}

func currentLocation(t *testing.T, f *Facade) geobus.Coordinate {
	t.Helper()
	loc := f.State().Location.CurrentLocation
	if loc == nil {
		t.Fatal("expected current location to be set")
	}
	return *loc
}
