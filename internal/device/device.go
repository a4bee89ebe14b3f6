// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package device provides the location capability of the local machine. Fixes are collected by a
// geobus orchestrator from the configured fix sources, addresses and places come from a geocoder.
package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/wneessen/mapstate/internal/config"
	"github.com/wneessen/mapstate/internal/geobus"
	"github.com/wneessen/mapstate/internal/geocode"
	"github.com/wneessen/mapstate/internal/logger"
	"github.com/wneessen/mapstate/internal/mapstate"
)

const (
	busKey        = "device"
	busBufferSize = 32
)

var (
	ErrGeocoderRequired = errors.New("geocoder is required")
	ErrSearcherRequired = errors.New("searcher is required")
	ErrAddressNotFound  = errors.New("address not found")
)

// Provider implements mapstate.LocationProvider on top of a GeoBus.
type Provider struct {
	log      *logger.Logger
	bus      *geobus.GeoBus
	sources  []geobus.Provider
	geocoder geocode.Geocoder
	searcher geocode.Searcher
	prompt   bool

	mu         sync.Mutex
	status     mapstate.AuthorizationStatus
	watchers   map[int]func(mapstate.AuthorizationStatus)
	nextWatch  int
	requesting bool
}

// New returns a Provider using the given fix sources. mode is one of the config.Auth* modes.
func New(log *logger.Logger, sources []geobus.Provider, geocoder geocode.Geocoder, searcher geocode.Searcher,
	mode string,
) (*Provider, error) {
	if geocoder == nil {
		return nil, ErrGeocoderRequired
	}
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	status, err := StatusFromMode(mode)
	if err != nil {
		return nil, err
	}
	bus, err := geobus.New(log)
	if err != nil {
		return nil, fmt.Errorf("failed to create geobus: %w", err)
	}

	return &Provider{
		log:      log,
		bus:      bus,
		sources:  sources,
		geocoder: geocoder,
		searcher: searcher,
		prompt:   mode == config.AuthPrompt,
		status:   status,
		watchers: make(map[int]func(mapstate.AuthorizationStatus)),
	}, nil
}

// StatusFromMode returns the initial authorization status of a configured mode.
func StatusFromMode(mode string) (mapstate.AuthorizationStatus, error) {
	switch mode {
	case config.AuthPrompt:
		return mapstate.NotDetermined, nil
	case config.AuthWhenInUse:
		return mapstate.AuthorizedWhenInUse, nil
	case config.AuthAlways:
		return mapstate.AuthorizedAlways, nil
	case config.AuthDenied:
		return mapstate.Denied, nil
	case config.AuthRestricted:
		return mapstate.Restricted, nil
	default:
		return mapstate.NotDetermined, fmt.Errorf("unknown authorization mode: %s", mode)
	}
}

// RequestPermission grants access in prompt mode. The new status is delivered to the watchers
// asynchronously. In all other modes the status is fixed and the request is ignored.
func (p *Provider) RequestPermission() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.prompt || p.status != mapstate.NotDetermined || p.requesting {
		return
	}
	p.requesting = true
	go p.setAuthorization(mapstate.AuthorizedWhenInUse)
}

func (p *Provider) AuthorizationStatus() mapstate.AuthorizationStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// Revoke sets the status to denied, as if the user withdrew location access.
func (p *Provider) Revoke() {
	p.setAuthorization(mapstate.Denied)
}

func (p *Provider) WatchAuthorization(fn func(mapstate.AuthorizationStatus)) mapstate.Subscription {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextWatch
	p.nextWatch++
	p.watchers[id] = fn
	return mapstate.SubscriptionFunc(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.watchers, id)
	})
}

func (p *Provider) setAuthorization(status mapstate.AuthorizationStatus) {
	p.mu.Lock()
	p.requesting = false
	if p.status == status {
		p.mu.Unlock()
		return
	}
	p.status = status
	watchers := make([]func(mapstate.AuthorizationStatus), 0, len(p.watchers))
	for _, fn := range p.watchers {
		watchers = append(watchers, fn)
	}
	p.mu.Unlock()

	p.log.Info("location authorization changed", slog.String("status", status.String()))
	for _, fn := range watchers {
		fn(status)
	}
}

// SubscribeLocationUpdates starts tracking all fix sources. Every result that makes it through
// the bus is handed to onFix, failing sources are reported to onError.
func (p *Provider) SubscribeLocationUpdates(onFix func([]mapstate.Fix), onError func(error)) (mapstate.Subscription, error) {
	if len(p.sources) == 0 {
		return nil, mapstate.ErrProviderUnavailable
	}
	if p.AuthorizationStatus().Refused() {
		return nil, mapstate.ErrPermissionDenied
	}

	ctx, cancel := context.WithCancel(context.Background())
	results, unsub := p.bus.Subscribe(busKey, busBufferSize)
	orchestrator := p.bus.NewOrchestrator(p.sources)
	orchestrator.OnError = func(source string, err error) {
		onError(fmt.Errorf("fix source %s: %w", source, err))
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		orchestrator.Track(ctx, busKey)
	}()
	go func() {
		defer wg.Done()
		for r := range results {
			p.log.Debug("received fix", slog.String("source", r.Source), slog.Float64("lat", r.Lat),
				slog.Float64("lon", r.Lon), slog.Float64("accuracy", r.AccuracyMeters))
			onFix([]mapstate.Fix{{Coordinate: r.Coordinate(), Accuracy: r.AccuracyMeters, At: r.At}})
		}
	}()

	return mapstate.SubscriptionFunc(func() {
		cancel()
		unsub()
		wg.Wait()
	}), nil
}

// ReverseGeocode returns the formatted address of coord. Refresh lookups bypass the geocoder
// cache.
func (p *Provider) ReverseGeocode(ctx context.Context, coord geobus.Coordinate) (string, error) {
	if mapstate.IsRefresh(ctx) {
		ctx = geocode.BypassCache(ctx)
	}
	addr, err := p.geocoder.Reverse(ctx, coord)
	if err != nil {
		return "", fmt.Errorf("%s: %w", p.geocoder.Name(), err)
	}
	if !addr.AddressFound {
		return "", ErrAddressNotFound
	}
	p.log.Debug("address resolved", slog.String("geocoder", p.geocoder.Name()),
		slog.Bool("cache_hit", addr.CacheHit))
	return addr.Format(), nil
}

func (p *Provider) SearchNearby(ctx context.Context, query string, center geobus.Coordinate,
	radius float64,
) ([]mapstate.SearchResult, error) {
	places, err := p.searcher.SearchNearby(ctx, query, center, radius)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.searcher.Name(), err)
	}
	results := make([]mapstate.SearchResult, len(places))
	for i, place := range places {
		results[i] = mapstate.SearchResult{
			Name:       place.Name,
			Address:    place.Address,
			Coordinate: place.Coordinate,
		}
	}
	return results, nil
}
