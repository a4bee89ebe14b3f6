// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package mapstate keeps the location and address state of a map view. It mediates between a
// noisy location sensor, a rate limited geocoder and any number of observers.
//
// All state is owned by a single goroutine per Facade. Public methods, provider callbacks and
// results of background requests are events that are queued and applied in order by that
// goroutine. Observers receive an immutable MapViewState after every change.
package mapstate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wneessen/mapstate/internal/geobus"
	"github.com/wneessen/mapstate/internal/logger"
	"github.com/wneessen/mapstate/internal/metrics"
)

type regionSource int

const (
	regionFromLocation regionSource = iota
	regionFromPlace
)

// Facade composes location tracking, address resolution and nearby search into one state.
type Facade struct {
	log      *logger.Logger
	provider LocationProvider
	conf     Config
	metrics  *metrics.Metrics

	// ctx is the parent of all background work and is cancelled on Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	queue  []func()
	wakeup chan struct{}
	closed bool
	done   chan struct{}

	// Owned by the loop goroutine.
	tracker       locationTracker
	resolver      addressResolver
	search        searchCoordinator
	regionSrc     regionSource
	authSub       Subscription
	haveFix       bool
	firstFixCoord geobus.Coordinate
	exit          bool

	// firstFix is closed when the first fix was accepted.
	firstFix chan struct{}

	stateMu   sync.RWMutex
	published MapViewState

	states *broadcaster[MapViewState]
	errs   *broadcaster[error]
}

// Option configures optional dependencies of a Facade.
type Option func(*Facade)

// WithMetrics records metrics of the facade in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Facade) {
		f.metrics = m
	}
}

// New returns a running Facade for provider. Zero values in conf are replaced by the defaults.
// The Facade must be closed with Close.
func New(provider LocationProvider, log *logger.Logger, conf Config, opts ...Option) (*Facade, error) {
	if provider == nil {
		return nil, ErrProviderRequired
	}
	if log == nil {
		return nil, ErrLoggerRequired
	}

	conf = conf.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	f := &Facade{
		log:      log,
		provider: provider,
		conf:     conf,
		ctx:      ctx,
		cancel:   cancel,
		wakeup:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		firstFix: make(chan struct{}),
		tracker: locationTracker{
			status:      provider.AuthorizationStatus(),
			minInterval: conf.MinInterval,
			minDistance: conf.MinDistance,
		},
		resolver: addressResolver{address: AddressPending},
		states:   newBroadcaster[MapViewState](),
		errs:     newBroadcaster[error](),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.published = f.snapshot()
	f.authSub = provider.WatchAuthorization(func(status AuthorizationStatus) {
		f.post(func() { f.onAuthorizationChanged(status) })
	})

	go f.run()
	return f, nil
}

// RequestPermission asks the provider for location access unless access was already granted,
// refused or requested.
func (f *Facade) RequestPermission() error {
	return f.do(func() error {
		f.requestPermission()
		return nil
	})
}

// StartUpdates starts location updates. Without authorization it requests permission and
// returns nil, updates are not started automatically once permission is granted. If the
// permission was refused, ErrPermissionDenied is returned.
func (f *Facade) StartUpdates() error {
	return f.do(f.startUpdates)
}

// StopUpdates stops location updates and cancels pending address work.
func (f *Facade) StopUpdates() error {
	return f.do(func() error {
		f.stopUpdates()
		return nil
	})
}

// SetQuery sets the search query. A blank query clears results and selection.
func (f *Facade) SetQuery(text string) error {
	return f.do(func() error {
		f.setQuery(text)
		return nil
	})
}

// Search starts a nearby search for the current query right away.
func (f *Facade) Search() error {
	return f.do(func() error {
		f.runSearch()
		return nil
	})
}

// SelectPlace selects the search result with the given ID and centers the map on it.
func (f *Facade) SelectPlace(id uuid.UUID) error {
	return f.do(func() error {
		return f.selectPlace(id)
	})
}

// Clear empties the search results and the selection.
func (f *Facade) Clear() error {
	return f.do(func() error {
		f.clearSearch()
		return nil
	})
}

// RefreshAddress resolves the address of the current location again. The lookup is marked
// with IsRefresh.
func (f *Facade) RefreshAddress() error {
	return f.do(func() error {
		if f.tracker.current == nil {
			return ErrNoFix
		}
		f.resolve(*f.tracker.current, true)
		return nil
	})
}

// State returns the latest published state.
func (f *Facade) State() MapViewState {
	f.stateMu.RLock()
	defer f.stateMu.RUnlock()
	return f.published
}

// Subscribe returns a channel that receives the current state and then every changed state.
// Slow readers miss intermediate states but always get the latest one. The channel is closed
// by the returned function or by Close.
func (f *Facade) Subscribe(size int) (<-chan MapViewState, func()) {
	ch, unsub, ok := f.states.subscribe(size, f.State)
	if !ok {
		return ch, unsub
	}
	f.metrics.ObserverAdded()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			unsub()
			f.metrics.ObserverRemoved()
		})
	}
}

// SubscribeErrors returns a channel receiving reported errors. Errors never affect the caller
// of an operation, they end up here for logging or telemetry.
func (f *Facade) SubscribeErrors(size int) (<-chan error, func()) {
	ch, unsub, _ := f.errs.subscribe(size, nil)
	return ch, unsub
}

// WaitForFirstFix blocks until a first fix was accepted and returns it. A timeout <= 0 waits
// until ctx is done.
func (f *Facade) WaitForFirstFix(ctx context.Context, timeout time.Duration) (geobus.Coordinate, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	select {
	case <-f.firstFix:
		return f.firstFixCoord, nil
	default:
	}

	select {
	case <-f.firstFix:
		return f.firstFixCoord, nil
	case <-f.done:
		return geobus.Coordinate{}, ErrClosed
	case <-ctx.Done():
		return geobus.Coordinate{}, fmt.Errorf("%w: %w", ErrNoFix, ctx.Err())
	}
}

// Close stops updates, cancels all pending work and closes all observer channels. Events
// queued before Close are still applied. Close waits for the owner goroutine to exit.
func (f *Facade) Close() error {
	f.mu.Lock()
	if !f.closed {
		f.closed = true
		f.queue = append(f.queue, f.teardown)
		f.wake()
	}
	f.mu.Unlock()
	<-f.done
	return nil
}

func (f *Facade) run() {
	defer close(f.done)
	for range f.wakeup {
		for {
			event, ok := f.next()
			if !ok {
				break
			}
			event()
			if f.exit {
				return
			}
			f.publish()
		}
	}
}

func (f *Facade) teardown() {
	f.stopUpdates()
	f.cancelSearch()
	if f.authSub != nil {
		f.authSub.Cancel()
	}
	f.cancel()
	f.states.close()
	f.errs.close()
	f.exit = true
	f.log.Debug("map state closed")
}

// post queues event for the owner goroutine. It returns false if the Facade is closed.
func (f *Facade) post(event func()) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.queue = append(f.queue, event)
	f.wake()
	return true
}

// do runs fn on the owner goroutine and waits for its result. The resulting state is
// published before do returns.
func (f *Facade) do(fn func() error) error {
	result := make(chan error, 1)
	if !f.post(func() {
		err := fn()
		if !f.exit {
			f.publish()
		}
		result <- err
	}) {
		return ErrClosed
	}
	return <-result
}

func (f *Facade) next() (func(), bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, false
	}
	event := f.queue[0]
	f.queue[0] = nil
	f.queue = f.queue[1:]
	return event, true
}

// wake signals the owner goroutine. Must be called with mu held.
func (f *Facade) wake() {
	select {
	case f.wakeup <- struct{}{}:
	default:
	}
}

func (f *Facade) publish() {
	next := f.snapshot()
	f.stateMu.Lock()
	if f.published.Equal(next) {
		f.stateMu.Unlock()
		return
	}
	f.published = next
	f.stateMu.Unlock()
	f.states.send(next)
}

func (f *Facade) snapshot() MapViewState {
	t, r, s := &f.tracker, &f.resolver, &f.search
	state := MapViewState{
		Location: LocationSnapshot{
			AuthorizationStatus: t.status,
			UpdatesActive:       t.active,
			LastAcceptedAt:      t.lastAt,
		},
		Address: AddressSnapshot{
			Address:   r.address,
			Resolving: r.resolving,
		},
		Search: SearchSnapshot{
			Query:   s.query,
			Results: slices.Clone(s.results),
			State:   s.state(),
			Failed:  s.failed,
		},
		Region: f.region(),
	}
	if t.current != nil {
		coord := *t.current
		state.Location.CurrentLocation = &coord
	}
	if s.selected != nil {
		place := *s.selected
		state.Search.SelectedPlace = &place
	}
	return state
}

// region centers on the selected place if it was selected after the last accepted fix,
// otherwise on the current location.
func (f *Facade) region() Region {
	if f.regionSrc == regionFromPlace && f.search.selected != nil {
		return Region{Center: f.search.selected.Coordinate(), Span: PlaceSpan}
	}
	if f.tracker.current != nil {
		return Region{Center: *f.tracker.current, Span: LocationSpan}
	}
	return Region{Center: DefaultCenter, Span: LocationSpan}
}

// report sends err to the error observers.
func (f *Facade) report(err error) {
	kind := errorKind(err)
	f.metrics.Error(kind)
	f.log.Error("map state error", slog.String("kind", kind), logger.Err(err))
	f.errs.send(err)
}

func errorKind(err error) string {
	var geocodingErr *GeocodingError
	var searchErr *SearchError
	switch {
	case errors.As(err, &geocodingErr):
		return "geocoding"
	case errors.As(err, &searchErr):
		return "search"
	case errors.Is(err, ErrPermissionDenied):
		return "permission"
	case errors.Is(err, ErrProviderUnavailable):
		return "provider"
	case errors.Is(err, ErrLocationUnknown):
		return "location"
	default:
		return "other"
	}
}
