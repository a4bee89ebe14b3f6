// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapstate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"testing/synctest"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wneessen/mapstate/internal/geobus"
	"github.com/wneessen/mapstate/internal/metrics"
)

func TestNew(t *testing.T) {
	t.Run("new map state succeeds", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := newFakeProvider(AuthorizedAlways)
			facade := testFacade(t, provider, Config{})
			defer closeFacade(t, facade)

			state := facade.State()
			if state.Location.CurrentLocation != nil {
				t.Error("expected no current location")
			}
			if state.Location.AuthorizationStatus != AuthorizedAlways {
				t.Errorf("expected status to be %s, got %s", AuthorizedAlways, state.Location.AuthorizationStatus)
			}
			if state.Address.Address != AddressPending {
				t.Errorf("expected address to be %q, got %q", AddressPending, state.Address.Address)
			}
			if state.Region != (Region{Center: DefaultCenter, Span: LocationSpan}) {
				t.Errorf("expected default region, got %+v", state.Region)
			}
			if state.Search.State != SearchIdle {
				t.Errorf("expected search state to be %s, got %s", SearchIdle, state.Search.State)
			}
		})
	})
	t.Run("new map state without provider fails", func(t *testing.T) {
		_, err := New(nil, testLogger(), Config{})
		if !errors.Is(err, ErrProviderRequired) {
			t.Errorf("expected error to be %s, got %s", ErrProviderRequired, err)
		}
	})
	t.Run("new map state without logger fails", func(t *testing.T) {
		_, err := New(newFakeProvider(NotDetermined), nil, Config{})
		if !errors.Is(err, ErrLoggerRequired) {
			t.Errorf("expected error to be %s, got %s", ErrLoggerRequired, err)
		}
	})
}

func TestConfig_withDefaults(t *testing.T) {
	conf := Config{SearchDebounce: -time.Second, MinDistance: 10}.withDefaults()
	def := DefaultConfig()
	if conf.MinInterval != def.MinInterval {
		t.Errorf("expected min interval to be %s, got %s", def.MinInterval, conf.MinInterval)
	}
	if conf.MinDistance != 10 {
		t.Errorf("expected min distance to be kept at 10, got %f", conf.MinDistance)
	}
	if conf.SearchDebounce != 0 {
		t.Errorf("expected negative debounce to disable debouncing, got %s", conf.SearchDebounce)
	}
	if conf.MaxResults != 20 || conf.SearchRadius != 1000 || conf.RefreshInterval != time.Second*30 ||
		conf.NetworkTimeout != time.Second*30 {
		t.Errorf("unexpected defaults: %+v", conf)
	}
}

func TestConfig_withDefaults_disabledFilters(t *testing.T) {
	conf := Config{NoMinInterval: true, NoMinDistance: true, MinInterval: time.Minute, MinDistance: 10}.withDefaults()
	if conf.MinInterval != 0 {
		t.Errorf("expected min interval to be disabled, got %s", conf.MinInterval)
	}
	if conf.MinDistance != 0 {
		t.Errorf("expected min distance to be disabled, got %f", conf.MinDistance)
	}
}

func TestFacade_Subscribe(t *testing.T) {
	t.Run("subscriber receives the current state and changes", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := newFakeProvider(AuthorizedWhenInUse)
			facade := startedFacade(t, provider, Config{})
			defer closeFacade(t, facade)

			states, unsub := facade.Subscribe(10)
			defer unsub()

			initial := <-states
			if !initial.Equal(facade.State()) {
				t.Errorf("expected current state first, got %+v", initial)
			}

			provider.deliver(Fix{Coordinate: sanFrancisco})
			synctest.Wait()

			var last MapViewState
			for len(states) > 0 {
				last = <-states
			}
			if last.Location.CurrentLocation == nil || !last.Location.CurrentLocation.Equal(sanFrancisco) {
				t.Errorf("expected location update, got %+v", last.Location)
			}
			if last.Address.Address != addressOf(sanFrancisco) {
				t.Errorf("expected resolved address, got %q", last.Address.Address)
			}
		})
	})
	t.Run("unchanged state is not delivered again", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := newFakeProvider(AuthorizedWhenInUse)
			facade := startedFacade(t, provider, Config{})
			defer closeFacade(t, facade)

			states, unsub := facade.Subscribe(10)
			defer unsub()
			<-states

			_ = facade.StartUpdates()
			_ = facade.RequestPermission()
			synctest.Wait()
			if len(states) != 0 {
				t.Errorf("expected no state for no-op operations, got %d", len(states))
			}
		})
	})
	t.Run("slow subscriber gets the latest state", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := newFakeProvider(AuthorizedWhenInUse)
			facade := testFacade(t, provider, Config{})
			defer closeFacade(t, facade)

			states, unsub := facade.Subscribe(1)
			defer unsub()

			for _, query := range []string{"a", "ab", "abc"} {
				_ = facade.SetQuery(query)
			}
			if len(states) != 1 {
				t.Fatalf("expected one buffered state, got %d", len(states))
			}
			if got := (<-states).Search.Query; got != "abc" {
				t.Errorf("expected latest query abc, got %q", got)
			}
		})
	})
	t.Run("unsubscribe closes the channel", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			facade := testFacade(t, newFakeProvider(NotDetermined), Config{})
			defer closeFacade(t, facade)

			states, unsub := facade.Subscribe(1)
			<-states
			unsub()
			unsub()
			if _, ok := <-states; ok {
				t.Error("expected channel to be closed")
			}
			if n := facade.states.len(); n != 0 {
				t.Errorf("expected no subscribers, got %d", n)
			}
		})
	})
}

func TestFacade_WaitForFirstFix(t *testing.T) {
	t.Run("wait returns the first accepted fix", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			provider := newFakeProvider(AuthorizedWhenInUse)
			facade := startedFacade(t, provider, Config{})
			defer closeFacade(t, facade)

			go func() {
				time.Sleep(time.Second * 3)
				provider.deliver(Fix{Coordinate: geobus.Coordinate{Lat: 95}})
				provider.deliver(Fix{Coordinate: sanFrancisco})
			}()
			start := time.Now()
			coord, err := facade.WaitForFirstFix(t.Context(), time.Second*10)
			if err != nil {
				t.Fatalf("failed to wait for first fix: %s", err)
			}
			if !coord.Equal(sanFrancisco) {
				t.Errorf("expected first fix to be %s, got %s", sanFrancisco, coord)
			}
			if elapsed := time.Since(start); elapsed != time.Second*3 {
				t.Errorf("expected wait to end with the fix after 3s, got %s", elapsed)
			}

			coord, err = facade.WaitForFirstFix(t.Context(), time.Nanosecond)
			if err != nil || !coord.Equal(sanFrancisco) {
				t.Errorf("expected later waits to return at once, got %s, %v", coord, err)
			}
		})
	})
	t.Run("wait times out", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			facade := startedFacade(t, newFakeProvider(AuthorizedWhenInUse), Config{})
			defer closeFacade(t, facade)

			_, err := facade.WaitForFirstFix(t.Context(), time.Second*5)
			if !errors.Is(err, ErrNoFix) || !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected error to be %s and %s, got %s", ErrNoFix, context.DeadlineExceeded, err)
			}
		})
	})
	t.Run("wait ends on close", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			facade := startedFacade(t, newFakeProvider(AuthorizedWhenInUse), Config{})
			go func() {
				time.Sleep(time.Second)
				_ = facade.Close()
			}()
			if _, err := facade.WaitForFirstFix(t.Context(), 0); !errors.Is(err, ErrClosed) {
				t.Errorf("expected error to be %s, got %s", ErrClosed, err)
			}
		})
	})
}

func TestFacade_Close(t *testing.T) {
	t.Run("close cancels everything", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			var geocodeCancelled, searchCancelled atomic.Bool
			provider := newFakeProvider(AuthorizedWhenInUse)
			provider.geocodeFn = func(ctx context.Context, _ geobus.Coordinate) (string, error) {
				<-ctx.Done()
				geocodeCancelled.Store(true)
				return "", ctx.Err()
			}
			provider.searchFn = func(ctx context.Context, _ string) ([]SearchResult, error) {
				<-ctx.Done()
				searchCancelled.Store(true)
				return nil, ctx.Err()
			}
			facade := startedFacade(t, provider, Config{SearchDebounce: time.Second})
			states, _ := facade.Subscribe(10)
			errs, _ := facade.SubscribeErrors(10)

			provider.deliver(Fix{Coordinate: sanFrancisco})
			_ = facade.SetQuery("coffee")
			_ = facade.Search()
			_ = facade.SetQuery("tea")
			synctest.Wait()

			if err := facade.Close(); err != nil {
				t.Fatalf("failed to close: %s", err)
			}
			if err := facade.Close(); err != nil {
				t.Fatalf("failed to close twice: %s", err)
			}
			time.Sleep(time.Minute)
			provider.deliver(Fix{Coordinate: north(sanFrancisco, 500)})
			synctest.Wait()

			if !geocodeCancelled.Load() || !searchCancelled.Load() {
				t.Error("expected pending requests to be cancelled")
			}
			provider.mu.Lock()
			cancellations, watchers := provider.cancellations, len(provider.watchers)
			provider.mu.Unlock()
			if cancellations != 1 {
				t.Errorf("expected location subscription to be cancelled, got %d", cancellations)
			}
			if watchers != 0 {
				t.Errorf("expected authorization watcher to be removed, got %d", watchers)
			}
			if _, searches := provider.counts(); searches != 1 {
				t.Errorf("expected debounced search not to run after close, got %d searches", searches)
			}
			for range states {
			}
			for err := range errs {
				t.Errorf("expected no reported error, got %s", err)
			}
		})
	})
	t.Run("operations fail after close", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			facade := testFacade(t, newFakeProvider(AuthorizedWhenInUse), Config{})
			_ = facade.Close()

			ops := map[string]func() error{
				"RequestPermission": facade.RequestPermission,
				"StartUpdates":      facade.StartUpdates,
				"StopUpdates":       facade.StopUpdates,
				"SetQuery":          func() error { return facade.SetQuery("coffee") },
				"Search":            facade.Search,
				"SelectPlace":       func() error { return facade.SelectPlace(uuid.Nil) },
				"Clear":             facade.Clear,
				"RefreshAddress":    facade.RefreshAddress,
			}
			for name, op := range ops {
				if err := op(); !errors.Is(err, ErrClosed) {
					t.Errorf("expected %s to fail with %s, got %v", name, ErrClosed, err)
				}
			}
			states, _ := facade.Subscribe(1)
			if _, ok := <-states; ok {
				t.Error("expected subscription after close to be closed")
			}
		})
	})
}

func TestFacade_metrics(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		reg := prometheus.NewRegistry()
		m := metrics.New(reg)
		provider := newFakeProvider(AuthorizedWhenInUse)
		facade, err := New(provider, testLogger(), Config{}, WithMetrics(m))
		if err != nil {
			t.Fatalf("failed to create map state: %s", err)
		}
		defer closeFacade(t, facade)
		_ = facade.StartUpdates()
		_, unsub := facade.Subscribe(1)

		provider.deliver(Fix{Coordinate: sanFrancisco})
		synctest.Wait()
		provider.deliver(Fix{Coordinate: north(sanFrancisco, 1)})
		synctest.Wait()

		if got := testutil.ToFloat64(m.Fixes.WithLabelValues(metrics.ResultAccepted)); got != 1 {
			t.Errorf("expected 1 accepted fix, got %f", got)
		}
		if got := testutil.ToFloat64(m.Fixes.WithLabelValues(metrics.ResultInterval)); got != 1 {
			t.Errorf("expected 1 fix rejected by interval, got %f", got)
		}
		if got := testutil.ToFloat64(m.Geocodes.WithLabelValues(metrics.ResultSuccess)); got != 1 {
			t.Errorf("expected 1 successful geocode, got %f", got)
		}
		if got := testutil.ToFloat64(m.Observers); got != 1 {
			t.Errorf("expected 1 observer, got %f", got)
		}
		unsub()
		if got := testutil.ToFloat64(m.Observers); got != 0 {
			t.Errorf("expected no observer, got %f", got)
		}
	})
}

func TestFacade_SubscribeAfterClose(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		m := metrics.New(prometheus.NewRegistry())
		facade, err := New(newFakeProvider(AuthorizedWhenInUse), testLogger(), Config{}, WithMetrics(m))
		if err != nil {
			t.Fatalf("failed to create map state: %s", err)
		}
		if err = facade.Close(); err != nil {
			t.Fatalf("failed to close map state: %s", err)
		}

		for range 3 {
			states, _ := facade.Subscribe(1)
			if _, ok := <-states; ok {
				t.Fatal("expected state channel of a closed map state to be closed")
			}
		}
		if got := testutil.ToFloat64(m.Observers); got != 0 {
			t.Errorf("expected late subscriptions not to be counted, got %f observers", got)
		}
	})
}

func TestNewPlace(t *testing.T) {
	coord := geobus.Coordinate{Lat: 37.77493012345678, Lon: -122.41941598765432}
	place := newPlace("City Hall", "1 Dr Carlton B Goodlett Pl", coord)
	if place.Coordinate() != coord {
		t.Errorf("expected coordinate to be %v, got %v", coord, place.Coordinate())
	}
	if place.Name() != "City Hall" || place.Address() != "1 Dr Carlton B Goodlett Pl" {
		t.Errorf("unexpected place: %+v", place)
	}
	other := newPlace("City Hall", "1 Dr Carlton B Goodlett Pl", coord)
	if place.ID() == other.ID() {
		t.Error("expected places to have distinct IDs")
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{ErrPermissionDenied, true},
		{ErrLocationUnknown, true},
		{fmt.Errorf("gps: %w", ErrLocationUnknown), true},
		{ErrProviderUnavailable, false},
		{errors.New("no signal"), false},
		{nil, false},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprint(tc.err), func(t *testing.T) {
			if got := IsPermanent(tc.err); got != tc.want {
				t.Errorf("expected IsPermanent to be %t, got %t", tc.want, got)
			}
		})
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&GeocodingError{Cause: ErrNoAddress}, "geocoding"},
		{&SearchError{Query: "coffee", Cause: errors.New("boom")}, "search"},
		{ErrPermissionDenied, "permission"},
		{fmt.Errorf("subscribe: %w", ErrProviderUnavailable), "provider"},
		{ErrLocationUnknown, "location"},
		{errors.New("boom"), "other"},
	}
	for _, tc := range tests {
		if got := errorKind(tc.err); got != tc.want {
			t.Errorf("expected kind of %s to be %s, got %s", tc.err, tc.want, got)
		}
	}
}

func TestAuthorizationStatus(t *testing.T) {
	tests := []struct {
		status     AuthorizationStatus
		name       string
		authorized bool
		refused    bool
	}{
		{NotDetermined, "not determined", false, false},
		{Denied, "denied", false, true},
		{Restricted, "restricted", false, true},
		{AuthorizedWhenInUse, "authorized when in use", true, false},
		{AuthorizedAlways, "authorized always", true, false},
		{AuthorizationStatus(42), "unknown", false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.status.String() != tc.name {
				t.Errorf("expected name to be %s, got %s", tc.name, tc.status.String())
			}
			if tc.status.Authorized() != tc.authorized {
				t.Errorf("expected authorized to be %t", tc.authorized)
			}
			if tc.status.Refused() != tc.refused {
				t.Errorf("expected refused to be %t", tc.refused)
			}
		})
	}
}

func TestMapViewState_Equal(t *testing.T) {
	coord := sanFrancisco
	place := newPlace("Cafe", "Street 1", coord)
	base := MapViewState{
		Location: LocationSnapshot{CurrentLocation: &coord},
		Search:   SearchSnapshot{Results: []Place{place}, SelectedPlace: &place},
	}
	same := base
	otherCoord, otherPlace := coord, place
	same.Location.CurrentLocation = &otherCoord
	same.Search.SelectedPlace = &otherPlace
	same.Search.Results = []Place{place}
	if !base.Equal(same) {
		t.Error("expected states with equal values to be equal")
	}

	moved := base
	movedCoord := north(coord, 1)
	moved.Location.CurrentLocation = &movedCoord
	if base.Equal(moved) {
		t.Error("expected states with different locations to differ")
	}
	noSelection := base
	noSelection.Search.SelectedPlace = nil
	if base.Equal(noSelection) {
		t.Error("expected states with different selections to differ")
	}
	nan := MapViewState{Region: Region{Span: math.NaN()}}
	if nan.Equal(nan) {
		t.Error("expected NaN span never to be equal")
	}
}

func TestBroadcaster(t *testing.T) {
	b := newBroadcaster[int]()
	ch, unsub, ok := b.subscribe(2, func() int { return 0 })
	if !ok {
		t.Fatal("expected subscription to be registered")
	}
	for i := 1; i <= 5; i++ {
		b.send(i)
	}
	if got := []int{<-ch, <-ch}; got[0] != 4 || got[1] != 5 {
		t.Errorf("expected the two latest values 4 and 5, got %v", got)
	}
	unsub()
	b.send(6)
	b.close()
	b.close()
	if _, ok := <-ch; ok {
		t.Error("expected channel to be closed")
	}

	late, lateUnsub, ok := b.subscribe(1, func() int { return 7 })
	if ok {
		t.Error("expected subscription after close not to be registered")
	}
	if _, open := <-late; open {
		t.Error("expected channel of a late subscription to be closed")
	}
	lateUnsub()
}
