// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapstate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/wneessen/mapstate/internal/geobus"
	"github.com/wneessen/mapstate/internal/job"
	"github.com/wneessen/mapstate/internal/metrics"
)

// addressResolver is the state of the address resolution. At most one resolution is in flight,
// a new one cancels the previous one. Only accessed by the owner goroutine.
type addressResolver struct {
	address   string
	resolving bool
	seq       uint64
	cancel    context.CancelFunc

	stopRefresh func()
}

type refreshKey struct{}

// IsRefresh reports whether ctx belongs to a re-resolution of an already resolved location,
// started by the periodic refresh or RefreshAddress. Providers that cache addresses should
// skip their cache for these lookups.
func IsRefresh(ctx context.Context) bool {
	refresh, _ := ctx.Value(refreshKey{}).(bool)
	return refresh
}

// resolve reverse geocodes coord in the background. The result is applied by onResolved unless
// a newer resolution or stopUpdates superseded it.
func (f *Facade) resolve(coord geobus.Coordinate, refresh bool) {
	r := &f.resolver
	if r.cancel != nil {
		r.cancel()
		f.metrics.Geocode(metrics.ResultSuperseded)
	}
	r.seq++
	seq := r.seq
	ctx, cancel := context.WithTimeout(f.ctx, f.conf.NetworkTimeout)
	if refresh {
		ctx = context.WithValue(ctx, refreshKey{}, true)
	}
	r.cancel = cancel
	r.resolving = true

	go func() {
		defer cancel()
		start := time.Now()
		address, err := f.provider.ReverseGeocode(ctx, coord)
		f.metrics.ObserveRequest("geocode", time.Since(start).Seconds())
		f.post(func() { f.onResolved(seq, coord, address, err) })
	}()
}

func (f *Facade) onResolved(seq uint64, coord geobus.Coordinate, address string, err error) {
	r := &f.resolver
	if seq != r.seq {
		f.log.Debug("dropping superseded address", slog.String("coordinate", coord.String()))
		return
	}
	r.cancel = nil
	r.resolving = false

	switch {
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		r.address = AddressUnavailable
		f.metrics.Geocode(metrics.ResultFailure)
		f.report(&GeocodingError{Cause: err})
	case strings.TrimSpace(address) == "":
		r.address = AddressUnavailable
		f.metrics.Geocode(metrics.ResultFailure)
		f.report(&GeocodingError{Cause: ErrNoAddress})
	default:
		r.address = address
		f.metrics.Geocode(metrics.ResultSuccess)
		f.log.Debug("resolved address", slog.String("coordinate", coord.String()),
			slog.String("address", address))
	}
}

// cancelResolve cancels the in-flight resolution. Its result will be dropped.
func (f *Facade) cancelResolve() {
	r := &f.resolver
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.seq++
	r.resolving = false
}

// startRefresh re-resolves the current location every refresh interval for as long as the
// location subscription gen is active.
func (f *Facade) startRefresh(gen uint64) {
	f.stopRefresh()
	refresh := job.New(f.conf.RefreshInterval, func(context.Context) {
		f.post(func() { f.onRefresh(gen) })
	})
	f.resolver.stopRefresh = refresh.Go(f.ctx)
}

func (f *Facade) stopRefresh() {
	if f.resolver.stopRefresh != nil {
		f.resolver.stopRefresh()
		f.resolver.stopRefresh = nil
	}
}

func (f *Facade) onRefresh(gen uint64) {
	t := &f.tracker
	if gen != t.gen || !t.active || t.current == nil {
		return
	}
	f.log.Debug("refreshing address of current location")
	f.resolve(*t.current, true)
}
