// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package gpsd

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"time"

	"github.com/stratoberry/go-gpsd"

	"github.com/wneessen/mapstate/internal/geobus"
)

const (
	name        = "gpsd"
	DefaultHost = "localhost"
	DefaultPort = "2947"
)

// ErrSessionEnded is returned by a watch when gpsd closed the connection.
var ErrSessionEnded = errors.New("gpsd session ended")

// Fix is a single TPV report reduced to what the bus needs.
type Fix struct {
	Lat  float64
	Lon  float64
	Alt  float64
	Acc  float64
	Mode gpsd.Mode
}

// GeolocationGPSDProvider streams TPV reports from a gpsd daemon. Lost sessions are
// re-established after period.
type GeolocationGPSDProvider struct {
	name    string
	addr    string
	period  time.Duration
	ttl     time.Duration
	watchFn func(ctx context.Context, fixes chan<- Fix) error
}

func NewGeolocationGPSDProvider(host, port string) *GeolocationGPSDProvider {
	if host == "" {
		host = DefaultHost
	}
	if port == "" {
		port = DefaultPort
	}
	provider := &GeolocationGPSDProvider{
		name:   name,
		addr:   net.JoinHostPort(host, port),
		period: time.Second * 30,
		ttl:    time.Minute * 2,
	}
	provider.watchFn = provider.watch
	return provider
}

func (p *GeolocationGPSDProvider) Name() string {
	return p.name
}

func (p *GeolocationGPSDProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)

	go func() {
		defer close(out)
		state := geobus.GeolocationState{}

		for {
			watchCtx, cancelWatch := context.WithCancel(ctx)
			fixes := make(chan Fix)
			done := make(chan error, 1)
			go func() {
				done <- p.watchFn(watchCtx, fixes)
			}()
			p.forward(ctx, key, fixes, done, &state, out)
			cancelWatch()

			select {
			case <-ctx.Done():
				return
			case <-time.After(p.period):
			}
		}
	}()

	return out
}

// forward emits fixes with at least a 2D fix until the watch ends or ctx is done.
func (p *GeolocationGPSDProvider) forward(ctx context.Context, key string, fixes <-chan Fix, done <-chan error,
	state *geobus.GeolocationState, out chan<- geobus.Result,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case fix := <-fixes:
			if fix.Mode < gpsd.Mode2D {
				continue
			}
			coord := geobus.Coordinate{
				Lat: geobus.Truncate(fix.Lat, geobus.TruncPrecision),
				Lon: geobus.Truncate(fix.Lon, geobus.TruncPrecision),
			}
			if !coord.Valid() || !state.HasChanged(coord) {
				continue
			}
			state.Update(coord)

			select {
			case <-ctx.Done():
				return
			case out <- p.createResult(key, coord, fix.Acc):
			}
		}
	}
}

// watch opens a gpsd session and pushes every TPV report into fixes until the session ends.
// go-gpsd has no way to close a session, so an abandoned session ends with the process.
func (p *GeolocationGPSDProvider) watch(ctx context.Context, fixes chan<- Fix) error {
	session, err := gpsd.Dial(p.addr)
	if err != nil {
		return fmt.Errorf("failed to connect to gpsd at %q: %w", p.addr, err)
	}
	session.AddFilter("TPV", func(r interface{}) {
		tpv, ok := r.(*gpsd.TPVReport)
		if !ok {
			return
		}
		fix := Fix{
			Lat:  tpv.Lat,
			Lon:  tpv.Lon,
			Alt:  tpv.Alt,
			Acc:  horizontalAccuracy(tpv.Epx, tpv.Epy, tpv.Mode),
			Mode: tpv.Mode,
		}
		select {
		case <-ctx.Done():
		case fixes <- fix:
		}
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-session.Watch():
		return ErrSessionEnded
	}
}

func (p *GeolocationGPSDProvider) createResult(key string, coord geobus.Coordinate, acc float64) geobus.Result {
	return geobus.Result{
		Key:            key,
		Lat:            coord.Lat,
		Lon:            coord.Lon,
		AccuracyMeters: acc,
		Source:         p.name,
		At:             time.Now(),
		TTL:            p.ttl,
	}
}

// horizontalAccuracy derives the horizontal error in meters from the longitude and latitude
// error estimates. Without estimates the typical error of the fix mode is used.
func horizontalAccuracy(epx, epy float64, mode gpsd.Mode) float64 {
	if epx > 0 && epy > 0 {
		return math.Hypot(epx, epy)
	}
	switch {
	case mode >= gpsd.Mode3D:
		return geobus.AccuracyGPS3D
	case mode == gpsd.Mode2D:
		return geobus.AccuracyGPS2D
	default:
		return geobus.AccuracyUnknown
	}
}
