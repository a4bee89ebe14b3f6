// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapstate

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/mapstate/internal/geobus"
	"github.com/wneessen/mapstate/internal/logger"
	"github.com/wneessen/mapstate/internal/metrics"
)

// locationTracker is the state of the location state machine. It is only accessed by the
// owner goroutine of the Facade.
type locationTracker struct {
	status      AuthorizationStatus
	requested   bool
	active      bool
	sub         Subscription
	current     *geobus.Coordinate
	lastAt      time.Time
	minInterval time.Duration
	minDistance float64

	// gen identifies the current location subscription. Callbacks of older subscriptions
	// carry an older generation and are ignored.
	gen uint64
}

// filter returns metrics.ResultAccepted if fix becomes the new current location, otherwise the
// reason for rejecting it. The first valid fix is always accepted. Fixes without timestamp are
// taken at now.
func (t *locationTracker) filter(fix Fix, now time.Time) string {
	if !fix.Coordinate.Valid() {
		return metrics.ResultInvalid
	}
	if t.current == nil {
		return metrics.ResultAccepted
	}
	at := fix.At
	if at.IsZero() {
		at = now
	}
	if at.Sub(t.lastAt) < t.minInterval {
		return metrics.ResultInterval
	}
	if t.current.DistanceTo(fix.Coordinate) < t.minDistance {
		return metrics.ResultDistance
	}
	return metrics.ResultAccepted
}

func (f *Facade) requestPermission() {
	t := &f.tracker
	if t.status.Authorized() || t.status.Refused() || t.requested {
		return
	}
	t.requested = true
	f.log.Debug("requesting location permission")
	f.provider.RequestPermission()
}

// startUpdates subscribes to the location stream. Without authorization it asks for permission
// instead and returns, the caller has to start again once permission was granted.
func (f *Facade) startUpdates() error {
	t := &f.tracker
	if t.status.Refused() {
		f.report(ErrPermissionDenied)
		return ErrPermissionDenied
	}
	if !t.status.Authorized() {
		f.requestPermission()
		return nil
	}
	if t.active {
		return nil
	}

	t.gen++
	gen := t.gen
	sub, err := f.provider.SubscribeLocationUpdates(
		func(fixes []Fix) {
			if len(fixes) == 0 {
				return
			}
			fix := fixes[len(fixes)-1]
			f.post(func() { f.onLocationUpdate(gen, fix) })
		},
		func(err error) {
			f.post(func() { f.onLocationError(gen, err) })
		},
	)
	if err != nil {
		err = fmt.Errorf("failed to subscribe to location updates: %w", err)
		f.report(err)
		return err
	}

	t.sub = sub
	t.active = true
	f.startRefresh(gen)
	f.log.Info("location updates started")
	return nil
}

// stopUpdates ends the location stream and cancels the address work tied to it.
func (f *Facade) stopUpdates() {
	t := &f.tracker
	t.gen++
	if t.sub != nil {
		t.sub.Cancel()
		t.sub = nil
	}
	f.stopRefresh()
	f.cancelResolve()
	if t.active {
		t.active = false
		f.log.Info("location updates stopped")
	}
}

// onAuthorizationChanged never starts updates on its own.
func (f *Facade) onAuthorizationChanged(status AuthorizationStatus) {
	t := &f.tracker
	prev := t.status
	t.status = status
	t.requested = false
	if status == prev {
		return
	}
	f.log.Info("location authorization changed", slog.String("from", prev.String()),
		slog.String("to", status.String()))

	switch {
	case status.Refused():
		f.stopUpdates()
		f.report(ErrPermissionDenied)
	case !status.Authorized():
		f.stopUpdates()
	}
}

func (f *Facade) onLocationUpdate(gen uint64, fix Fix) {
	t := &f.tracker
	if gen != t.gen || !t.active {
		f.log.Debug("ignoring fix of stopped location updates")
		return
	}

	now := time.Now()
	result := t.filter(fix, now)
	f.metrics.Fix(result)
	switch result {
	case metrics.ResultAccepted:
	case metrics.ResultInvalid:
		f.log.Warn("rejecting fix with invalid coordinate", slog.String("coordinate", fix.Coordinate.String()))
		return
	default:
		f.log.Debug("filtered fix", slog.String("reason", result),
			slog.String("coordinate", fix.Coordinate.String()))
		return
	}

	at := fix.At
	if at.IsZero() {
		at = now
	}
	coord := fix.Coordinate
	t.current = &coord
	t.lastAt = at
	f.regionSrc = regionFromLocation
	if !f.haveFix {
		f.haveFix = true
		f.firstFixCoord = coord
		close(f.firstFix)
	}
	f.log.Debug("accepted fix", slog.String("coordinate", coord.String()))
	f.resolve(coord, false)
}

func (f *Facade) onLocationError(gen uint64, err error) {
	if gen != f.tracker.gen {
		return
	}
	if !IsPermanent(err) {
		f.log.Warn("location provider reported an error", logger.Err(err))
		return
	}
	f.stopUpdates()
	f.report(err)
}
