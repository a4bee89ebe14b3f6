// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapstate

import (
	"context"
	"sync"
	"time"

	"github.com/wneessen/mapstate/internal/geobus"
)

// Fix is a single raw position reading of the location sensor.
type Fix struct {
	Coordinate geobus.Coordinate
	// Accuracy is the horizontal accuracy in meters, 0 if unknown.
	Accuracy float64
	// At is the time the reading was taken. A zero time means "now".
	At time.Time
}

// SearchResult is a raw nearby search hit as returned by a LocationProvider.
type SearchResult struct {
	Name       string
	Address    string
	Coordinate geobus.Coordinate
}

// Subscription represents a registered callback. Cancel may be called more than once.
type Subscription interface {
	Cancel()
}

// LocationProvider is the device capability the map state depends on. Callbacks may be invoked
// from any goroutine, also synchronously from within the call that registered them.
type LocationProvider interface {
	// RequestPermission asks the user for location access. The answer is delivered to the
	// authorization watchers.
	RequestPermission()
	AuthorizationStatus() AuthorizationStatus
	WatchAuthorization(fn func(AuthorizationStatus)) Subscription
	// SubscribeLocationUpdates starts the location stream. onFix receives one or more fixes,
	// oldest first. onError receives stream errors, see IsPermanent.
	SubscribeLocationUpdates(onFix func([]Fix), onError func(error)) (Subscription, error)
	// ReverseGeocode returns the formatted address of the coordinate.
	ReverseGeocode(ctx context.Context, coord geobus.Coordinate) (string, error)
	SearchNearby(ctx context.Context, query string, center geobus.Coordinate, radius float64) ([]SearchResult, error)
}

// SubscriptionFunc adapts a function to a Subscription that runs at most once.
func SubscriptionFunc(fn func()) Subscription {
	return &funcSubscription{fn: fn}
}

type funcSubscription struct {
	once sync.Once
	fn   func()
}

func (s *funcSubscription) Cancel() {
	s.once.Do(func() {
		if s.fn != nil {
			s.fn()
		}
	})
}
