// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapstate

import (
	"errors"
	"fmt"
)

var (
	ErrProviderRequired = errors.New("location provider is required")
	ErrLoggerRequired   = errors.New("logger is required")

	// ErrPermissionDenied is reported when location access was refused or revoked.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrProviderUnavailable is returned by a provider that cannot deliver locations at all.
	ErrProviderUnavailable = errors.New("location provider unavailable")
	// ErrLocationUnknown is reported by a provider that is unable to determine a position.
	ErrLocationUnknown = errors.New("location unknown")
	// ErrNoAddress is the cause of a GeocodingError for an empty geocoder answer.
	ErrNoAddress = errors.New("no address found for coordinate")
	ErrClosed    = errors.New("map state is closed")
	// ErrUnknownPlace is returned when selecting a place that is not part of the results.
	ErrUnknownPlace = errors.New("place is not part of the search results")
	// ErrNoFix is returned if no location has been accepted yet.
	ErrNoFix = errors.New("no location fix available")
)

// GeocodingError is reported when resolving a coordinate into an address failed.
type GeocodingError struct {
	Cause error
}

func (e *GeocodingError) Error() string {
	return fmt.Sprintf("geocoding failed: %s", e.Cause)
}

func (e *GeocodingError) Unwrap() error {
	return e.Cause
}

// SearchError is reported when a nearby search failed.
type SearchError struct {
	Query string
	Cause error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("search for %q failed: %s", e.Query, e.Cause)
}

func (e *SearchError) Unwrap() error {
	return e.Cause
}

// IsPermanent reports whether a location error will not go away by retrying. Location updates
// are stopped on permanent errors.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermissionDenied) || errors.Is(err, ErrLocationUnknown)
}
