// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

// GeolocationState tracks the last coordinate a source has emitted so that sources only emit
// when their reading actually changed.
type GeolocationState struct {
	last     Coordinate
	haveLast bool
}

// HasChanged reports whether coord differs from the last stored coordinate. An empty state always
// reports a change. Accuracy alone is not considered a positional change.
func (s *GeolocationState) HasChanged(coord Coordinate) bool {
	if !s.haveLast {
		return true
	}
	return !s.last.Equal(coord)
}

// Update stores coord as the last known reading.
func (s *GeolocationState) Update(coord Coordinate) {
	s.last = coord
	s.haveLast = true
}
