// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapstate

import (
	"time"
)

// Config holds the tuning knobs of the map state. Zero values are replaced by the defaults
// of DefaultConfig, except SearchDebounce where 0 means searches only run on Search. The fix
// filters are switched off with NoMinInterval and NoMinDistance.
type Config struct {
	// MinInterval is the minimum time between two accepted fixes.
	MinInterval time.Duration
	// MinDistance is the minimum distance in meters between two accepted fixes.
	MinDistance float64
	// NoMinInterval accepts fixes regardless of their age. Out-of-order fixes are still rejected.
	NoMinInterval bool
	// NoMinDistance accepts fixes regardless of the distance moved.
	NoMinDistance bool
	// RefreshInterval is the cadence the address of the current location is re-resolved at
	// while updates are active.
	RefreshInterval time.Duration
	SearchRadius    float64
	SearchDebounce  time.Duration
	MaxResults      int
	// NetworkTimeout bounds every geocoding and search round trip.
	NetworkTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinInterval:     time.Second * 5,
		MinDistance:     50,
		RefreshInterval: time.Second * 30,
		SearchRadius:    1000,
		SearchDebounce:  time.Millisecond * 500,
		MaxResults:      20,
		NetworkTimeout:  time.Second * 30,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	switch {
	case c.NoMinInterval:
		c.MinInterval = 0
	case c.MinInterval <= 0:
		c.MinInterval = def.MinInterval
	}
	switch {
	case c.NoMinDistance:
		c.MinDistance = 0
	case c.MinDistance <= 0:
		c.MinDistance = def.MinDistance
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = def.RefreshInterval
	}
	if c.SearchRadius <= 0 {
		c.SearchRadius = def.SearchRadius
	}
	if c.SearchDebounce < 0 {
		c.SearchDebounce = 0
	}
	if c.MaxResults <= 0 {
		c.MaxResults = def.MaxResults
	}
	if c.NetworkTimeout <= 0 {
		c.NetworkTimeout = def.NetworkTimeout
	}
	return c
}
