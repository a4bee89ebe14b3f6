// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"fmt"
	"math"
)

// EarthRadius is the mean earth radius in meters.
const EarthRadius = 6371000.0

// Coordinate represents a geographic coordinate in decimal degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Valid checks if the coordinate is valid according to the EPSG logic
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// Equal reports whether both components match bit-for-bit. No tolerance is applied, so 0 and
// -0 differ.
func (c Coordinate) Equal(other Coordinate) bool {
	return math.Float64bits(c.Lat) == math.Float64bits(other.Lat) &&
		math.Float64bits(c.Lon) == math.Float64bits(other.Lon)
}

// DistanceTo returns the great-circle distance in meters between c and other. We are using the
// Haversine formula on a spherical earth.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	dLat := (other.Lat - c.Lat) * math.Pi / 180
	dLon := (other.Lon - c.Lon) * math.Pi / 180
	lat1 := c.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Min(1, math.Sqrt(h)))
}

// String returns the coordinate as "lat,lon".
func (c Coordinate) String() string {
	return fmt.Sprintf("%f,%f", c.Lat, c.Lon)
}
