// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/mapstate/internal/geobus"
)

const (
	name = "geolocation_file"
	// Accuracy is reported for file based fixes. A position written by the user is treated as
	// exact as a consumer GPS fix.
	Accuracy = geobus.AccuracyGPS3D
)

var ErrNoCoordinates = errors.New("no valid coordinates found in geolocation file")

// GeolocationFileProvider reads a "lat,lon" line from a file and emits it as a fix. Lines
// starting with # are ignored. The file is re-read every period so edits show up as movement.
type GeolocationFileProvider struct {
	name     string
	path     string
	period   time.Duration
	ttl      time.Duration
	locateFn func() (geobus.Coordinate, error)
}

// NewGeolocationFileProvider initializes a GeolocationFileProvider for path. A period <= 0 uses
// the default of 30 seconds.
func NewGeolocationFileProvider(path string, period time.Duration) *GeolocationFileProvider {
	if period <= 0 {
		period = time.Second * 30
	}
	provider := &GeolocationFileProvider{
		name:   name,
		path:   path,
		period: period,
		ttl:    time.Hour * 1,
	}
	provider.locateFn = provider.readFile
	return provider
}

// Name returns the name of the GeolocationFileProvider instance.
func (p *GeolocationFileProvider) Name() string {
	return p.name
}

// LookupStream emits a result on the first successful read and whenever the file content
// changes position. The channel is closed once ctx is done.
func (p *GeolocationFileProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		state := geobus.GeolocationState{}
		firstRun := true

		for {
			if !firstRun {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.period):
				}
			}
			firstRun = false

			coord, err := p.locateFn()
			if err != nil {
				continue
			}
			if !state.HasChanged(coord) {
				continue
			}
			state.Update(coord)

			select {
			case <-ctx.Done():
				return
			case out <- p.createResult(key, coord, Accuracy):
			}
		}
	}()
	return out
}

func (p *GeolocationFileProvider) createResult(key string, coord geobus.Coordinate, acc float64) geobus.Result {
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

// readFile returns the first valid coordinate line of the file.
func (p *GeolocationFileProvider) readFile() (geobus.Coordinate, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return geobus.Coordinate{}, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		latStr, lonStr, ok := strings.Cut(line, ",")
		if !ok {
			continue
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(latStr), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(lonStr), 64)
		if err != nil {
			continue
		}
		coord := geobus.Coordinate{Lat: lat, Lon: lon}
		if !coord.Valid() {
			continue
		}
		return coord, nil
	}
	return geobus.Coordinate{}, ErrNoCoordinates
}
