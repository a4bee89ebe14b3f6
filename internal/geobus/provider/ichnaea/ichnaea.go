// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package ichnaea

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mdlayher/wifi"

	"github.com/wneessen/mapstate/internal/geobus"
	"github.com/wneessen/mapstate/internal/http"
)

const (
	// DefaultEndpoint is the BeaconDB geolocate API, which speaks the ichnaea protocol.
	DefaultEndpoint = "https://api.beacondb.net/v1/geolocate"
	lookupTimeout   = time.Second * 5
	wifiScanTime    = time.Minute * 2
	name            = "ichnaea"
)

var ErrHTTPClientRequired = errors.New("http client is required")

var newWLAN = func() (wlanScanner, error) {
	client, err := wifi.New()
	if err != nil {
		return nil, err
	}
	return client, nil
}

// wlanScanner is the part of the wifi client used to collect access points.
type wlanScanner interface {
	Interfaces() ([]*wifi.Interface, error)
	AccessPoints(ifi *wifi.Interface) ([]*wifi.BSS, error)
}

// GeolocationICHNAEAProvider locates the device with a Mozilla Location Service compatible API
// based on the surrounding WiFi access points. Without WiFi support the lookup falls back to
// the IP address.
type GeolocationICHNAEAProvider struct {
	name     string
	endpoint string
	http     *http.Client
	wlan     wlanScanner
	period   time.Duration
	ttl      time.Duration
	locateFn func(ctx context.Context) (geobus.Coordinate, float64, error)

	apLock sync.RWMutex
	aps    []WirelessNetwork
}

type APIResult struct {
	Location struct {
		Latitude  float64 `json:"lat"`
		Longitude float64 `json:"lng"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
}

type WirelessNetwork struct {
	LastSeen       int64  `json:"age"`
	MACAddress     string `json:"macAddress"`
	SignalStrength int32  `json:"signalStrength"`
}

func NewGeolocationICHNAEAProvider(client *http.Client, endpoint string) (*GeolocationICHNAEAProvider, error) {
	if client == nil {
		return nil, ErrHTTPClientRequired
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	provider := &GeolocationICHNAEAProvider{
		name:     name,
		endpoint: endpoint,
		http:     client,
		period:   time.Minute * 5,
		ttl:      time.Hour * 1,
	}
	if wlan, err := newWLAN(); err == nil {
		provider.wlan = wlan
	}
	provider.locateFn = provider.locate
	return provider, nil
}

func (p *GeolocationICHNAEAProvider) Name() string {
	return p.name
}

// LookupStream periodically queries the API and emits a result whenever the reported position
// changed.
func (p *GeolocationICHNAEAProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	if p.wlan != nil {
		go p.monitorWifiAccessPoints(ctx)
	}
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

			coord, acc, err := p.locateFn(ctx)
			if err != nil || !coord.Valid() {
				continue
			}
			if !state.HasChanged(coord) {
				continue
			}
			state.Update(coord)

			select {
			case <-ctx.Done():
				return
			case out <- p.createResult(key, coord, acc):
			}
		}
	}()
	return out
}

func (p *GeolocationICHNAEAProvider) createResult(key string, coord geobus.Coordinate, acc float64) geobus.Result {
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

func (p *GeolocationICHNAEAProvider) monitorWifiAccessPoints(ctx context.Context) {
	firstRun := true
	for {
		if !firstRun {
			select {
			case <-ctx.Done():
				return
			case <-time.After(wifiScanTime):
			}
		}
		firstRun = false

		list, err := p.wifiAccessPoints()
		if err != nil {
			continue
		}
		p.apLock.Lock()
		p.aps = list
		p.apLock.Unlock()
	}
}

// wifiAccessPoints lists the access points seen by all station interfaces. Hidden networks and
// networks that opted out with the _nomap suffix are skipped.
func (p *GeolocationICHNAEAProvider) wifiAccessPoints() ([]WirelessNetwork, error) {
	var list []WirelessNetwork

	ifaces, err := p.wlan.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("failed to list interfaces: %w", err)
	}
	for _, iface := range ifaces {
		if iface.Type != wifi.InterfaceTypeStation {
			continue
		}
		aps, err := p.wlan.AccessPoints(iface)
		if err != nil {
			continue
		}
		for _, ap := range aps {
			if ap.SSID == "" || ap.SSID[0] == '\x00' || strings.HasSuffix(ap.SSID, "_nomap") {
				continue
			}
			list = append(list, WirelessNetwork{
				SignalStrength: ap.Signal / 100,
				MACAddress:     ap.BSSID.String(),
				LastSeen:       ap.LastSeen.Milliseconds(),
			})
		}
	}

	return list, nil
}

func (p *GeolocationICHNAEAProvider) locate(ctx context.Context) (geobus.Coordinate, float64, error) {
	p.apLock.RLock()
	wifiList := p.aps
	p.apLock.RUnlock()

	type request struct {
		ConsiderIP   bool              `json:"considerIp"`
		Accesspoints []WirelessNetwork `json:"wifiAccessPoints,omitempty"`
	}
	req := request{
		ConsiderIP:   true,
		Accesspoints: wifiList,
	}
	result := new(APIResult)
	if _, err := p.http.Post(ctx, p.endpoint, result, http.WithJSONBody(req),
		http.WithTimeout(lookupTimeout)); err != nil {
		return geobus.Coordinate{}, 0, fmt.Errorf("failed to get geolocation data from API: %w", err)
	}

	coord := geobus.Coordinate{
		Lat: geobus.Truncate(result.Location.Latitude, geobus.TruncPrecision),
		Lon: geobus.Truncate(result.Location.Longitude, geobus.TruncPrecision),
	}
	return coord, geobus.Truncate(result.Accuracy, geobus.TruncPrecision), nil
}
