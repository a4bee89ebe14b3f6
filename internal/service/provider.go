// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/mapstate/internal/config"
	"github.com/wneessen/mapstate/internal/device"
	"github.com/wneessen/mapstate/internal/geobus"
	"github.com/wneessen/mapstate/internal/geobus/provider/geolocation_file"
	"github.com/wneessen/mapstate/internal/geobus/provider/gpsd"
	"github.com/wneessen/mapstate/internal/geobus/provider/ichnaea"
	"github.com/wneessen/mapstate/internal/geocode"
	"github.com/wneessen/mapstate/internal/geocode/provider/google"
	nominatim "github.com/wneessen/mapstate/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/mapstate/internal/http"
	"github.com/wneessen/mapstate/internal/i18n"
	"github.com/wneessen/mapstate/internal/logger"
)

const (
	cacheHitTTL  = time.Hour * 12
	cacheMissTTL = time.Minute * 10
	searchTTL    = time.Minute * 5
	filePeriod   = time.Second * 30
)

func (s *Service) newDeviceProvider() (*device.Provider, error) {
	geocoder, searcher, err := s.selectGeocodeProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to create geocode provider: %w", err)
	}
	return device.New(s.logger.Component("device"), s.selectGeobusProviders(), geocoder, searcher, s.config.Location.Authorization)
}

// selectGeobusProviders returns the enabled fix sources. Without any source the location
// provider reports itself as unavailable once updates are started.
func (s *Service) selectGeobusProviders() []geobus.Provider {
	var provider []geobus.Provider

	if !s.config.Location.DisableGeolocationFile {
		provider = append(provider, geolocation_file.NewGeolocationFileProvider(s.config.Location.File, filePeriod))
	}

	if !s.config.Location.DisableGPSD {
		provider = append(provider, gpsd.NewGeolocationGPSDProvider(s.config.Location.GPSDHost,
			s.config.Location.GPSDPort))
	}

	if !s.config.Location.DisableICHNAEA {
		mls, err := ichnaea.NewGeolocationICHNAEAProvider(http.New(s.logger), s.config.Location.ICHNAEAEndpoint)
		if err != nil {
			s.logger.Error("failed to create ICHNAEA provider", logger.Err(err))
		} else {
			provider = append(provider, mls)
		}
	}
	if len(provider) == 0 {
		s.logger.Warn("no fix sources enabled")
	}

	return provider
}

// selectGeocodeProvider returns the cached reverse geocoder and the cached place searcher of the
// configured provider.
func (s *Service) selectGeocodeProvider() (geocode.Geocoder, geocode.Searcher, error) {
	lang := i18n.Tag(s.config.Locale)

	switch strings.ToLower(s.config.GeoCoder.Provider) {
	case config.GeocoderNominatim:
		coder := nominatim.New(http.New(s.logger), lang, float64(s.config.GeoCoder.RequestsPerSecond))
		return geocode.NewCachedGeocoder(coder, cacheHitTTL, cacheMissTTL), geocode.NewCachedSearcher(coder, searchTTL), nil
	case config.GeocoderGoogle:
		coder, err := google.New(s.config.GeoCoder.APIKey, lang, s.config.GeoCoder.RequestsPerSecond)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create google geocoder: %w", err)
		}
		return geocode.NewCachedGeocoder(coder, cacheHitTTL, cacheMissTTL), geocode.NewCachedSearcher(coder, searchTTL), nil
	default:
		return nil, nil, fmt.Errorf("unsupported geocoder type: %s", s.config.GeoCoder.Provider)
	}
}
