// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"golang.org/x/text/language"

	"github.com/wneessen/placetrack/internal/config"
	"github.com/wneessen/placetrack/internal/geobus"
	"github.com/wneessen/placetrack/internal/geobus/provider/geoclue"
	"github.com/wneessen/placetrack/internal/geobus/provider/geolocation_file"
	"github.com/wneessen/placetrack/internal/geobus/provider/gpsd"
	"github.com/wneessen/placetrack/internal/geobus/provider/ichnaea"
	"github.com/wneessen/placetrack/internal/geocode"
	"github.com/wneessen/placetrack/internal/geocode/provider/opencage"
	nominatim "github.com/wneessen/placetrack/internal/geocode/provider/osm-nominatim"
	"github.com/wneessen/placetrack/internal/http"
	"github.com/wneessen/placetrack/internal/logger"
	"github.com/wneessen/placetrack/internal/position"
	"github.com/wneessen/placetrack/internal/routing"
	"github.com/wneessen/placetrack/internal/routing/provider/openrouteservice"
	"github.com/wneessen/placetrack/internal/routing/provider/osrm"
)

var ErrNoGeolocationProviders = errors.New("no geolocation providers enabled")

func (s *Service) selectGeobusProviders() ([]geobus.Provider, error) {
	httpClient := http.New(s.logger)
	geoConf := s.config.GeoLocation
	var provider []geobus.Provider

	if !geoConf.DisableGeolocationFile {
		provider = append(provider, geolocation_file.NewGeolocationFileProvider(geoConf.File, 0))
	}

	if !geoConf.DisableGPSD {
		provider = append(provider, gpsd.NewGeolocationGPSDProvider(geoConf.GPSDHost, geoConf.GPSDPort))
	}

	if !geoConf.DisableGeoClue {
		provider = append(provider, geoclue.NewGeolocationGeoClueProvider(geoConf.DesktopID,
			distanceThreshold(s.config.Tracking.JitterDistance)))
	}

	if !geoConf.DisableICHNAEA {
		mls, err := ichnaea.NewGeolocationICHNAEAProvider(httpClient, geoConf.ICHNAEAEndpoint)
		if err != nil {
			s.logger.Error("failed to create ICHNAEA provider", logger.Err(err))
		} else {
			provider = append(provider, mls)
		}
	}
	if len(provider) == 0 {
		return nil, ErrNoGeolocationProviders
	}

	return provider, nil
}

// distanceThreshold converts the jitter distance into the whole meters GeoClue expects. Values
// outside of the accepted config range are clamped.
func distanceThreshold(meters float64) uint32 {
	switch {
	case math.IsNaN(meters) || meters <= 0:
		return 0
	case meters >= config.MaxJitterDistance:
		return uint32(config.MaxJitterDistance)
	}
	return uint32(math.Round(meters))
}

func (s *Service) createPositionSource() (*position.BusSource, error) {
	providers, err := s.selectGeobusProviders()
	if err != nil {
		return nil, err
	}
	bus, err := geobus.New(s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create geobus: %w", err)
	}
	bus.SetJitterDistance(s.config.Tracking.JitterDistance)
	return position.New(bus, providers, s.logger)
}

func (s *Service) selectGeocodeProvider(lang language.Tag) (geocode.Geocoder, error) {
	conf := s.config.Geocoder
	var geocoder geocode.Geocoder

	switch strings.ToLower(conf.Provider) {
	case config.GeocoderNominatim:
		geocoder = geocode.NewCachedGeocoder(nominatim.New(http.New(s.logger), lang), conf.HitTTL, conf.MissTTL)
	case config.GeocoderOpenCage:
		if conf.APIKey == "" {
			return nil, fmt.Errorf("opencage geocoder: %w", config.ErrMissingAPIKey)
		}
		geocoder = geocode.NewCachedGeocoder(opencage.New(http.New(s.logger), lang, conf.APIKey),
			conf.HitTTL, conf.MissTTL)
	default:
		return nil, fmt.Errorf("unsupported geocoder type: %s", conf.Provider)
	}

	return geocoder, nil
}

func (s *Service) selectRoutingProvider(lang language.Tag) (routing.Router, error) {
	conf := s.config.Routing

	switch strings.ToLower(conf.Provider) {
	case config.RouterOSRM:
		return osrm.New(http.New(s.logger), conf.Endpoint), nil
	case config.RouterOpenRouteService:
		if conf.APIKey == "" {
			return nil, fmt.Errorf("openrouteservice router: %w", config.ErrMissingAPIKey)
		}
		return openrouteservice.New(http.New(s.logger), lang, conf.Endpoint, conf.APIKey), nil
	default:
		return nil, fmt.Errorf("unsupported routing provider: %s", conf.Provider)
	}
}
