// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/text/language"

	"github.com/wneessen/placetrack/internal/geobus"
	"github.com/wneessen/placetrack/internal/http"
	"github.com/wneessen/placetrack/internal/routing"
)

const (
	APIEndpoint = "https://api.openrouteservice.org"
	APITimeout  = time.Second * 15
	name        = "openrouteservice"

	// alternativeTargetCount is the maximum number of routes ORS is asked for
	alternativeTargetCount = 3
)

type OpenRouteService struct {
	apikey   string
	endpoint string
	http     *http.Client
	lang     language.Tag
	attempts int
	backoff  time.Duration
}

type Request struct {
	Coordinates       [][2]float64      `json:"coordinates"`
	AlternativeRoutes AlternativeRoutes `json:"alternative_routes"`
	Instructions      bool              `json:"instructions"`
	Language          string            `json:"language,omitempty"`
	Units             string            `json:"units"`
}

type AlternativeRoutes struct {
	TargetCount  int     `json:"target_count"`
	WeightFactor float64 `json:"weight_factor"`
	ShareFactor  float64 `json:"share_factor"`
}

func New(client *http.Client, lang language.Tag, endpoint, apikey string) *OpenRouteService {
	if endpoint == "" {
		endpoint = APIEndpoint
	}
	return &OpenRouteService{
		apikey:   apikey,
		endpoint: strings.TrimRight(endpoint, "/"),
		http:     client,
		lang:     lang,
		attempts: routing.DefaultAttempts,
		backoff:  routing.DefaultBackoff,
	}
}

func (o *OpenRouteService) Name() string {
	return name
}

func (o *OpenRouteService) Route(ctx context.Context, origin, destination geobus.Coordinate, profile routing.Profile) ([]routing.Candidate, error) {
	orsProfile, err := profileName(profile)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(Request{
		Coordinates: [][2]float64{
			{origin.Lon, origin.Lat},
			{destination.Lon, destination.Lat},
		},
		AlternativeRoutes: AlternativeRoutes{
			TargetCount:  alternativeTargetCount,
			WeightFactor: 1.4,
			ShareFactor:  0.6,
		},
		Language: o.lang.String(),
		Units:    "m",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode routing request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v2/directions/%s/geojson", o.endpoint, orsProfile)
	headers := map[string]string{
		"Authorization": o.apikey,
		"Content-Type":  "application/json",
		"Accept":        "application/json, application/geo+json",
	}

	var collection geojson.FeatureCollection
	err = routing.Retry(ctx, o.attempts, o.backoff, func(ctx context.Context) error {
		collection = geojson.FeatureCollection{}
		_, err := o.http.PostWithTimeout(ctx, endpoint, &collection, bytes.NewReader(payload), headers, APITimeout)
		return err
	})
	if err != nil {
		if routing.StatusCode(err) == stdhttp.StatusNotFound {
			return nil, fmt.Errorf("%w: %w", routing.ErrNoRouteFound, err)
		}
		return nil, routing.Unavailable(fmt.Errorf("failed to fetch route from openrouteservice API: %w", err))
	}

	candidates := make([]routing.Candidate, 0, len(collection.Features))
	for _, feature := range collection.Features {
		line, ok := feature.Geometry.(orb.LineString)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected route geometry %T", routing.ErrServiceUnavailable,
				feature.Geometry)
		}
		candidate := routing.Candidate{Polyline: line}
		if summary, ok := feature.Properties["summary"].(map[string]any); ok {
			candidate.DistanceMeters, _ = summary["distance"].(float64)
			candidate.DurationSeconds, _ = summary["duration"].(float64)
		}
		candidates = append(candidates, candidate)
	}
	if len(candidates) == 0 {
		return nil, routing.ErrNoRouteFound
	}

	return candidates, nil
}

func profileName(profile routing.Profile) (string, error) {
	switch profile {
	case routing.ProfileWalking:
		return "foot-walking", nil
	default:
		return "", fmt.Errorf("%w: %q", routing.ErrUnsupportedProfile, profile)
	}
}
