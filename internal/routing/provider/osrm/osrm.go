// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package osrm

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/wneessen/placetrack/internal/geobus"
	"github.com/wneessen/placetrack/internal/http"
	"github.com/wneessen/placetrack/internal/routing"
)

const (
	// APIEndpoint is the public OSRM instance of the FOSSGIS that serves the foot profile
	APIEndpoint = "https://routing.openstreetmap.de/routed-foot"
	APITimeout  = time.Second * 15
	name        = "osrm"
)

type OSRM struct {
	http     *http.Client
	endpoint string
	attempts int
	backoff  time.Duration
}

type Response struct {
	Code    string  `json:"code"`
	Message string  `json:"message"`
	Routes  []Route `json:"routes"`
}

type Route struct {
	Geometry geojson.Geometry `json:"geometry"`
	Distance float64          `json:"distance"`
	Duration float64          `json:"duration"`
	Legs     []Leg            `json:"legs"`
}

type Leg struct {
	Summary string `json:"summary"`
}

func New(client *http.Client, endpoint string) *OSRM {
	if endpoint == "" {
		endpoint = APIEndpoint
	}
	return &OSRM{
		http:     client,
		endpoint: strings.TrimRight(endpoint, "/"),
		attempts: routing.DefaultAttempts,
		backoff:  routing.DefaultBackoff,
	}
}

func (o *OSRM) Name() string {
	return name
}

func (o *OSRM) Route(ctx context.Context, origin, destination geobus.Coordinate, profile routing.Profile) ([]routing.Candidate, error) {
	osrmProfile, err := profileName(profile)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/route/v1/%s/%.6f,%.6f;%.6f,%.6f", o.endpoint, osrmProfile,
		origin.Lon, origin.Lat, destination.Lon, destination.Lat)
	query := url.Values{}
	query.Set("alternatives", "true")
	query.Set("overview", "full")
	query.Set("geometries", "geojson")
	query.Set("steps", "false")

	var response Response
	err = routing.Retry(ctx, o.attempts, o.backoff, func(ctx context.Context) error {
		response = Response{}
		_, err := o.http.GetWithTimeout(ctx, endpoint, &response, query, nil, APITimeout)
		return err
	})
	if err != nil {
		if isNoRoute(err) {
			return nil, fmt.Errorf("%w: %w", routing.ErrNoRouteFound, err)
		}
		return nil, routing.Unavailable(fmt.Errorf("failed to fetch route from OSRM API: %w", err))
	}

	switch response.Code {
	case "Ok":
	case "NoRoute", "NoSegment":
		return nil, fmt.Errorf("%w: %s", routing.ErrNoRouteFound, response.Message)
	default:
		return nil, fmt.Errorf("%w: OSRM API returned code %q: %s", routing.ErrServiceUnavailable,
			response.Code, response.Message)
	}

	candidates := make([]routing.Candidate, 0, len(response.Routes))
	for _, route := range response.Routes {
		line, ok := route.Geometry.Geometry().(orb.LineString)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected route geometry type %q", routing.ErrServiceUnavailable,
				route.Geometry.Type)
		}
		candidate := routing.Candidate{
			Polyline:        line,
			DistanceMeters:  route.Distance,
			DurationSeconds: route.Duration,
		}
		if len(route.Legs) > 0 {
			candidate.Summary = route.Legs[0].Summary
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
		return "foot", nil
	default:
		return "", fmt.Errorf("%w: %q", routing.ErrUnsupportedProfile, profile)
	}
}

// isNoRoute reports whether OSRM rejected the request because the points cannot be connected.
func isNoRoute(err error) bool {
	var statusErr *http.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != stdhttp.StatusBadRequest {
		return false
	}
	return strings.Contains(statusErr.Body, `"NoRoute"`) || strings.Contains(statusErr.Body, `"NoSegment"`)
}
