// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package routing

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/wneessen/placetrack/internal/geobus"
	"github.com/wneessen/placetrack/internal/http"
)

// Profile selects the means of transport a route is computed for.
type Profile string

const ProfileWalking Profile = "walking"

var (
	// ErrNoRouteFound is returned when the routing service cannot connect origin and destination.
	ErrNoRouteFound = errors.New("no route found")

	// ErrServiceUnavailable is returned when the routing service could not be reached or
	// answered with an error.
	ErrServiceUnavailable = errors.New("routing service unavailable")

	ErrUnsupportedProfile = errors.New("unsupported routing profile")
)

// Candidate is one of the routes returned for a routing request.
type Candidate struct {
	Polyline        orb.LineString
	DistanceMeters  float64
	DurationSeconds float64
	Summary         string
}

type Router interface {
	Name() string
	Route(ctx context.Context, origin, destination geobus.Coordinate, profile Profile) ([]Candidate, error)
}

// Unavailable wraps err as ErrServiceUnavailable unless it already carries a routing error or
// is a cancellation by the caller.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNoRouteFound) || errors.Is(err, ErrServiceUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
}

// StatusCode returns the HTTP status code carried by err or 0.
func StatusCode(err error) int {
	var statusErr *http.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code
	}
	return 0
}
