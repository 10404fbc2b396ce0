// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/placetrack/internal/geobus"
	"github.com/wneessen/placetrack/internal/geocode"
	"github.com/wneessen/placetrack/internal/routing"
)

const (
	// DefaultDirectionsThreshold is the movement in meters that triggers a new route while
	// directions are shown.
	DefaultDirectionsThreshold = 20.0

	// DefaultAddressThreshold is the movement in meters that triggers a new address lookup
	// while passively tracking the position.
	DefaultAddressThreshold = 50.0
)

var (
	ErrNoDestination      = errors.New("no destination set")
	ErrNoFix              = errors.New("no current position fix available")
	ErrInvalidOrigin      = errors.New("invalid route origin")
	ErrRoutingUnavailable = errors.New("routing unavailable")
	ErrRouteCancelled     = errors.New("route request cancelled")
	ErrAlreadyRunning     = errors.New("controller is already running")
	ErrInvalidMode        = errors.New("invalid tracking mode")
	ErrMissingDependency  = errors.New("missing controller dependency")
)

// Mode selects which threshold and which follow-up action apply to position samples.
type Mode int

const (
	ModePassiveAddress Mode = iota
	ModeActiveDirections
)

func (m Mode) String() string {
	switch m {
	case ModePassiveAddress:
		return "passive"
	case ModeActiveDirections:
		return "directions"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "passive", "address":
		return ModePassiveAddress, nil
	case "directions", "active":
		return ModeActiveDirections, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidMode, value)
	}
}

// Sample is a single position reported by the position source.
type Sample struct {
	Coordinate geobus.Coordinate
	At         time.Time
}

// PlaceMark is the resolved destination of a saved place.
type PlaceMark struct {
	Coordinate geobus.Coordinate
	Name       string
	Subtype    string
}

// PositionSource delivers position samples. It must tolerate repeated start and stop calls.
type PositionSource interface {
	StartUpdates(onSample func(Sample)) error
	StopUpdates()
	CurrentFix() (geobus.Coordinate, bool)
}

type ReverseGeocoder interface {
	Reverse(ctx context.Context, coords geobus.Coordinate) (geocode.Address, error)
}

type Router interface {
	Route(ctx context.Context, origin, destination geobus.Coordinate, profile routing.Profile) ([]routing.Candidate, error)
}

// Observer receives the outcomes of the controller. Calls are serialized with the processing
// of position samples, so an Observer must not call back into the Controller synchronously.
type Observer interface {
	OnAddressUpdated(text string)
	OnRouteReady(candidates []routing.Candidate)
	OnRouteFailed(err error)
}
