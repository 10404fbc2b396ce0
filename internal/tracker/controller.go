// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package tracker keeps the current address label and the walking route to a destination up to
// date while the position of the user changes.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/placetrack/internal/geobus"
	"github.com/wneessen/placetrack/internal/logger"
	"github.com/wneessen/placetrack/internal/routing"
)

const DefaultLookupTimeout = time.Second * 30

// Controller decides from a stream of position samples when the current address is looked
// up again and when the route to the destination is recomputed.
type Controller struct {
	mu sync.Mutex

	source   PositionSource
	geocoder ReverseGeocoder
	router   Router
	observer Observer
	logger   *logger.Logger

	directionsThreshold float64
	addressThreshold    float64
	profile             routing.Profile
	lookupTimeout       time.Duration

	mode           Mode
	running        bool
	reference      geobus.Coordinate
	hasReference   bool
	destination    PlaceMark
	hasDestination bool
	route          *RouteRequest
	session        uint64
	lookupGen      uint64
	lookupCancel   context.CancelFunc
}

type Option func(*Controller)

// WithDirectionsThreshold overrides DefaultDirectionsThreshold.
func WithDirectionsThreshold(meters float64) Option {
	return func(c *Controller) {
		if meters > 0 {
			c.directionsThreshold = meters
		}
	}
}

// WithAddressThreshold overrides DefaultAddressThreshold.
func WithAddressThreshold(meters float64) Option {
	return func(c *Controller) {
		if meters > 0 {
			c.addressThreshold = meters
		}
	}
}

func WithProfile(profile routing.Profile) Option {
	return func(c *Controller) {
		c.profile = profile
	}
}

// WithLookupTimeout limits the duration of a single reverse geocoding request.
func WithLookupTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		if timeout > 0 {
			c.lookupTimeout = timeout
		}
	}
}

func New(source PositionSource, geocoder ReverseGeocoder, router Router, observer Observer,
	log *logger.Logger, opts ...Option,
) (*Controller, error) {
	switch {
	case source == nil:
		return nil, fmt.Errorf("%w: position source", ErrMissingDependency)
	case geocoder == nil:
		return nil, fmt.Errorf("%w: geocoder", ErrMissingDependency)
	case router == nil:
		return nil, fmt.Errorf("%w: router", ErrMissingDependency)
	case observer == nil:
		return nil, fmt.Errorf("%w: observer", ErrMissingDependency)
	case log == nil:
		return nil, fmt.Errorf("%w: logger", ErrMissingDependency)
	}

	controller := &Controller{
		source:              source,
		geocoder:            geocoder,
		router:              router,
		observer:            observer,
		logger:              log,
		directionsThreshold: DefaultDirectionsThreshold,
		addressThreshold:    DefaultAddressThreshold,
		profile:             routing.ProfileWalking,
		lookupTimeout:       DefaultLookupTimeout,
	}
	for _, opt := range opts {
		opt(controller)
	}
	return controller, nil
}

// Start begins processing position samples in the given mode. The reference position is
// reset, so the first sample after Start is always accepted.
func (c *Controller) Start(mode Mode) error {
	if mode != ModePassiveAddress && mode != ModeActiveDirections {
		return fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.mode = mode
	c.running = true
	c.hasReference = false
	c.reference = geobus.Coordinate{}
	c.session++
	session := c.session
	c.mu.Unlock()

	onSample := func(sample Sample) { c.onPositionSample(session, sample) }
	if err := c.source.StartUpdates(onSample); err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return fmt.Errorf("failed to start position updates: %w", err)
	}
	c.logger.Info("location tracking started", slog.String("mode", mode.String()))
	return nil
}

// Stop halts sample processing, cancels a pending route and stops the position source.
// Once Stop returned, the observer receives no further address or route events.
func (c *Controller) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.session++
	if c.route != nil {
		c.route.abort()
	}
	c.lookupGen++
	if c.lookupCancel != nil {
		c.lookupCancel()
		c.lookupCancel = nil
	}
	c.mu.Unlock()

	c.source.StopUpdates()
	c.logger.Info("location tracking stopped")
}

// SetDestination replaces the destination used for future routing requests.
func (c *Controller) SetDestination(place PlaceMark) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.destination = place
	c.hasDestination = true
	c.logger.Debug("destination set", slog.String("name", place.Name),
		slog.String("coordinate", place.Coordinate.String()))
}

// RequestRouteNow issues a routing request from origin to the destination right away. The
// position source still needs a current fix. Any pending route is cancelled first.
func (c *Controller) RequestRouteNow(origin geobus.Coordinate) (*RouteRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasDestination {
		return nil, ErrNoDestination
	}
	if _, ok := c.source.CurrentFix(); !ok {
		return nil, ErrNoFix
	}
	if !origin.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidOrigin, origin)
	}
	return c.issueRoute(origin), nil
}

// RequestRouteFromFix works like RequestRouteNow but routes from the current fix of the
// position source.
func (c *Controller) RequestRouteFromFix() (*RouteRequest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasDestination {
		return nil, ErrNoDestination
	}
	fix, ok := c.source.CurrentFix()
	if !ok {
		return nil, ErrNoFix
	}
	return c.issueRoute(fix), nil
}

// Reference returns the current reference position.
func (c *Controller) Reference() (geobus.Coordinate, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reference, c.hasReference
}

// CurrentRoute returns the most recently issued route request or nil.
func (c *Controller) CurrentRoute() *RouteRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.route
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Destination returns the current destination.
func (c *Controller) Destination() (PlaceMark, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destination, c.hasDestination
}

// onPositionSample is registered with the position source and decides whether a sample
// becomes the new reference position. Samples delivered for an earlier session are dropped.
func (c *Controller) onPositionSample(session uint64, sample Sample) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return
	}
	if session != c.session {
		c.logger.Debug("discarding position sample of a previous session",
			slog.String("coordinate", sample.Coordinate.String()))
		return
	}
	if !sample.Coordinate.Valid() {
		c.logger.Debug("discarding invalid position sample", slog.String("coordinate", sample.Coordinate.String()))
		return
	}

	if c.hasReference {
		distance := c.reference.DistanceTo(sample.Coordinate)
		threshold := c.threshold()
		if distance < threshold {
			c.logger.Debug("position sample below threshold", slog.Float64("distance", distance),
				slog.Float64("threshold", threshold))
			return
		}
		c.logger.Debug("position sample accepted", slog.Float64("distance", distance),
			slog.Float64("threshold", threshold))
	}

	c.reference = sample.Coordinate
	c.hasReference = true

	switch c.mode {
	case ModePassiveAddress:
		c.lookupAddress(sample.Coordinate)
	case ModeActiveDirections:
		if !c.hasDestination {
			c.observer.OnRouteFailed(ErrNoDestination)
			return
		}
		c.issueRoute(sample.Coordinate)
	}
}

func (c *Controller) threshold() float64 {
	if c.mode == ModeActiveDirections {
		return c.directionsThreshold
	}
	return c.addressThreshold
}

// issueRoute cancels the current route and starts a new one. c.mu must be held.
func (c *Controller) issueRoute(origin geobus.Coordinate) *RouteRequest {
	if c.route != nil {
		c.route.abort()
	}

	ctx, cancel := context.WithCancel(context.Background())
	request := newRouteRequest(origin, c.destination.Coordinate, cancel)
	c.route = request
	c.logger.Debug("requesting route", slog.String("id", request.ID().String()),
		slog.String("origin", origin.String()), slog.String("destination", request.destination.String()))

	go c.runRoute(ctx, request)
	return request
}

func (c *Controller) runRoute(ctx context.Context, request *RouteRequest) {
	candidates, err := c.router.Route(ctx, request.origin, request.destination, c.profile)
	if err == nil && len(candidates) == 0 {
		err = routing.ErrNoRouteFound
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	defer request.cancel()

	if c.route != request {
		c.logger.Debug("discarding response of superseded route", slog.String("id", request.ID().String()))
		return
	}
	if err != nil {
		err = errors.Join(ErrRoutingUnavailable, err)
		if !request.finish(RouteFailed, nil, err) {
			c.logger.Debug("discarding failure of cancelled route", slog.String("id", request.ID().String()))
			return
		}
		if c.running {
			c.observer.OnRouteFailed(err)
		}
		return
	}
	if !request.finish(RouteCompleted, candidates, nil) {
		c.logger.Debug("discarding response of cancelled route", slog.String("id", request.ID().String()))
		return
	}
	if c.running {
		c.observer.OnRouteReady(candidates)
	}
}

// lookupAddress starts a reverse lookup for coords and supersedes any lookup still in
// flight. c.mu must be held.
func (c *Controller) lookupAddress(coords geobus.Coordinate) {
	if c.lookupCancel != nil {
		c.lookupCancel()
	}
	c.lookupGen++
	generation := c.lookupGen
	ctx, cancel := context.WithTimeout(context.Background(), c.lookupTimeout)
	c.lookupCancel = cancel

	go c.runLookup(ctx, cancel, generation, coords)
}

func (c *Controller) runLookup(ctx context.Context, cancel context.CancelFunc, generation uint64, coords geobus.Coordinate) {
	defer cancel()
	address, err := c.geocoder.Reverse(ctx, coords)

	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running || generation != c.lookupGen {
		c.logger.Debug("discarding superseded address lookup", slog.String("coordinate", coords.String()))
		return
	}
	c.lookupCancel = nil
	if err != nil {
		c.logger.Error("failed to look up address, keeping previous address",
			slog.String("coordinate", coords.String()), logger.Err(err))
		return
	}
	c.observer.OnAddressUpdated(address.Label())
}
