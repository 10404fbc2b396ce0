// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package position feeds the results of the geolocation bus into the tracker.
package position

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/wneessen/placetrack/internal/geobus"
	"github.com/wneessen/placetrack/internal/logger"
	"github.com/wneessen/placetrack/internal/tracker"
)

const (
	// BusKey is the geobus key all position results are published under
	BusKey = "position"

	subscriberBuffer = 8
)

var (
	ErrBusRequired       = errors.New("geobus is required")
	ErrProvidersRequired = errors.New("at least one geolocation provider is required")
)

// BusSource implements tracker.PositionSource on top of a geobus.GeoBus and its providers.
type BusSource struct {
	bus       *geobus.GeoBus
	providers []geobus.Provider
	logger    *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	session uint64
	wg      sync.WaitGroup
}

func New(bus *geobus.GeoBus, providers []geobus.Provider, log *logger.Logger) (*BusSource, error) {
	if bus == nil {
		return nil, ErrBusRequired
	}
	if len(providers) == 0 {
		return nil, ErrProvidersRequired
	}
	if log == nil {
		return nil, geobus.ErrLoggerRequired
	}
	return &BusSource{
		bus:       bus,
		providers: providers,
		logger:    log,
	}, nil
}

// StartUpdates starts all providers and calls onSample for every new best position on the
// bus. A running session is replaced. The cached best position is only passed on while it
// is not stale.
func (s *BusSource) StartUpdates(onSample func(tracker.Sample)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.session++
	session := s.session
	results, unsubscribe := s.bus.Subscribe(BusKey, subscriberBuffer)
	orchestrator := s.bus.NewOrchestrator(s.providers)

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		orchestrator.Track(ctx, BusKey)
	}()
	go func() {
		defer s.wg.Done()
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case result, ok := <-results:
				if !ok {
					return
				}
				if !s.current(session) {
					return
				}
				if result.IsStale() {
					s.logger.Debug("discarding stale position", slog.String("source", result.Source),
						slog.Time("at", result.At))
					continue
				}
				s.logger.Debug("new position", slog.String("source", result.Source),
					slog.String("coordinate", result.Coordinate().String()),
					slog.Float64("accuracy", result.AccuracyMeters))
				onSample(tracker.Sample{Coordinate: result.Coordinate(), At: result.At})
			}
		}
	}()

	s.logger.Debug("position updates started", slog.Int("providers", len(s.providers)))
	return nil
}

// StopUpdates stops the providers. It does not wait for them to return, so it is safe to call
// from within a sample callback. Calling it while stopped has no effect.
func (s *BusSource) StopUpdates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.cancel = nil
	s.session++
	s.logger.Debug("position updates stopped")
}

// current reports whether session is the running session.
func (s *BusSource) current(session uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil && s.session == session
}

// Wait blocks until all goroutines of previous sessions have returned.
func (s *BusSource) Wait() {
	s.wg.Wait()
}

// CurrentFix returns the best non-expired position on the bus.
func (s *BusSource) CurrentFix() (geobus.Coordinate, bool) {
	result, ok := s.bus.Best(BusKey)
	if !ok {
		return geobus.Coordinate{}, false
	}
	return result.Coordinate(), true
}
