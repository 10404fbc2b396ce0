// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package tracker

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/wneessen/placetrack/internal/geobus"
	"github.com/wneessen/placetrack/internal/routing"
)

type RouteStatus int

const (
	RoutePending RouteStatus = iota
	RouteCompleted
	RouteCancelled
	RouteFailed
)

func (s RouteStatus) String() string {
	switch s {
	case RoutePending:
		return "pending"
	case RouteCompleted:
		return "completed"
	case RouteCancelled:
		return "cancelled"
	case RouteFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// RouteRequest tracks a single routing request. Once it left the pending state its status
// and result never change again.
type RouteRequest struct {
	id          uuid.UUID
	origin      geobus.Coordinate
	destination geobus.Coordinate
	cancel      context.CancelFunc
	done        chan struct{}

	mu         sync.Mutex
	status     RouteStatus
	candidates []routing.Candidate
	err        error
}

func newRouteRequest(origin, destination geobus.Coordinate, cancel context.CancelFunc) *RouteRequest {
	return &RouteRequest{
		id:          uuid.New(),
		origin:      origin,
		destination: destination,
		cancel:      cancel,
		done:        make(chan struct{}),
		status:      RoutePending,
	}
}

func (r *RouteRequest) ID() uuid.UUID {
	return r.id
}

func (r *RouteRequest) Origin() geobus.Coordinate {
	return r.origin
}

func (r *RouteRequest) Destination() geobus.Coordinate {
	return r.destination
}

func (r *RouteRequest) Status() RouteStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Done returns a channel that is closed when the request reached a terminal state.
func (r *RouteRequest) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request is finished or ctx is done and returns the route candidates.
func (r *RouteRequest) Wait(ctx context.Context) ([]routing.Candidate, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-r.done:
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.candidates, r.err
}

// finish moves a pending request into a terminal state. It reports false if the request
// already was terminal.
func (r *RouteRequest) finish(status RouteStatus, candidates []routing.Candidate, err error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status != RoutePending {
		return false
	}
	r.status = status
	r.candidates = candidates
	r.err = err
	close(r.done)
	return true
}

// abort cancels a pending request and releases its context.
func (r *RouteRequest) abort() {
	r.finish(RouteCancelled, nil, ErrRouteCancelled)
	r.cancel()
}
