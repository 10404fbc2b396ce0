// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package tracker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/wneessen/placetrack/internal/geobus"
	"github.com/wneessen/placetrack/internal/geocode"
	"github.com/wneessen/placetrack/internal/logger"
	"github.com/wneessen/placetrack/internal/routing"
)

type fakeSource struct {
	mu       sync.Mutex
	onSample func(Sample)
	starts   int
	stops    int
	fix      geobus.Coordinate
	hasFix   bool
	startErr error
}

func (s *fakeSource) StartUpdates(onSample func(Sample)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return s.startErr
	}
	s.starts++
	s.onSample = onSample
	return nil
}

func (s *fakeSource) StopUpdates() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.onSample = nil
}

func (s *fakeSource) CurrentFix() (geobus.Coordinate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fix, s.hasFix
}

func (s *fakeSource) setFix(lat, lon float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fix = coord(lat, lon)
	s.hasFix = true
}

// emit delivers a sample like a running position source would. Samples are dropped while
// the source is stopped.
func (s *fakeSource) emit(lat, lon float64) {
	s.mu.Lock()
	fn := s.onSample
	s.mu.Unlock()
	if fn != nil {
		fn(Sample{Coordinate: coord(lat, lon), At: time.Now()})
	}
}

// handler returns the sample callback registered by the last StartUpdates call.
func (s *fakeSource) handler() func(Sample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.onSample
}

type routeReply struct {
	candidates []routing.Candidate
	err        error
}

type routeCall struct {
	ctx         context.Context
	origin      geobus.Coordinate
	destination geobus.Coordinate
	reply       chan routeReply
}

func (c *routeCall) answer(candidates []routing.Candidate, err error) {
	c.reply <- routeReply{candidates: candidates, err: err}
}

// fakeRouter blocks every request until the test answers it, regardless of cancellation,
// like a service that still delivers a late response.
type fakeRouter struct {
	calls chan *routeCall
}

func newFakeRouter() *fakeRouter {
	return &fakeRouter{calls: make(chan *routeCall, 32)}
}

func (r *fakeRouter) Route(ctx context.Context, origin, destination geobus.Coordinate, _ routing.Profile) ([]routing.Candidate, error) {
	call := &routeCall{ctx: ctx, origin: origin, destination: destination, reply: make(chan routeReply, 1)}
	r.calls <- call
	reply := <-call.reply
	return reply.candidates, reply.err
}

func (r *fakeRouter) next(t *testing.T) *routeCall {
	t.Helper()
	select {
	case call := <-r.calls:
		return call
	default:
		t.Fatal("expected a routing request")
		return nil
	}
}

func (r *fakeRouter) pending() int {
	return len(r.calls)
}

type lookupReply struct {
	address geocode.Address
	err     error
}

type lookupCall struct {
	ctx    context.Context
	coords geobus.Coordinate
	reply  chan lookupReply
}

func (c *lookupCall) answer(address geocode.Address, err error) {
	c.reply <- lookupReply{address: address, err: err}
}

type fakeGeocoder struct {
	calls chan *lookupCall
}

func newFakeGeocoder() *fakeGeocoder {
	return &fakeGeocoder{calls: make(chan *lookupCall, 32)}
}

func (g *fakeGeocoder) Reverse(ctx context.Context, coords geobus.Coordinate) (geocode.Address, error) {
	call := &lookupCall{ctx: ctx, coords: coords, reply: make(chan lookupReply, 1)}
	g.calls <- call
	reply := <-call.reply
	return reply.address, reply.err
}

func (g *fakeGeocoder) next(t *testing.T) *lookupCall {
	t.Helper()
	select {
	case call := <-g.calls:
		return call
	default:
		t.Fatal("expected a reverse geocoding request")
		return nil
	}
}

func (g *fakeGeocoder) pending() int {
	return len(g.calls)
}

type recordingObserver struct {
	mu        sync.Mutex
	addresses []string
	routes    [][]routing.Candidate
	failures  []error
}

func (o *recordingObserver) OnAddressUpdated(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.addresses = append(o.addresses, text)
}

func (o *recordingObserver) OnRouteReady(candidates []routing.Candidate) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.routes = append(o.routes, candidates)
}

func (o *recordingObserver) OnRouteFailed(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failures = append(o.failures, err)
}

func (o *recordingObserver) counts() (addresses, routes, failures int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.addresses), len(o.routes), len(o.failures)
}

type testEnv struct {
	source   *fakeSource
	geocoder *fakeGeocoder
	router   *fakeRouter
	observer *recordingObserver
	ctrl     *Controller
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	env := &testEnv{
		source:   &fakeSource{},
		geocoder: newFakeGeocoder(),
		router:   newFakeRouter(),
		observer: &recordingObserver{},
	}
	ctrl, err := New(env.source, env.geocoder, env.router, env.observer, testLogger(), opts...)
	if err != nil {
		t.Fatalf("failed to create controller: %s", err)
	}
	env.ctrl = ctrl
	return env
}

func testLogger() *logger.Logger {
	return logger.NewLogger(slog.LevelDebug, io.Discard)
}

func coord(lat, lon float64) geobus.Coordinate {
	return geobus.Coordinate{Lat: lat, Lon: lon, Acc: 5, Found: true}
}

var testCandidates = []routing.Candidate{
	{DistanceMeters: 1112, DurationSeconds: 800, Summary: "Equator Road"},
	{DistanceMeters: 1250, DurationSeconds: 900, Summary: "Meridian Lane"},
}
