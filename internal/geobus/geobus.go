// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/wneessen/placetrack/internal/logger"
)

const (
	accuracyEpsilon = 1e-6
	initialBackoff  = time.Second
	maxBackoff      = 30 * time.Second

	// DefaultJitterDistance is the movement in meters below which a result of equal accuracy
	// does not replace the current best result.
	DefaultJitterDistance = 3.0

	// StaleAfter is the age after which a result no longer counts as the current position of
	// the user, even if its TTL has not expired yet.
	StaleAfter = time.Minute
)

const (
	AccuracyCountry = 300000
	AccuracyRegion  = 100000
	AccuracyCity    = 15000
	AccuracyZip     = 3000
	AccuracyUnknown = 1000000
	TruncPrecision  = 6
)

var ErrLoggerRequired = errors.New("logger is required")

// Provider defines an interface for geolocation service providers.
// It supports retrieving streamed results for a given key.
type Provider interface {
	Name() string
	LookupStream(ctx context.Context, key string) <-chan Result
}

// GeoBus coordinates the publishing and subscribing of geolocation results between providers and consumers.
type GeoBus struct {
	mu          sync.RWMutex
	logger      *logger.Logger
	jitter      float64
	best        map[string]Result
	subscribers map[string]map[chan Result]struct{}
}

// Result represents a geolocation result with associated metadata.
type Result struct {
	Key            string
	Lat, Lon       float64
	Alt            float64
	AccuracyMeters float64
	Source         string
	At             time.Time
	TTL            time.Duration
}

// Coordinate returns the position of the result as Coordinate.
func (r Result) Coordinate() Coordinate {
	return Coordinate{Lat: r.Lat, Lon: r.Lon, Acc: r.AccuracyMeters, Found: true}
}

// BetterThan reports whether the Result is more accurate than prev without being older.
func (r Result) BetterThan(prev Result) bool {
	if prev.Key == "" {
		return true
	}
	if r.At.Before(prev.At) {
		return false
	}
	return r.AccuracyMeters < prev.AccuracyMeters-accuracyEpsilon
}

// Supersedes reports whether the Result should replace prev as the best known position. Newer
// results win if they are more accurate, or if they moved further than jitter meters without
// being considerably less accurate. Results of the same source are always allowed to move.
func (r Result) Supersedes(prev Result, jitter float64) bool {
	if r.At.Before(prev.At) {
		return false
	}
	if r.BetterThan(prev) {
		return true
	}
	if r.Source != prev.Source && r.AccuracyMeters > prev.AccuracyMeters+AccuracyThreshold {
		return false
	}
	return r.Coordinate().DistanceTo(prev.Coordinate()) > jitter
}

// IsExpired checks if the Result has exceeded its time-to-live (TTL) based on the current time and the timestamp.
func (r Result) IsExpired() bool {
	return r.TTL > 0 && time.Since(r.At) > r.TTL
}

// IsStale reports whether the Result is older than StaleAfter.
func (r Result) IsStale() bool {
	return time.Since(r.At) > StaleAfter
}

// New initializes and returns a new instance of GeoBus to handle geolocation result coordination.
func New(logger *logger.Logger) (*GeoBus, error) {
	if logger == nil {
		return nil, ErrLoggerRequired
	}
	return &GeoBus{
		logger:      logger,
		jitter:      DefaultJitterDistance,
		best:        make(map[string]Result),
		subscribers: make(map[string]map[chan Result]struct{}),
	}, nil
}

// SetJitterDistance overrides the movement threshold used when comparing results of similar accuracy.
func (b *GeoBus) SetJitterDistance(meters float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.jitter = meters
}

func (b *GeoBus) NewOrchestrator(provider []Provider) *Orchestrator {
	return &Orchestrator{
		Bus:       b,
		Providers: provider,
	}
}

// Subscribe adds a subscriber for updates associated with the given key and buffer size, returning a result
// channel and an unsubscribe function.
func (b *GeoBus) Subscribe(key string, size int) (<-chan Result, func()) {
	if size < 1 {
		size = 1
	}
	resultChan := make(chan Result, size)
	b.mu.Lock()
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[chan Result]struct{})
	}

	b.subscribers[key][resultChan] = struct{}{}
	if best, ok := b.best[key]; ok && !best.IsExpired() {
		resultChan <- best
	}
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			if subs, ok := b.subscribers[key]; ok {
				delete(subs, resultChan)
				if len(subs) == 0 {
					delete(b.subscribers, key)
				}
			}
			close(resultChan)
			b.mu.Unlock()
		})
	}

	return resultChan, unsub
}

// Publish offers a result to the bus. It is broadcast to the subscribers of its key if it becomes
// the new best result for that key.
func (b *GeoBus) Publish(r Result) {
	if r.AccuracyMeters == 0 {
		return
	}
	if !r.Coordinate().Valid() {
		b.logger.Debug("discarding invalid geolocation result", slog.String("source", r.Source),
			slog.Float64("lat", r.Lat), slog.Float64("lon", r.Lon))
		return
	}
	if r.At.IsZero() {
		r.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	prev, have := b.best[r.Key]
	if !have || prev.IsExpired() || r.Supersedes(prev, b.jitter) {
		b.best[r.Key] = r
		b.broadcastResult(r)
		return
	}

	// Refresh the TTL if the source of the best result confirms it. A stale result that
	// gets confirmed is broadcast again.
	if prev.Source == r.Source && !r.At.Before(prev.At) {
		stale := prev.IsStale()
		prev.At = r.At
		b.best[r.Key] = prev
		if stale {
			b.broadcastResult(prev)
		}
	}
}

// broadcastResult hands the result to every subscriber of its key without blocking. A full
// subscriber channel drops its oldest entry so the newest position always gets through.
func (b *GeoBus) broadcastResult(r Result) {
	subs, ok := b.subscribers[r.Key]
	if !ok {
		return
	}
	for ch := range subs {
		select {
		case ch <- r:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- r:
		default:
			b.logger.Debug("subscriber channel full, dropping geolocation result", slog.String("key", r.Key))
		}
	}
}

// Best returns the current best non-expired result for key.
func (b *GeoBus) Best(key string) (Result, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.best[key]
	return r, ok && !r.IsExpired()
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d *= 2; d > maxBackoff {
		return maxBackoff
	}
	return d
}

func Truncate(x float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Trunc(x*p) / p
}
