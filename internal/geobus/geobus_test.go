// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"io"
	"log/slog"
	"math"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/placetrack/internal/logger"
)

const testKey = "test"

func TestGeolocationState_HasChanged(t *testing.T) {
	t.Run("empty state always returns true", func(t *testing.T) {
		state := GeolocationState{}
		if !state.HasChanged(Coordinate{Lat: 1, Lon: 1, Acc: AccuracyZip}) {
			t.Error("expected state to have changed")
		}
	})
	t.Run("same coordinate return false", func(t *testing.T) {
		state := GeolocationState{}
		state.Update(Coordinate{Lat: 1, Lon: 1, Acc: AccuracyZip})
		if state.HasChanged(Coordinate{Lat: 1, Lon: 1, Acc: AccuracyZip}) {
			t.Error("expected state to not have changed")
		}
	})
	t.Run("different coordinate return true", func(t *testing.T) {
		tests := []struct {
			name    string
			lat     float64
			lon     float64
			acc     float64
			changed bool
		}{
			{"lat changes", 2, 1, AccuracyZip, true},
			{"lon changes", 1, 2, AccuracyZip, true},
			// an accuracy change is not considered a significant positional change
			{"acc changes", 1, 1, AccuracyCity, false},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				state := GeolocationState{}
				state.Update(Coordinate{Lat: 1, Lon: 1, Acc: AccuracyZip})
				if state.HasChanged(Coordinate{Lat: tc.lat, Lon: tc.lon, Acc: tc.acc}) != tc.changed {
					t.Error("expected state change to be", tc.changed, "but it wasn't")
				}
			})
		}
	})
}

func TestCoordinate_DistanceTo(t *testing.T) {
	tests := []struct {
		name string
		a, b Coordinate
		want float64
		tol  float64
	}{
		{"identical points", Coordinate{Lat: 52.5, Lon: 13.4}, Coordinate{Lat: 52.5, Lon: 13.4}, 0, 1e-9},
		{"0.0001 degrees on the equator", Coordinate{}, Coordinate{Lon: 0.0001}, 11.12, 0.01},
		{"0.0005 degrees on the equator", Coordinate{}, Coordinate{Lon: 0.0005}, 55.60, 0.01},
		{"berlin to paris", Coordinate{Lat: 52.5200, Lon: 13.4050}, Coordinate{Lat: 48.8566, Lon: 2.3522}, 877464, 500},
		{"antipodes", Coordinate{Lat: 0, Lon: 0}, Coordinate{Lat: 0, Lon: 180}, math.Pi * EarthRadius, 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.a.DistanceTo(tc.b)
			if math.Abs(got-tc.want) > tc.tol {
				t.Errorf("expected distance to be %f, got %f", tc.want, got)
			}
			if back := tc.b.DistanceTo(tc.a); math.Abs(back-got) > 1e-6 {
				t.Errorf("expected distance to be symmetric, got %f and %f", got, back)
			}
		})
	}
}

func TestCoordinate_PosHasSignificantChange(t *testing.T) {
	t.Run("movement beyond the threshold is significant", func(t *testing.T) {
		if !(Coordinate{Lon: 0.0005}).PosHasSignificantChange(Coordinate{}, 20) {
			t.Error("expected a change of ~55m to be significant")
		}
	})
	t.Run("movement below the threshold is not significant", func(t *testing.T) {
		if (Coordinate{Lon: 0.0001}).PosHasSignificantChange(Coordinate{}, 20) {
			t.Error("expected a change of ~11m not to be significant")
		}
	})
	t.Run("considerably better accuracy is significant", func(t *testing.T) {
		if !(Coordinate{Acc: 10}).PosHasSignificantChange(Coordinate{Acc: AccuracyCity}, 20) {
			t.Error("expected an accuracy improvement to be significant")
		}
	})
}

func TestCoordinate_Valid(t *testing.T) {
	tests := []struct {
		coord Coordinate
		valid bool
	}{
		{Coordinate{Lat: 0, Lon: 0}, true},
		{Coordinate{Lat: 90, Lon: 180}, true},
		{Coordinate{Lat: -91, Lon: 0}, false},
		{Coordinate{Lat: 0, Lon: 181}, false},
	}
	for _, tc := range tests {
		if tc.coord.Valid() != tc.valid {
			t.Errorf("expected %s validity to be %t", tc.coord, tc.valid)
		}
	}
}

func TestNew(t *testing.T) {
	t.Run("new bus succeeds", func(t *testing.T) {
		bus := testBus(t)
		if bus == nil {
			t.Fatal("expected bus to be non-nil")
		}
	})
	t.Run("nil logger fails", func(t *testing.T) {
		if _, err := New(nil); err == nil {
			t.Fatal("expected bus creation to fail")
		}
	})
}

func TestGeoBus_Publish(t *testing.T) {
	t.Run("first result is broadcast", func(t *testing.T) {
		bus := testBus(t)
		sub, unsub := bus.Subscribe(testKey, 4)
		defer unsub()

		bus.Publish(testResult("gpsd", 52.5, 13.4, 10))
		select {
		case r := <-sub:
			if r.Lat != 52.5 || r.Lon != 13.4 {
				t.Errorf("unexpected result: %+v", r)
			}
		default:
			t.Fatal("expected a result to be broadcast")
		}
	})
	t.Run("results without accuracy are ignored", func(t *testing.T) {
		bus := testBus(t)
		bus.Publish(testResult("gpsd", 52.5, 13.4, 0))
		if _, ok := bus.Best(testKey); ok {
			t.Error("expected no best result")
		}
	})
	t.Run("invalid coordinates are ignored", func(t *testing.T) {
		bus := testBus(t)
		bus.Publish(testResult("gpsd", 152.5, 13.4, 10))
		if _, ok := bus.Best(testKey); ok {
			t.Error("expected no best result")
		}
	})
	t.Run("small movements of the same accuracy are not broadcast", func(t *testing.T) {
		bus := testBus(t)
		sub, unsub := bus.Subscribe(testKey, 4)
		defer unsub()

		bus.Publish(testResult("gpsd", 0, 0, 10))
		<-sub
		bus.Publish(testResult("gpsd", 0, 0.00001, 10))
		select {
		case r := <-sub:
			t.Errorf("expected jitter to be suppressed, got %+v", r)
		default:
		}
	})
	t.Run("walking movements are broadcast", func(t *testing.T) {
		bus := testBus(t)
		sub, unsub := bus.Subscribe(testKey, 4)
		defer unsub()

		bus.Publish(testResult("gpsd", 0, 0, 10))
		<-sub
		bus.Publish(testResult("gpsd", 0, 0.0001, 10))
		select {
		case r := <-sub:
			if r.Lon != 0.0001 {
				t.Errorf("unexpected result: %+v", r)
			}
		default:
			t.Fatal("expected movement to be broadcast")
		}
	})
	t.Run("inaccurate sources do not override precise ones", func(t *testing.T) {
		bus := testBus(t)
		bus.Publish(testResult("gpsd", 52.5, 13.4, 10))
		bus.Publish(testResult("ichnaea", 52.6, 13.5, AccuracyCity))
		best, ok := bus.Best(testKey)
		if !ok {
			t.Fatal("expected a best result")
		}
		if best.Source != "gpsd" {
			t.Errorf("expected gpsd to remain the best source, got %s", best.Source)
		}
	})
	t.Run("more accurate sources override less accurate ones", func(t *testing.T) {
		bus := testBus(t)
		bus.Publish(testResult("ichnaea", 52.6, 13.5, AccuracyCity))
		bus.Publish(testResult("gpsd", 52.5, 13.4, 10))
		best, _ := bus.Best(testKey)
		if best.Source != "gpsd" {
			t.Errorf("expected gpsd to become the best source, got %s", best.Source)
		}
	})
	t.Run("expired results are replaced", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			bus := testBus(t)
			first := testResult("gpsd", 52.5, 13.4, 10)
			first.TTL = time.Minute
			bus.Publish(first)

			time.Sleep(2 * time.Minute)
			if _, ok := bus.Best(testKey); ok {
				t.Fatal("expected best result to be expired")
			}
			bus.Publish(testResult("ichnaea", 52.6, 13.5, AccuracyCity))
			best, ok := bus.Best(testKey)
			if !ok || best.Source != "ichnaea" {
				t.Errorf("expected expired result to be replaced, got %+v", best)
			}
		})
	})
}

func TestGeoBus_PublishConfirmation(t *testing.T) {
	t.Run("fresh confirmations are not broadcast", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			bus := testBus(t)
			sub, unsub := bus.Subscribe(testKey, 4)
			defer unsub()

			bus.Publish(testResult("gpsd", 52.5, 13.4, 10))
			<-sub
			time.Sleep(10 * time.Second)
			bus.Publish(testResult("gpsd", 52.5, 13.4, 10))
			select {
			case r := <-sub:
				t.Errorf("expected confirmation not to be broadcast, got %+v", r)
			default:
			}
			best, _ := bus.Best(testKey)
			if time.Since(best.At) != 0 {
				t.Errorf("expected confirmation to refresh the result time, got %s old", time.Since(best.At))
			}
		})
	})
	t.Run("stale results are broadcast again once confirmed", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			bus := testBus(t)
			sub, unsub := bus.Subscribe(testKey, 4)
			defer unsub()

			first := testResult("gpsd", 52.5, 13.4, 10)
			first.TTL = 10 * time.Minute
			bus.Publish(first)
			<-sub
			time.Sleep(2 * time.Minute)
			best, ok := bus.Best(testKey)
			if !ok || !best.IsStale() {
				t.Fatalf("expected a stale best result, got %+v", best)
			}

			bus.Publish(testResult("gpsd", 52.5, 13.4, 10))
			select {
			case r := <-sub:
				if r.IsStale() {
					t.Errorf("expected confirmed result to be fresh, got %+v", r)
				}
			default:
				t.Fatal("expected confirmed stale result to be broadcast")
			}
		})
	})
}

func TestGeoBus_Subscribe(t *testing.T) {
	t.Run("subscribers receive the current best result", func(t *testing.T) {
		bus := testBus(t)
		bus.Publish(testResult("gpsd", 52.5, 13.4, 10))
		sub, unsub := bus.Subscribe(testKey, 1)
		defer unsub()
		select {
		case <-sub:
		default:
			t.Fatal("expected best result on subscribe")
		}
	})
	t.Run("unsubscribe closes the channel and may be called twice", func(t *testing.T) {
		bus := testBus(t)
		sub, unsub := bus.Subscribe(testKey, 1)
		unsub()
		unsub()
		if _, ok := <-sub; ok {
			t.Error("expected channel to be closed")
		}
		bus.Publish(testResult("gpsd", 52.5, 13.4, 10))
	})
	t.Run("full subscribers receive the newest result", func(t *testing.T) {
		bus := testBus(t)
		sub, unsub := bus.Subscribe(testKey, 1)
		defer unsub()
		bus.Publish(testResult("gpsd", 0, 0, 10))
		bus.Publish(testResult("gpsd", 0, 0.001, 10))
		r := <-sub
		if r.Lon != 0.001 {
			t.Errorf("expected newest result, got %+v", r)
		}
	})
}

func TestOrchestrator_Track(t *testing.T) {
	t.Run("results of all providers are published", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			bus := testBus(t)
			sub, unsub := bus.Subscribe(testKey, 8)
			defer unsub()

			orch := bus.NewOrchestrator([]Provider{
				&staticProvider{name: "static", result: testResult("static", 1, 1, 10)},
				&panicProvider{},
			})
			done := make(chan struct{})
			go func() {
				orch.Track(ctx, testKey)
				close(done)
			}()
			synctest.Wait()

			select {
			case r := <-sub:
				if r.Source != "static" {
					t.Errorf("unexpected source %s", r.Source)
				}
			default:
				t.Fatal("expected a published result")
			}
			cancel()
			<-done
		})
	})
}

func TestTruncate(t *testing.T) {
	if got := Truncate(52.1234567, 4); got != 52.1234 {
		t.Errorf("expected 52.1234, got %f", got)
	}
}

type staticProvider struct {
	name   string
	result Result
}

func (p *staticProvider) Name() string { return p.name }

func (p *staticProvider) LookupStream(ctx context.Context, key string) <-chan Result {
	out := make(chan Result, 1)
	r := p.result
	r.Key = key
	out <- r
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out
}

type panicProvider struct{}

func (p *panicProvider) Name() string { return "panic" }

func (p *panicProvider) LookupStream(context.Context, string) <-chan Result {
	panic("intentionally panicking")
}

func testResult(source string, lat, lon, acc float64) Result {
	return Result{
		Key:            testKey,
		Lat:            lat,
		Lon:            lon,
		AccuracyMeters: acc,
		Source:         source,
		At:             time.Now(),
	}
}

func testBus(t *testing.T) *GeoBus {
	t.Helper()
	bus, err := New(logger.NewLogger(slog.LevelDebug, io.Discard))
	if err != nil {
		t.Fatalf("failed to create geobus: %s", err)
	}
	return bus
}
