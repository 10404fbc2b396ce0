// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/synctest"
	"time"

	"github.com/wneessen/placetrack/internal/geobus"
)

const (
	testFile  = "../../../../testdata/geolocation"
	testTrack = "../../../../testdata/geolocation_track"
	testLat   = 40.7185
	testLon   = -74.0025
)

func TestNewGeolocationFileProvider(t *testing.T) {
	t.Run("new geolocation file provider succeeds", func(t *testing.T) {
		provider := NewGeolocationFileProvider(testFile, 0)
		if provider == nil {
			t.Fatal("expected provider to be non-nil")
		}
		if provider.period != time.Minute*2 {
			t.Errorf("expected default period, got %s", provider.period)
		}
	})
}

func TestGeolocationFileProvider_Name(t *testing.T) {
	provider := NewGeolocationFileProvider(testFile, 0)
	if !strings.EqualFold(provider.Name(), name) {
		t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
	}
}

func TestGeolocationFileProvider_readFile(t *testing.T) {
	t.Run("read file succeeds", func(t *testing.T) {
		provider := NewGeolocationFileProvider(testFile, 0)
		track, err := provider.readFile()
		if err != nil {
			t.Fatalf("failed to read file: %s", err)
		}
		if len(track) != 1 {
			t.Fatalf("expected one coordinate, got %d", len(track))
		}
		if track[0].Lat != testLat {
			t.Errorf("expected latitude to be %f, got %f", testLat, track[0].Lat)
		}
		if track[0].Lon != testLon {
			t.Errorf("expected longitude to be %f, got %f", testLon, track[0].Lon)
		}
	})
	t.Run("read track succeeds", func(t *testing.T) {
		provider := NewGeolocationFileProvider(testTrack, 0)
		track, err := provider.readFile()
		if err != nil {
			t.Fatalf("failed to read file: %s", err)
		}
		if len(track) != 3 {
			t.Fatalf("expected three coordinates, got %d", len(track))
		}
	})
	t.Run("read of non-existent file fails", func(t *testing.T) {
		provider := NewGeolocationFileProvider("non-existent.txt", 0)
		if _, err := provider.readFile(); err == nil {
			t.Error("expected error, but didn't get one")
		}
	})
	t.Run("reading invalid files fails", func(t *testing.T) {
		for _, file := range []string{"_nocoord", "_brokenlat", "_brokenlon"} {
			t.Run(file, func(t *testing.T) {
				provider := NewGeolocationFileProvider(testFile+file, 0)
				_, err := provider.readFile()
				if !errors.Is(err, ErrNoCoordinates) {
					t.Errorf("expected error to be %s, got %v", ErrNoCoordinates, err)
				}
			})
		}
	})
}

func TestGeolocationFileProvider_createResult(t *testing.T) {
	provider := NewGeolocationFileProvider(testFile, 0)
	result := provider.createResult("test", geobus.Coordinate{Lat: testLat, Lon: testLon, Acc: Accuracy})
	if result.Lat != testLat || result.Lon != testLon {
		t.Errorf("unexpected coordinates %f,%f", result.Lat, result.Lon)
	}
	if result.Key != "test" {
		t.Errorf("expected key to be %s, got %s", "test", result.Key)
	}
	if result.AccuracyMeters != Accuracy {
		t.Errorf("expected accuracy to be %d, got %f", Accuracy, result.AccuracyMeters)
	}
	if result.Source != provider.Name() {
		t.Errorf("expected source to be %s, got %s", provider.Name(), result.Source)
	}
	if result.TTL != provider.ttl {
		t.Errorf("expected TTL to be %d, got %d", provider.ttl, result.TTL)
	}
}

func TestGeolocationFileProvider_LookupStream(t *testing.T) {
	t.Run("lookup stream succeeds", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			provider := NewGeolocationFileProvider(testFile, time.Millisecond*10)
			out := provider.LookupStream(ctx, "test")
			result := <-out
			cancel()
			synctest.Wait()

			if result.Key != "test" {
				t.Errorf("expected key to be %s, got %s", "test", result.Key)
			}
			if result.Lat != testLat || result.Lon != testLon {
				t.Errorf("unexpected coordinates %f,%f", result.Lat, result.Lon)
			}
			if result.Source != provider.Name() {
				t.Errorf("expected source to be %s, got %s", provider.Name(), result.Source)
			}
		})
	})
	t.Run("tracks are replayed in order", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			provider := NewGeolocationFileProvider(testTrack, time.Second)
			out := provider.LookupStream(ctx, "test")
			want := []float64{0, 0.0001, 0.0005}
			for i, lon := range want {
				r := <-out
				if r.Lon != lon {
					t.Errorf("expected position %d to have longitude %f, got %f", i, lon, r.Lon)
				}
			}

			// the last position is held and not emitted again
			time.Sleep(time.Second * 5)
			select {
			case r := <-out:
				t.Errorf("expected no further results, got %+v", r)
			default:
			}
		})
	})
	t.Run("lookup stream fails during lookup", func(t *testing.T) {
		runCount := 0
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			provider := NewGeolocationFileProvider(testFile, time.Millisecond*10)
			provider.locateFn = func() ([]geobus.Coordinate, error) {
				if runCount == 0 {
					runCount++
					return nil, errors.New("intentionally failing")
				}
				return []geobus.Coordinate{{Lat: 1.0, Lon: 2.0, Acc: Accuracy}}, nil
			}

			out := provider.LookupStream(ctx, "test")
			result := <-out
			cancel()
			synctest.Wait()

			if result.Lat != 1.0 || result.Lon != 2.0 {
				t.Errorf("unexpected coordinates %f,%f", result.Lat, result.Lon)
			}
		})
	})
}
