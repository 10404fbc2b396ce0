// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"errors"
	"testing"
	"testing/synctest"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/placetrack/internal/geobus"
)

type fakeLocation map[string]any

func (f fakeLocation) GetProperty(p string) (dbus.Variant, error) {
	v, ok := f[p]
	if !ok {
		return dbus.Variant{}, errors.New("no such property")
	}
	return dbus.MakeVariant(v), nil
}

func TestNewGeolocationGeoClueProvider(t *testing.T) {
	provider := NewGeolocationGeoClueProvider("placetrack", 20)
	if provider == nil {
		t.Fatal("expected provider to be non-nil")
	}
	if provider.Name() != name {
		t.Errorf("expected provider name to be %s, got %s", name, provider.Name())
	}
	if provider.threshold != 20 {
		t.Errorf("expected threshold to be 20, got %d", provider.threshold)
	}
}

func TestLocationPath(t *testing.T) {
	tests := []struct {
		name string
		sig  *dbus.Signal
		want dbus.ObjectPath
		ok   bool
	}{
		{"nil signal", nil, "", false},
		{"other signal", &dbus.Signal{Name: "org.example.Other", Body: []any{dbus.ObjectPath("/"), dbus.ObjectPath("/a")}}, "", false},
		{"short body", &dbus.Signal{Name: signalUpdated, Body: []any{dbus.ObjectPath("/")}}, "", false},
		{"wrong type", &dbus.Signal{Name: signalUpdated, Body: []any{"/", "/a"}}, "", false},
		{"root path", &dbus.Signal{Name: signalUpdated, Body: []any{dbus.ObjectPath("/a"), dbus.ObjectPath("/")}}, "", false},
		{
			"location update",
			&dbus.Signal{Name: signalUpdated, Body: []any{
				dbus.ObjectPath("/"),
				dbus.ObjectPath("/org/freedesktop/GeoClue2/Client/1/Location/0"),
			}},
			"/org/freedesktop/GeoClue2/Client/1/Location/0", true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := locationPath(tc.sig)
			if ok != tc.ok || got != tc.want {
				t.Errorf("expected %q/%t, got %q/%t", tc.want, tc.ok, got, ok)
			}
		})
	}
}

func TestReadLocation(t *testing.T) {
	t.Run("reading a location succeeds", func(t *testing.T) {
		loc := fakeLocation{
			locationIface + ".Latitude":  52.5129,
			locationIface + ".Longitude": 13.3910,
			locationIface + ".Accuracy":  25.0,
		}
		coord, err := readLocation(loc)
		if err != nil {
			t.Fatalf("failed to read location: %s", err)
		}
		if coord.Lat != 52.5129 || coord.Lon != 13.3910 || coord.Acc != 25 {
			t.Errorf("unexpected coordinate %+v", coord)
		}
	})
	t.Run("missing properties fail", func(t *testing.T) {
		loc := fakeLocation{locationIface + ".Latitude": 52.5129}
		if _, err := readLocation(loc); err == nil {
			t.Fatal("expected reading the location to fail")
		}
	})
	t.Run("wrongly typed properties fail", func(t *testing.T) {
		loc := fakeLocation{
			locationIface + ".Latitude":  "52.5",
			locationIface + ".Longitude": 13.3910,
			locationIface + ".Accuracy":  25.0,
		}
		if _, err := readLocation(loc); err == nil {
			t.Fatal("expected reading the location to fail")
		}
	})
	t.Run("invalid coordinates fail", func(t *testing.T) {
		loc := fakeLocation{
			locationIface + ".Latitude":  152.5,
			locationIface + ".Longitude": 13.3910,
			locationIface + ".Accuracy":  25.0,
		}
		if _, err := readLocation(loc); err == nil {
			t.Fatal("expected reading the location to fail")
		}
	})
}

func TestGeolocationGeoClueProvider_LookupStream(t *testing.T) {
	t.Run("bus failures are retried", func(t *testing.T) {
		synctest.Test(t, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			defer cancel()

			runCount := 0
			provider := NewGeolocationGeoClueProvider("placetrack", 0)
			provider.period = time.Second
			provider.watchFn = func(ctx context.Context, updates chan<- geobus.Coordinate) error {
				runCount++
				if runCount == 1 {
					return errors.New("intentionally failing")
				}
				updates <- geobus.Coordinate{Lat: 1, Lon: 2, Acc: 3}
				<-ctx.Done()
				return ctx.Err()
			}

			out := provider.LookupStream(ctx, "test")
			result := <-out
			cancel()
			synctest.Wait()

			if result.Lat != 1 || result.Lon != 2 || result.AccuracyMeters != 3 {
				t.Errorf("unexpected result %+v", result)
			}
			if result.Source != name || result.Key != "test" {
				t.Errorf("unexpected result metadata %+v", result)
			}
		})
	})
}
