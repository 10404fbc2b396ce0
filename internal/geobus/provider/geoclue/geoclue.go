// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geoclue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/placetrack/internal/geobus"
)

const (
	busName       = "org.freedesktop.GeoClue2"
	managerPath   = "/org/freedesktop/GeoClue2/Manager"
	managerIface  = busName + ".Manager"
	clientIface   = busName + ".Client"
	locationIface = busName + ".Location"
	signalUpdated = clientIface + ".LocationUpdated"
	name          = "geoclue"

	// AccuracyLevelExact is GCLUE_ACCURACY_LEVEL_EXACT
	AccuracyLevelExact uint32 = 8
)

var ErrSignalChannelClosed = errors.New("dbus signal channel closed")

// propertyGetter is the subset of dbus.BusObject needed to read a location object.
type propertyGetter interface {
	GetProperty(p string) (dbus.Variant, error)
}

// GeolocationGeoClueProvider receives position updates from the GeoClue2 service on the system
// D-Bus.
type GeolocationGeoClueProvider struct {
	name      string
	desktopID string
	threshold uint32
	period    time.Duration
	ttl       time.Duration
	watchFn   func(ctx context.Context, updates chan<- geobus.Coordinate) error
}

// NewGeolocationGeoClueProvider returns a provider registering as desktopID with GeoClue2. GeoClue
// is asked to only report movements of at least threshold meters.
func NewGeolocationGeoClueProvider(desktopID string, threshold uint32) *GeolocationGeoClueProvider {
	provider := &GeolocationGeoClueProvider{
		name:      name,
		desktopID: desktopID,
		threshold: threshold,
		period:    time.Second * 30,
		ttl:       time.Minute * 5,
	}
	provider.watchFn = provider.watch
	return provider
}

func (p *GeolocationGeoClueProvider) Name() string {
	return p.name
}

// LookupStream registers a GeoClue client and emits a result for every changed location. When
// the D-Bus session ends the client is registered again after the provider period.
func (p *GeolocationGeoClueProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)

	go func() {
		defer close(out)
		state := geobus.GeolocationState{}

		for {
			updates := make(chan geobus.Coordinate)
			watchErr := make(chan error, 1)
			go func() {
				watchErr <- p.watchFn(ctx, updates)
			}()

		watch:
			for {
				select {
				case <-ctx.Done():
					return
				case <-watchErr:
					break watch
				case coord := <-updates:
					if !state.HasChanged(coord) {
						continue
					}
					state.Update(coord)
					select {
					case <-ctx.Done():
						return
					case out <- p.createResult(key, coord):
					}
				}
			}

			select {
			case <-ctx.Done():
				return
			case <-time.After(p.period):
			}
		}
	}()

	return out
}

// watch registers a GeoClue client on the system bus and forwards its location updates until
// the context is done or the bus connection fails.
func (p *GeolocationGeoClueProvider) watch(ctx context.Context, updates chan<- geobus.Coordinate) (err error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("failed to close system bus: %w", closeErr))
		}
	}()

	var clientPath dbus.ObjectPath
	manager := conn.Object(busName, managerPath)
	if err = manager.CallWithContext(ctx, managerIface+".GetClient", 0).Store(&clientPath); err != nil {
		return fmt.Errorf("failed to get geoclue client: %w", err)
	}

	client := conn.Object(busName, clientPath)
	if err = client.SetProperty(clientIface+".DesktopId", dbus.MakeVariant(p.desktopID)); err != nil {
		return fmt.Errorf("failed to set desktop id: %w", err)
	}
	if err = client.SetProperty(clientIface+".RequestedAccuracyLevel", dbus.MakeVariant(AccuracyLevelExact)); err != nil {
		return fmt.Errorf("failed to set requested accuracy level: %w", err)
	}
	if err = client.SetProperty(clientIface+".DistanceThreshold", dbus.MakeVariant(p.threshold)); err != nil {
		return fmt.Errorf("failed to set distance threshold: %w", err)
	}

	if err = conn.AddMatchSignalContext(ctx,
		dbus.WithMatchObjectPath(clientPath),
		dbus.WithMatchInterface(clientIface),
		dbus.WithMatchMember("LocationUpdated"),
	); err != nil {
		return fmt.Errorf("failed to subscribe to location updates: %w", err)
	}
	signals := make(chan *dbus.Signal, 8)
	conn.Signal(signals)
	defer conn.RemoveSignal(signals)

	if err = client.CallWithContext(ctx, clientIface+".Start", 0).Err; err != nil {
		return fmt.Errorf("failed to start geoclue client: %w", err)
	}
	defer client.Call(clientIface+".Stop", 0)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return ErrSignalChannelClosed
			}
			path, ok := locationPath(sig)
			if !ok {
				continue
			}
			coord, err := readLocation(conn.Object(busName, path))
			if err != nil {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case updates <- coord:
			}
		}
	}
}

// createResult composes and returns a Result using provided geolocation data and metadata.
func (p *GeolocationGeoClueProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
	return geobus.Result{
		Key:            key,
		Lat:            coord.Lat,
		Lon:            coord.Lon,
		AccuracyMeters: coord.Acc,
		Source:         p.name,
		At:             time.Now(),
		TTL:            p.ttl,
	}
}

// locationPath extracts the object path of the new location from a LocationUpdated signal.
func locationPath(sig *dbus.Signal) (dbus.ObjectPath, bool) {
	if sig == nil || sig.Name != signalUpdated || len(sig.Body) != 2 {
		return "", false
	}
	path, ok := sig.Body[1].(dbus.ObjectPath)
	if !ok || !path.IsValid() || path == "/" {
		return "", false
	}
	return path, true
}

func readLocation(obj propertyGetter) (geobus.Coordinate, error) {
	lat, err := floatProperty(obj, "Latitude")
	if err != nil {
		return geobus.Coordinate{}, err
	}
	lon, err := floatProperty(obj, "Longitude")
	if err != nil {
		return geobus.Coordinate{}, err
	}
	acc, err := floatProperty(obj, "Accuracy")
	if err != nil {
		return geobus.Coordinate{}, err
	}

	coord := geobus.Coordinate{
		Lat:   geobus.Truncate(lat, geobus.TruncPrecision),
		Lon:   geobus.Truncate(lon, geobus.TruncPrecision),
		Acc:   acc,
		Found: true,
	}
	if !coord.Valid() {
		return geobus.Coordinate{}, fmt.Errorf("geoclue reported an invalid location: %s", coord)
	}
	return coord, nil
}

func floatProperty(obj propertyGetter, property string) (float64, error) {
	variant, err := obj.GetProperty(locationIface + "." + property)
	if err != nil {
		return 0, fmt.Errorf("failed to get location %s: %w", property, err)
	}
	var value float64
	if err = variant.Store(&value); err != nil {
		return 0, fmt.Errorf("failed to read location %s: %w", property, err)
	}
	return value, nil
}
