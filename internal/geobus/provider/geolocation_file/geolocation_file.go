// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geolocation_file

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/wneessen/placetrack/internal/geobus"
)

const (
	name = "geolocation_file"

	// Accuracy is the accuracy assigned to coordinates read from the file. We consider them the
	// most accurate data available.
	Accuracy = 5
)

var ErrNoCoordinates = fmt.Errorf("no valid coordinates found in geolocation file")

// GeolocationFileProvider reads geolocation data from a file and emits updates via a stream.
// A file holding a single "lat,lon" line pins the position. A file holding several lines is
// treated as a track and replayed one position per period, holding the last position once the
// end of the track is reached.
type GeolocationFileProvider struct {
	name     string
	path     string
	period   time.Duration
	ttl      time.Duration
	locateFn func() ([]geobus.Coordinate, error)
}

// NewGeolocationFileProvider initializes a GeolocationFileProvider with a file path and the
// interval in which the file is re-read or the track advances.
func NewGeolocationFileProvider(path string, period time.Duration) *GeolocationFileProvider {
	if period <= 0 {
		period = time.Minute * 2
	}
	provider := &GeolocationFileProvider{
		name:   name,
		path:   path,
		period: period,
		ttl:    time.Hour * 1,
	}
	provider.locateFn = provider.readFile
	return provider
}

// Name returns the name of the GeolocationFileProvider instance.
func (p *GeolocationFileProvider) Name() string {
	return p.name
}

// LookupStream continuously streams geolocation results from the file, emitting updates when the
// position changes or the context ends.
func (p *GeolocationFileProvider) LookupStream(ctx context.Context, key string) <-chan geobus.Result {
	out := make(chan geobus.Result)
	go func() {
		defer close(out)
		state := geobus.GeolocationState{}
		firstRun := true
		index := 0

		for {
			if !firstRun {
				select {
				case <-ctx.Done():
					return
				case <-time.After(p.period):
				}
			}
			firstRun = false

			track, err := p.locateFn()
			if err != nil || len(track) == 0 {
				continue
			}
			if index >= len(track) {
				index = len(track) - 1
			}
			coord := track[index]
			index++

			// Only emit if values changed or it's the first read
			if state.HasChanged(coord) {
				state.Update(coord)
				r := p.createResult(key, coord)

				select {
				case <-ctx.Done():
					return
				case out <- r:
				}
			}
		}
	}()
	return out
}

// createResult composes and returns a Result using provided geolocation data and metadata.
func (p *GeolocationFileProvider) createResult(key string, coord geobus.Coordinate) geobus.Result {
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

// readFile reads all valid "lat,lon" lines of the file at the configured path. Comments
// starting with # and unparsable lines are skipped.
func (p *GeolocationFileProvider) readFile() ([]geobus.Coordinate, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read geolocation file %q: %w", p.path, err)
	}

	var track []geobus.Coordinate
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		coords := strings.Split(line, ",")
		if len(coords) != 2 {
			continue
		}
		lat, err := strconv.ParseFloat(strings.TrimSpace(coords[0]), 64)
		if err != nil {
			continue
		}
		lon, err := strconv.ParseFloat(strings.TrimSpace(coords[1]), 64)
		if err != nil {
			continue
		}
		coord := geobus.Coordinate{Lat: lat, Lon: lon, Acc: Accuracy}
		if !coord.Valid() {
			continue
		}
		track = append(track, coord)
	}
	if len(track) == 0 {
		return nil, ErrNoCoordinates
	}
	return track, nil
}
