// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"fmt"
	"math"
)

const (
	EarthRadius       = 6371000.0 // meters
	AccuracyThreshold = 50.0
)

// Coordinate represents a geographic coordinate.
type Coordinate struct {
	Lat float64
	Lon float64
	Acc float64

	CacheHit bool
	Found    bool
}

// DistanceTo returns the great-circle distance in meters between c and other. We are using the
// Haversine formula on a spherical Earth model.
func (c Coordinate) DistanceTo(other Coordinate) float64 {
	dLat := (c.Lat - other.Lat) * math.Pi / 180
	dLon := (c.Lon - other.Lon) * math.Pi / 180
	lat1 := c.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * EarthRadius * math.Asin(math.Sqrt(math.Min(h, 1)))
}

// PosHasSignificantChange checks if the geographic position differs from another by more than
// threshold meters. A considerably better accuracy counts as a significant change as well.
func (c Coordinate) PosHasSignificantChange(other Coordinate, threshold float64) bool {
	if c.Acc > 0 && c.Acc < other.Acc && other.Acc-c.Acc > AccuracyThreshold {
		return true
	}
	return c.DistanceTo(other) > threshold
}

// Valid checks if the coordinate is valid according to the EPSG logic
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// SamePosition reports whether both coordinates point to the same latitude and longitude.
func (c Coordinate) SamePosition(other Coordinate) bool {
	return c.Lat == other.Lat && c.Lon == other.Lon
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lon)
}
