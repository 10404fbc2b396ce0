// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

// GeolocationState tracks the last known geolocation coordinates and accuracy values.
// It provides functionality to detect changes in geolocation data.
type GeolocationState struct {
	last     Coordinate
	haveLast bool
}

// HasChanged reports whether the position of the given coordinate differs from the stored one.
// Accuracy changes alone are not considered a change.
func (s *GeolocationState) HasChanged(coord Coordinate) bool {
	if !s.haveLast {
		return true
	}
	return !s.last.SamePosition(coord)
}

// Update replaces the stored geolocation state with the provided coordinate.
func (s *GeolocationState) Update(new Coordinate) {
	s.last = new
	s.haveLast = true
}
