// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package places holds the list of saved places and resolves a place into a destination.
package places

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/wneessen/placetrack/internal/geobus"
	"github.com/wneessen/placetrack/internal/geocode"
	"github.com/wneessen/placetrack/internal/tracker"
)

const MaxRating = 5

var (
	ErrEmptyName     = errors.New("place name must not be empty")
	ErrDuplicateName = errors.New("duplicate place name")
	ErrInvalidRating = errors.New("place rating out of range")
	ErrNoLocation    = errors.New("place has no location")
	ErrPlaceNotFound = errors.New("place not found")
	ErrInvalidSort   = errors.New("invalid sort key")
)

// Place is a saved place as configured by the user.
type Place struct {
	Name     string    `fig:"name" json:"name"`
	Location string    `fig:"location" json:"location"`
	Type     string    `fig:"type" json:"type"`
	Rating   int       `fig:"rating" json:"rating"`
	Image    string    `fig:"image" json:"image,omitempty"`
	Added    time.Time `fig:"added" json:"added"`
}

// Stars renders the rating as filled and empty stars.
func (p Place) Stars() string {
	rating := min(max(p.Rating, 0), MaxRating)
	return strings.Repeat("★", rating) + strings.Repeat("☆", MaxRating-rating)
}

type SortKey int

const (
	SortByDate SortKey = iota
	SortByName
)

func (k SortKey) String() string {
	if k == SortByName {
		return "name"
	}
	return "date"
}

func ParseSortKey(value string) (SortKey, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "date":
		return SortByDate, nil
	case "name":
		return SortByName, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidSort, value)
	}
}

// Store is an in-memory, read-only list of places.
type Store struct {
	places []Place
}

// NewStore validates the given places and returns a Store holding copies of them.
func NewStore(places []Place) (*Store, error) {
	seen := make(map[string]struct{}, len(places))
	for i, place := range places {
		name := strings.ToLower(strings.TrimSpace(place.Name))
		if name == "" {
			return nil, fmt.Errorf("place %d: %w", i+1, ErrEmptyName)
		}
		if _, ok := seen[name]; ok {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, place.Name)
		}
		seen[name] = struct{}{}
		if place.Rating < 0 || place.Rating > MaxRating {
			return nil, fmt.Errorf("%w: %q has rating %d, must be between 0 and %d", ErrInvalidRating,
				place.Name, place.Rating, MaxRating)
		}
	}
	return &Store{places: slices.Clone(places)}, nil
}

func (s *Store) Len() int {
	return len(s.places)
}

// List returns all places sorted by key. Names are compared case-insensitively.
func (s *Store) List(key SortKey, ascending bool) []Place {
	list := slices.Clone(s.places)
	slices.SortStableFunc(list, func(a, b Place) int {
		var cmp int
		switch key {
		case SortByName:
			cmp = strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
		default:
			cmp = a.Added.Compare(b.Added)
		}
		if !ascending {
			cmp = -cmp
		}
		return cmp
	})
	return list
}

// Search returns the places whose name or location contains query, ignoring case. An empty
// query matches every place.
func (s *Store) Search(query string) []Place {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return slices.Clone(s.places)
	}
	var result []Place
	for _, place := range s.places {
		if strings.Contains(strings.ToLower(place.Name), query) ||
			strings.Contains(strings.ToLower(place.Location), query) {
			result = append(result, place)
		}
	}
	return result
}

// Find returns the place with the given name, ignoring case.
func (s *Store) Find(name string) (Place, error) {
	for _, place := range s.places {
		if strings.EqualFold(strings.TrimSpace(place.Name), strings.TrimSpace(name)) {
			return place, nil
		}
	}
	return Place{}, fmt.Errorf("%w: %q", ErrPlaceNotFound, name)
}

type Searcher interface {
	Search(ctx context.Context, address string) (geobus.Coordinate, error)
}

// ResolvePlace geocodes the location of place and returns it as destination.
func ResolvePlace(ctx context.Context, searcher Searcher, place Place) (tracker.PlaceMark, error) {
	if strings.TrimSpace(place.Location) == "" {
		return tracker.PlaceMark{}, fmt.Errorf("%w: %q", ErrNoLocation, place.Name)
	}
	coords, err := searcher.Search(ctx, place.Location)
	if err != nil {
		return tracker.PlaceMark{}, fmt.Errorf("failed to geocode location of %q: %w", place.Name, err)
	}
	if !coords.Found {
		return tracker.PlaceMark{}, fmt.Errorf("failed to geocode location of %q: %w", place.Name, geocode.ErrNotFound)
	}
	return tracker.PlaceMark{
		Coordinate: coords,
		Name:       place.Name,
		Subtype:    place.Type,
	}, nil
}
