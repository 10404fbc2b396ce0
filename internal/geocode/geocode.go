// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"

	"github.com/wneessen/placetrack/internal/geobus"
	"github.com/wneessen/placetrack/internal/http"
)

var (
	// ErrNotFound is returned when the geocoding service has no result for the query.
	ErrNotFound = errors.New("no geocoding result found")

	// ErrServiceUnavailable is returned when the geocoding service could not be reached or
	// answered with an error.
	ErrServiceUnavailable = errors.New("geocoding service unavailable")
)

type Address struct {
	AddressFound bool
	CacheHit     bool
	Latitude     float64
	Longitude    float64
	Altitude     float64
	DisplayName  string
	Country      string
	State        string
	Municipality string
	CityDistrict string
	Postcode     string
	City         string
	Suburb       string
	Street       string
	HouseNumber  string
}

// Label returns the short address text shown for the current position: street and house
// number, only the street, or an empty string if the address has no street.
func (a Address) Label() string {
	switch {
	case a.Street == "":
		return ""
	case a.HouseNumber == "":
		return a.Street
	default:
		return a.Street + ", " + a.HouseNumber
	}
}

type Geocoder interface {
	Name() string
	Reverse(ctx context.Context, coords geobus.Coordinate) (Address, error)
	Search(ctx context.Context, address string) (geobus.Coordinate, error)
}

// Classify maps a provider error to ErrNotFound or ErrServiceUnavailable. The original error
// stays in the chain. Cancellation by the caller is returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrServiceUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	var statusErr *http.StatusError
	if errors.As(err, &statusErr) && statusErr.Code == stdhttp.StatusNotFound {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return fmt.Errorf("%w: %w", ErrServiceUnavailable, err)
}
