// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/placetrack/internal/geobus"
)

// coordPrecision is the precision used to quantize coordinates (0.0001 degrees ≈ 11 m)
const coordPrecision = 1e-4

type cacheKey struct {
	Provider string
	LatQ     int32
	LonQ     int32
}

type cacheEntry struct {
	Address Address
	Err     error
	Expiry  time.Time
}

type searchEntry struct {
	Coordinate geobus.Coordinate
	Err        error
	Expiry     time.Time
}

// CachedGeocoder wraps a Geocoder and caches its results. Successful lookups are kept for
// ttlHit, lookups that found nothing for ttlMiss. Service failures are never cached.
type CachedGeocoder struct {
	coder   Geocoder
	ttlHit  time.Duration
	ttlMiss time.Duration

	mu       sync.RWMutex
	cache    map[cacheKey]cacheEntry
	searches map[string]searchEntry
}

func NewCachedGeocoder(coder Geocoder, ttlHit, ttlMiss time.Duration) *CachedGeocoder {
	return &CachedGeocoder{
		coder:    coder,
		ttlHit:   ttlHit,
		ttlMiss:  ttlMiss,
		cache:    make(map[cacheKey]cacheEntry),
		searches: make(map[string]searchEntry),
	}
}

func (c *CachedGeocoder) Name() string {
	return "geocoder cache using " + c.coder.Name()
}

func (c *CachedGeocoder) Reverse(ctx context.Context, coords geobus.Coordinate) (Address, error) {
	key := newKey(c.coder.Name(), coords.Lat, coords.Lon)

	c.mu.RLock()
	entry, ok := c.cache[key]
	if ok && time.Now().Before(entry.Expiry) {
		addr := entry.Address
		c.mu.RUnlock()
		if entry.Err != nil {
			return Address{}, entry.Err
		}
		addr.CacheHit = true
		return addr, nil
	}
	c.mu.RUnlock()

	addr, err := c.coder.Reverse(ctx, coords)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return addr, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.ttlHit
	if err != nil || !addr.AddressFound {
		ttl = c.ttlMiss
	}
	c.cache[key] = cacheEntry{
		Address: addr,
		Err:     err,
		Expiry:  time.Now().Add(ttl),
	}

	return addr, err
}

func (c *CachedGeocoder) Search(ctx context.Context, address string) (geobus.Coordinate, error) {
	key := c.coder.Name() + "|" + normalizeQuery(address)

	c.mu.RLock()
	entry, ok := c.searches[key]
	if ok && time.Now().Before(entry.Expiry) {
		coords := entry.Coordinate
		c.mu.RUnlock()
		if entry.Err != nil {
			return geobus.Coordinate{}, entry.Err
		}
		coords.CacheHit = true
		return coords, nil
	}
	c.mu.RUnlock()

	coords, err := c.coder.Search(ctx, address)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return coords, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ttl := c.ttlHit
	if err != nil || !coords.Found {
		ttl = c.ttlMiss
	}
	c.searches[key] = searchEntry{
		Coordinate: coords,
		Err:        err,
		Expiry:     time.Now().Add(ttl),
	}

	return coords, err
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

func quantizeCoord(val float64) int32 {
	return int32(math.Round(val / coordPrecision))
}

func newKey(provider string, lat, lon float64) cacheKey {
	return cacheKey{
		Provider: provider,
		LatQ:     quantizeCoord(lat),
		LonQ:     quantizeCoord(lon),
	}
}
