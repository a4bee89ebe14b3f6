// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geocode

import (
	"context"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/mapstate/internal/geobus"
)

// gridSize quantizes coordinates for cache keys. 0.0001° is at most 11 m, so two fixes that
// pass the distance filter of the location tracker never share a cell.
const gridSize = 1e-4

type bypassKey struct{}

// BypassCache returns a context that makes cached lookups go to the wrapped provider. The fresh
// answer replaces the cached one.
func BypassCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

func bypassed(ctx context.Context) bool {
	bypass, _ := ctx.Value(bypassKey{}).(bool)
	return bypass
}

type gridCell struct {
	lat, lon int32
}

func cellOf(coord geobus.Coordinate) gridCell {
	return gridCell{
		lat: int32(math.Round(coord.Lat / gridSize)),
		lon: int32(math.Round(coord.Lon / gridSize)),
	}
}

// ttlStore is a map whose entries expire. Expired entries are purged on every write.
type ttlStore[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]ttlEntry[V]
}

type ttlEntry[V any] struct {
	value  V
	expiry time.Time
}

func newTTLStore[K comparable, V any]() *ttlStore[K, V] {
	return &ttlStore[K, V]{entries: make(map[K]ttlEntry[V])}
}

func (s *ttlStore[K, V]) get(key K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok || !time.Now().Before(entry.expiry) {
		var zero V
		return zero, false
	}
	return entry.value, true
}

func (s *ttlStore[K, V]) put(key K, value V, ttl time.Duration) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.entries {
		if !now.Before(e.expiry) {
			delete(s.entries, k)
		}
	}
	s.entries[key] = ttlEntry[V]{value: value, expiry: now.Add(ttl)}
}

func (s *ttlStore[K, V]) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

type reverseKey struct {
	provider string
	cell     gridCell
}

// CachedGeocoder wraps a Geocoder and caches reverse lookups on a coarse coordinate grid. Lookups
// that did not find an address are cached with their own, usually shorter, TTL.
type CachedGeocoder struct {
	coder   Geocoder
	ttlHit  time.Duration
	ttlMiss time.Duration
	store   *ttlStore[reverseKey, Address]
}

func NewCachedGeocoder(coder Geocoder, ttlHit, ttlMiss time.Duration) *CachedGeocoder {
	return &CachedGeocoder{
		coder:   coder,
		ttlHit:  ttlHit,
		ttlMiss: ttlMiss,
		store:   newTTLStore[reverseKey, Address](),
	}
}

func (c *CachedGeocoder) Name() string {
	return "geocoder cache using " + c.coder.Name()
}

func (c *CachedGeocoder) Reverse(ctx context.Context, coords geobus.Coordinate) (Address, error) {
	key := reverseKey{provider: c.coder.Name(), cell: cellOf(coords)}
	if !bypassed(ctx) {
		if addr, ok := c.store.get(key); ok {
			addr.CacheHit = true
			return addr, nil
		}
	}

	addr, err := c.coder.Reverse(ctx, coords)
	if err != nil {
		return addr, err
	}

	ttl := c.ttlHit
	if !addr.AddressFound {
		ttl = c.ttlMiss
	}
	c.store.put(key, addr, ttl)
	return addr, nil
}

type searchKey struct {
	provider string
	query    string
	cell     gridCell
	radius   float64
}

// CachedSearcher wraps a Searcher and caches result lists per normalized query, search area
// and radius. Failed searches are not cached.
type CachedSearcher struct {
	searcher Searcher
	ttl      time.Duration
	store    *ttlStore[searchKey, []Place]
}

func NewCachedSearcher(searcher Searcher, ttl time.Duration) *CachedSearcher {
	return &CachedSearcher{
		searcher: searcher,
		ttl:      ttl,
		store:    newTTLStore[searchKey, []Place](),
	}
}

func (c *CachedSearcher) Name() string {
	return "search cache using " + c.searcher.Name()
}

// SearchNearby returns a copy of the cached result list, so callers may modify it.
func (c *CachedSearcher) SearchNearby(ctx context.Context, query string, center geobus.Coordinate, radius float64) ([]Place, error) {
	key := searchKey{
		provider: c.searcher.Name(),
		query:    strings.ToLower(strings.Join(strings.Fields(query), " ")),
		cell:     cellOf(center),
		radius:   radius,
	}
	if !bypassed(ctx) {
		if places, ok := c.store.get(key); ok {
			return slices.Clone(places), nil
		}
	}

	places, err := c.searcher.SearchNearby(ctx, query, center, radius)
	if err != nil {
		return nil, err
	}
	c.store.put(key, slices.Clone(places), c.ttl)
	return places, nil
}
