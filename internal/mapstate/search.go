// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapstate

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wneessen/mapstate/internal/geobus"
	"github.com/wneessen/mapstate/internal/metrics"
)

// searchCoordinator is the state of the nearby search. Only accessed by the owner goroutine.
type searchCoordinator struct {
	query    string
	results  []Place
	selected *Place
	failed   bool

	seq    uint64
	cancel context.CancelFunc

	debounce    *time.Timer
	debounceSeq uint64
}

func (s *searchCoordinator) state() SearchState {
	switch {
	case s.debounce != nil:
		return SearchDebouncing
	case s.cancel != nil:
		return Searching
	default:
		return SearchIdle
	}
}

// setQuery stores text. A blank query clears the search without asking the provider. Otherwise
// a search is started after the debounce period unless another query arrives first.
func (f *Facade) setQuery(text string) {
	s := &f.search
	s.query = text
	if strings.TrimSpace(text) == "" {
		f.clearSearch()
		return
	}
	if f.conf.SearchDebounce <= 0 {
		return
	}

	f.stopDebounce()
	token := s.debounceSeq
	s.debounce = time.AfterFunc(f.conf.SearchDebounce, func() {
		f.post(func() {
			if token != f.search.debounceSeq {
				return
			}
			f.search.debounce = nil
			f.runSearch()
		})
	})
}

// runSearch starts a nearby search for the current query, cancelling the one in flight.
func (f *Facade) runSearch() {
	s := &f.search
	f.stopDebounce()
	query := strings.TrimSpace(s.query)
	if query == "" {
		return
	}
	if s.cancel != nil {
		s.cancel()
		f.metrics.Search(metrics.ResultSuperseded)
	}
	s.seq++
	seq := s.seq
	center := f.searchCenter()
	radius := f.conf.SearchRadius
	ctx, cancel := context.WithTimeout(f.ctx, f.conf.NetworkTimeout)
	s.cancel = cancel

	f.log.Debug("searching nearby places", slog.String("query", query),
		slog.String("center", center.String()), slog.Float64("radius", radius))
	go func() {
		defer cancel()
		start := time.Now()
		results, err := f.provider.SearchNearby(ctx, query, center, radius)
		f.metrics.ObserveRequest("search", time.Since(start).Seconds())
		f.post(func() { f.onSearchResult(seq, query, results, err) })
	}()
}

// searchCenter is the current location or, without one, the center of the map.
func (f *Facade) searchCenter() geobus.Coordinate {
	if f.tracker.current != nil {
		return *f.tracker.current
	}
	return f.region().Center
}

func (f *Facade) onSearchResult(seq uint64, query string, results []SearchResult, err error) {
	s := &f.search
	if seq != s.seq {
		f.log.Debug("dropping superseded search results", slog.String("query", query))
		return
	}
	s.cancel = nil

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.failed = true
		f.metrics.Search(metrics.ResultFailure)
		f.report(&SearchError{Query: query, Cause: err})
		return
	}

	places := make([]Place, 0, min(len(results), f.conf.MaxResults))
	for _, result := range results {
		if len(places) == f.conf.MaxResults {
			break
		}
		if !result.Coordinate.Valid() {
			f.log.Warn("skipping search result with invalid coordinate", slog.String("name", result.Name),
				slog.String("coordinate", result.Coordinate.String()))
			continue
		}
		places = append(places, newPlace(result.Name, result.Address, result.Coordinate))
	}
	s.results = places
	s.failed = false
	f.metrics.Search(metrics.ResultSuccess)
	f.log.Debug("search finished", slog.String("query", query), slog.Int("results", len(places)))
}

func (f *Facade) selectPlace(id uuid.UUID) error {
	s := &f.search
	for _, place := range s.results {
		if place.ID() == id {
			s.selected = &place
			f.regionSrc = regionFromPlace
			return nil
		}
	}
	return ErrUnknownPlace
}

// clearSearch empties results and selection and cancels pending searches. The query is kept.
func (f *Facade) clearSearch() {
	f.cancelSearch()
	s := &f.search
	s.results = nil
	s.selected = nil
	s.failed = false
}

func (f *Facade) cancelSearch() {
	f.stopDebounce()
	s := &f.search
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.seq++
}

// stopDebounce stops a pending debounce timer. A timer that already fired is ignored through
// its outdated token.
func (f *Facade) stopDebounce() {
	s := &f.search
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	s.debounceSeq++
}
