// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package geobus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wneessen/mapstate/internal/logger"
)

// Orchestrator runs a set of providers and publishes their results through a GeoBus.
type Orchestrator struct {
	Bus       *GeoBus
	Providers []Provider
	// OnError is called with failed lookups if set.
	OnError func(source string, err error)
}

// Track runs all providers for key until ctx is cancelled. It blocks until every provider
// goroutine has returned.
func (o *Orchestrator) Track(ctx context.Context, key string) {
	var wg sync.WaitGroup
	for _, p := range o.Providers {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			o.trackProvider(ctx, p, key)
		}(p)
	}
	<-ctx.Done()
	wg.Wait()
}

// trackProvider consumes the stream of a single provider. Whenever the stream ends or cannot be
// opened, the lookup is retried with exponential backoff.
func (o *Orchestrator) trackProvider(ctx context.Context, p Provider, key string) {
	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		lookupChan, err := o.safeLookup(ctx, p, key)
		if err != nil {
			o.Bus.logger.Warn("fix source failed", slog.String("source", p.Name()), logger.Err(err))
			if o.OnError != nil {
				o.OnError(p.Name(), err)
			}
		}
		if lookupChan != nil {
			o.drain(ctx, lookupChan, &backoff)
		}

		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff)
	}
}

// drain publishes results from ch until it is closed or ctx is done. Every received result resets
// the backoff.
func (o *Orchestrator) drain(ctx context.Context, ch <-chan Result, backoff *time.Duration) {
	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-ch:
			if !ok {
				return
			}
			o.Bus.Publish(r)
			*backoff = initialBackoff
		}
	}
}

// safeLookup invokes LookupStream and converts a panicking provider into an error.
func (o *Orchestrator) safeLookup(ctx context.Context, provider Provider, key string) (ch <-chan Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			ch, err = nil, fmt.Errorf("provider %s panicked: %v", provider.Name(), r)
		}
	}()
	return provider.LookupStream(ctx, key), nil
}
