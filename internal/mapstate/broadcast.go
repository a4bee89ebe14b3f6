// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package mapstate

import "sync"

// broadcaster fans values out to buffered subscriber channels. A subscriber that does not keep
// up loses its oldest buffered values, it always receives the newest one.
type broadcaster[T any] struct {
	mu     sync.Mutex
	subs   map[chan T]struct{}
	closed bool
}

func newBroadcaster[T any]() *broadcaster[T] {
	return &broadcaster[T]{subs: make(map[chan T]struct{})}
}

// subscribe registers a channel with room for size values. If initial is not nil, its value is
// delivered first. The returned function unsubscribes and closes the channel. After close the
// channel is returned closed and ok is false.
func (b *broadcaster[T]) subscribe(size int, initial func() T) (_ <-chan T, unsub func(), ok bool) {
	if size < 1 {
		size = 1
	}
	ch := make(chan T, size)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}, false
	}
	b.subs[ch] = struct{}{}
	if initial != nil {
		ch <- initial()
	}

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
	}, true
}

func (b *broadcaster[T]) send(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs {
		select {
		case ch <- v:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- v:
		default:
		}
	}
}

func (b *broadcaster[T]) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *broadcaster[T]) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}
