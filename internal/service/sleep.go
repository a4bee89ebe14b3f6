// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/wneessen/mapstate/internal/logger"
)

const (
	login1Interface = "org.freedesktop.login1.Manager"
	login1Member    = "PrepareForSleep"

	resumeDebounce   = 2 * time.Second
	signalBufferSize = 8

	busRetryDelay      = 5 * time.Second
	networkWakeupDelay = 10 * time.Second
)

// resumeGate drops resume events that follow the previous one within resumeDebounce.
type resumeGate struct {
	mu   sync.Mutex
	last time.Time
}

func (g *resumeGate) admit(now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.last.IsZero() && now.Sub(g.last) < resumeDebounce {
		return false
	}
	g.last = now
	return true
}

// isResumeSignal reports whether sig is a PrepareForSleep(false) signal, which logind sends
// once the system woke up.
func isResumeSignal(sig *dbus.Signal) bool {
	if sig == nil || len(sig.Body) != 1 {
		return false
	}
	sleeping, ok := sig.Body[0].(bool)
	return ok && !sleeping
}

// monitorSleepResume refreshes the address whenever the system resumes from sleep. Lost bus
// connections are re-established until ctx is done.
func (s *Service) monitorSleepResume(ctx context.Context) {
	gate := &resumeGate{}
	for {
		conn, signals, ok := s.watchSleepSignals(ctx)
		if !ok {
			return
		}
		s.logger.Debug("watching for resume events", slog.String("interface", login1Interface),
			slog.String("member", login1Member))

		s.dispatchSleepSignals(ctx, signals, gate)
		conn.RemoveSignal(signals)
		if err := conn.Close(); err != nil {
			s.logger.Debug("failed to close system bus connection", logger.Err(err))
		}
		if !sleepCtx(ctx, busRetryDelay) {
			return
		}
	}
}

// watchSleepSignals connects to the system bus and subscribes to the logind sleep signal. It
// retries until it succeeds or ctx is done.
func (s *Service) watchSleepSignals(ctx context.Context) (*dbus.Conn, chan *dbus.Signal, bool) {
	for {
		conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
		if err == nil {
			err = conn.AddMatchSignal(dbus.WithMatchInterface(login1Interface),
				dbus.WithMatchMember(login1Member))
			if err == nil {
				signals := make(chan *dbus.Signal, signalBufferSize)
				conn.Signal(signals)
				return conn, signals, true
			}
			_ = conn.Close()
		}
		s.logger.Warn("failed to watch for sleep signals", logger.Err(err))
		if !sleepCtx(ctx, busRetryDelay) {
			return nil, nil, false
		}
	}
}

// dispatchSleepSignals handles signals until the channel is closed or ctx is done.
func (s *Service) dispatchSleepSignals(ctx context.Context, signals <-chan *dbus.Signal, gate *resumeGate) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-signals:
			if !ok {
				return
			}
			if isResumeSignal(sig) {
				s.handleResumeEvent(ctx, gate)
			}
		}
	}
}

// handleResumeEvent waits for the network to come back and re-resolves the address of the
// current location.
func (s *Service) handleResumeEvent(ctx context.Context, gate *resumeGate) {
	if !gate.admit(time.Now()) {
		return
	}
	if !sleepCtx(ctx, networkWakeupDelay) {
		return
	}

	s.logger.Debug("resumed from sleep, refreshing address")
	if err := s.facade.RefreshAddress(); err != nil {
		s.logger.Error("failed to refresh address after resume", logger.Err(err))
	}
}

// sleepCtx waits for d and returns false if ctx is done first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
