// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wneessen/mapstate/internal/logger"
)

type signalSource interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type stdLibSignalSource struct{}

func (stdLibSignalSource) Notify(c chan<- os.Signal, sig ...os.Signal) {
	signal.Notify(c, sig...)
}

func (stdLibSignalSource) Stop(c chan<- os.Signal) {
	signal.Stop(c)
}

// HandleSignals refreshes the address on SIGUSR1 and logs the current location on SIGUSR2.
func (s *Service) HandleSignals(ctx context.Context, sigChan chan os.Signal) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigChan:
			switch sig {
			case syscall.SIGUSR1:
				if err := s.facade.RefreshAddress(); err != nil {
					s.logger.Error("failed to refresh address", logger.Err(err))
				}
			case syscall.SIGUSR2:
				state := s.facade.State()
				var lat, lon float64
				if loc := state.Location.CurrentLocation; loc != nil {
					lat, lon = loc.Lat, loc.Lon
				}
				s.logger.Info("currently resolved address", slog.String("address", state.Address.Address),
					slog.Float64("latitude", lat), slog.Float64("longitude", lon))
			}
		}
	}
}
