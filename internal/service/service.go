// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/vorlif/spreak"

	"github.com/wneessen/mapstate/internal/config"
	"github.com/wneessen/mapstate/internal/i18n"
	"github.com/wneessen/mapstate/internal/logger"
	"github.com/wneessen/mapstate/internal/mapstate"
	"github.com/wneessen/mapstate/internal/metrics"
	"github.com/wneessen/mapstate/internal/presenter"
)

const stateBufferSize = 8

var ErrLoggerRequired = errors.New("logger is required")

type Service struct {
	config    *config.Config
	logger    *logger.Logger
	provider  mapstate.LocationProvider
	presenter *presenter.Presenter
	scheduler gocron.Scheduler
	registry  *prometheus.Registry
	metrics   *metrics.Metrics
	facade    *mapstate.Facade
	SignalSrc signalSource

	input       io.Reader
	output      io.Writer
	outputLock  sync.Mutex
	wantUpdates atomic.Bool
}

// New returns a Service that uses the fix sources and the geocoder of conf.
func New(conf *config.Config, log *logger.Logger, loc *spreak.Localizer) (*Service, error) {
	if log == nil {
		return nil, ErrLoggerRequired
	}
	service, err := newService(conf, log, loc)
	if err != nil {
		return nil, err
	}
	if service.provider, err = service.newDeviceProvider(); err != nil {
		return nil, fmt.Errorf("failed to create location provider: %w", err)
	}
	return service, nil
}

func newService(conf *config.Config, log *logger.Logger, loc *spreak.Localizer) (*Service, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	pres, err := presenter.New(conf.Templates.Text, conf.Templates.Tooltip, loc, i18n.Tag(conf.Locale))
	if err != nil {
		return nil, fmt.Errorf("failed to create presenter: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Service{
		config:    conf,
		logger:    log,
		presenter: pres,
		scheduler: scheduler,
		registry:  registry,
		metrics:   metrics.New(registry),
		SignalSrc: stdLibSignalSource{},
		input:     os.Stdin,
		output:    os.Stdout,
	}, nil
}

// Run starts location updates and prints the map state until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	facade, err := mapstate.New(s.provider, s.logger.Component("mapstate"), s.stateConfig(), mapstate.WithMetrics(s.metrics))
	if err != nil {
		return fmt.Errorf("failed to create map state: %w", err)
	}
	s.facade = facade

	if err = s.createScheduledJob(ctx, s.config.Intervals.Output, s.printState, "mapstate_output_job"); err != nil {
		_ = facade.Close()
		return err
	}
	s.scheduler.Start()

	states, unsub := facade.Subscribe(stateBufferSize)
	go s.processStates(ctx, states)
	go s.readCommands(ctx, s.input)
	go s.startLocation(ctx)

	sigChan := make(chan os.Signal, 1)
	s.SignalSrc.Notify(sigChan, syscall.SIGUSR1, syscall.SIGUSR2)
	go s.HandleSignals(ctx, sigChan)

	if !s.config.SleepMonitor.Disable {
		go s.monitorSleepResume(ctx)
	}
	if s.config.Metrics.Listen != "" {
		go s.serveMetrics(ctx)
	}

	// Wait for the context to cancel
	<-ctx.Done()
	s.SignalSrc.Stop(sigChan)
	unsub()
	if err = facade.Close(); err != nil {
		s.logger.Error("failed to close map state", logger.Err(err))
	}
	return s.scheduler.Shutdown()
}

func (s *Service) stateConfig() mapstate.Config {
	conf := mapstate.Config{
		MinInterval:     s.config.Location.MinInterval,
		MinDistance:     s.config.Location.MinDistance,
		NoMinInterval:   s.config.Location.DisableMinInterval,
		NoMinDistance:   s.config.Location.DisableMinDistance,
		RefreshInterval: s.config.Address.RefreshInterval,
		SearchRadius:    s.config.Search.Radius,
		SearchDebounce:  s.config.Search.Debounce,
		MaxResults:      s.config.Search.MaxResults,
		NetworkTimeout:  s.config.Intervals.NetworkTimeout,
	}
	if s.config.Search.SubmitOnly {
		conf.SearchDebounce = 0
	}
	return conf
}

func (s *Service) createScheduledJob(ctx context.Context, interval time.Duration, task func(context.Context),
	jobName string,
) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(jobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", jobName, err)
	}
	return nil
}

// startLocation starts the location updates and waits for the first fix.
func (s *Service) startLocation(ctx context.Context) {
	s.wantUpdates.Store(true)
	if err := s.facade.StartUpdates(); err != nil {
		s.logger.Warn("failed to start location updates", logger.Err(err))
		return
	}

	coord, err := s.facade.WaitForFirstFix(ctx, s.config.Location.FirstFixTimeout)
	switch {
	case errors.Is(err, mapstate.ErrClosed), errors.Is(err, context.Canceled):
		return
	case err != nil:
		s.logger.Warn("no location fix received", slog.Duration("timeout", s.config.Location.FirstFixTimeout),
			logger.Err(err))
	default:
		s.logger.Info("first location fix received", slog.Float64("lat", coord.Lat), slog.Float64("lon", coord.Lon))
	}
}

// processStates prints every state change. Location updates are started again once access was
// granted, as long as they were requested.
func (s *Service) processStates(ctx context.Context, states <-chan mapstate.MapViewState) {
	var prev mapstate.AuthorizationStatus
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			status := state.Location.AuthorizationStatus
			if status.Authorized() && !prev.Authorized() && !state.Location.UpdatesActive && s.wantUpdates.Load() {
				s.logger.Debug("location access granted, starting updates")
				if err := s.facade.StartUpdates(); err != nil {
					s.logger.Warn("failed to start location updates", logger.Err(err))
				}
			}
			prev = status
			s.print(state)
		}
	}
}

// printState outputs the current map state.
func (s *Service) printState(context.Context) {
	s.print(s.facade.State())
}

func (s *Service) print(state mapstate.MapViewState) {
	output, err := s.presenter.Render(state)
	if err != nil {
		s.logger.Error("failed to render map state", logger.Err(err))
		return
	}

	s.outputLock.Lock()
	defer s.outputLock.Unlock()
	if err = json.NewEncoder(s.output).Encode(output); err != nil {
		s.logger.Error("failed to encode map state", logger.Err(err))
	}
}
