// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"log/slog"
	stdhttp "net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wneessen/mapstate/internal/logger"
)

const (
	metricsPath            = "/metrics"
	metricsHeaderTimeout   = 5 * time.Second
	metricsShutdownTimeout = 5 * time.Second
)

func (s *Service) metricsHandler() stdhttp.Handler {
	mux := stdhttp.NewServeMux()
	mux.Handle(metricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// serveMetrics exposes the metrics registry until ctx is done.
func (s *Service) serveMetrics(ctx context.Context) {
	server := &stdhttp.Server{
		Addr:              s.config.Metrics.Listen,
		Handler:           s.metricsHandler(),
		ReadHeaderTimeout: metricsHeaderTimeout,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("failed to shut down metrics server", logger.Err(err))
		}
	}()

	s.logger.Info("serving metrics", slog.String("listen", server.Addr), slog.String("path", metricsPath))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
		s.logger.Error("metrics server failed", logger.Err(err))
	}
}
