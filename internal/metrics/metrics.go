// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

// Package metrics holds the Prometheus collectors of the location state manager. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels.
const (
	ResultAccepted   = "accepted"
	ResultInvalid    = "invalid"
	ResultInterval   = "interval"
	ResultDistance   = "distance"
	ResultSuccess    = "success"
	ResultFailure    = "failure"
	ResultSuperseded = "superseded"
)

type Metrics struct {
	Fixes          *prometheus.CounterVec
	Geocodes       *prometheus.CounterVec
	Searches       *prometheus.CounterVec
	Errors         *prometheus.CounterVec
	RequestSeconds *prometheus.HistogramVec
	Observers      prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Fixes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mapstate_location_fixes_total",
			Help: "Total number of location fixes by filter result.",
		}, []string{"result"}),
		Geocodes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mapstate_geocode_requests_total",
			Help: "Total number of reverse geocoding requests by result.",
		}, []string{"result"}),
		Searches: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mapstate_search_requests_total",
			Help: "Total number of nearby searches by result.",
		}, []string{"result"}),
		Errors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mapstate_reported_errors_total",
			Help: "Total number of errors reported to error observers.",
		}, []string{"kind"}),
		RequestSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mapstate_provider_request_duration_seconds",
			Help:    "Duration of geocoding and search requests to the location provider.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		Observers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mapstate_state_observers",
			Help: "Current number of state observers.",
		}),
	}
}

func (m *Metrics) Fix(result string) {
	if m == nil {
		return
	}
	m.Fixes.WithLabelValues(result).Inc()
}

func (m *Metrics) Geocode(result string) {
	if m == nil {
		return
	}
	m.Geocodes.WithLabelValues(result).Inc()
}

func (m *Metrics) Search(result string) {
	if m == nil {
		return
	}
	m.Searches.WithLabelValues(result).Inc()
}

func (m *Metrics) Error(kind string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(kind).Inc()
}

// ObserveRequest records the duration of a provider round trip in seconds.
func (m *Metrics) ObserveRequest(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.RequestSeconds.WithLabelValues(operation).Observe(seconds)
}

func (m *Metrics) ObserverAdded() {
	if m == nil {
		return
	}
	m.Observers.Inc()
}

func (m *Metrics) ObserverRemoved() {
	if m == nil {
		return
	}
	m.Observers.Dec()
}
