// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Passgate Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the application collectors. It satisfies auth.Recorder and
// the HTTP layer's request recorder.
type Metrics struct {
	AuthEventsTotal   *prometheus.CounterVec
	HashDuration      *prometheus.HistogramVec
	HTTPRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates the application metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passgate_auth_events_total",
				Help: "Register and login outcomes by event and reason",
			},
			[]string{"event", "reason"},
		),
		HashDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "passgate_password_hash_seconds",
				Help:    "Time spent hashing and verifying passwords",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
			[]string{"operation"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "passgate_http_requests_total",
				Help: "HTTP API requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
	}

	reg.MustRegister(m.AuthEventsTotal, m.HashDuration, m.HTTPRequestsTotal)
	return m
}

// RecordAuthEvent counts a register or login outcome.
func (m *Metrics) RecordAuthEvent(kind, reason string) {
	m.AuthEventsTotal.WithLabelValues(kind, reason).Inc()
}

// ObserveHashDuration records one hash or verify computation.
func (m *Metrics) ObserveHashDuration(operation string, d time.Duration) {
	m.HashDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// RecordHTTPRequest counts a completed API request.
func (m *Metrics) RecordHTTPRequest(method, route string, status int) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
