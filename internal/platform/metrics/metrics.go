// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package metrics exposes Prometheus instrumentation for the API.

Collectors live on a private registry owned by [Metrics] so tests can build
independent instances without colliding on the global default registerer.
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bazaar"

// # Auth Events

// Event names recorded by [Metrics.AuthEvent].
const (
	EventRegister       = "register"
	EventLogin          = "login"
	EventOAuth          = "oauth"
	EventRefresh        = "refresh"
	EventLogout         = "logout"
	EventChangePassword = "change_password"
	EventVerifyEmail    = "verify_email"
	EventResend         = "resend_verification"
	EventForgotPassword = "forgot_password"
	EventResetPassword  = "reset_password"
)

// Metrics groups every collector the service reports.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	authEvents   *prometheus.CounterVec
	mailFailures prometheus.Counter
	purged       *prometheus.CounterVec
}

// New creates and registers all collectors, including Go runtime and process stats.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route pattern and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "events_total",
			Help:      "Authentication operations by event and outcome.",
		}, []string{"event", "outcome"}),
		mailFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mail",
			Name:      "failures_total",
			Help:      "Outbound mail deliveries that returned an error.",
		}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "janitor",
			Name:      "purged_rows_total",
			Help:      "Expired rows removed by the maintenance job.",
		}, []string{"table"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequests,
		m.httpDuration,
		m.authEvents,
		m.mailFailures,
		m.purged,
	)

	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// AuthEvent records the outcome of an auth operation. A nil error counts as success.
func (m *Metrics) AuthEvent(event string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.authEvents.WithLabelValues(event, outcome).Inc()
}

// MailFailed increments the mail failure counter.
func (m *Metrics) MailFailed() {
	if m == nil {
		return
	}
	m.mailFailures.Inc()
}

// Purged adds n removed rows for table.
func (m *Metrics) Purged(table string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.purged.WithLabelValues(table).Add(float64(n))
}
