/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package metrics exposes prometheus instrumentation for the gateway. All
// methods are safe on a nil receiver so that instrumentation can be disabled
// by configuration without call-site guards.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the gateway's prometheus collectors
type Metrics struct {
	queriesReceived    *prometheus.CounterVec
	queriesFailed      *prometheus.CounterVec
	queryDuration      *prometheus.HistogramVec
	executionsReceived *prometheus.CounterVec
	executionsFailed   *prometheus.CounterVec
	executionDuration  *prometheus.HistogramVec
	retriesTotal       prometheus.Counter
	idempotencyHits    prometheus.Counter
}

// New registers the gateway collectors with the given registerer
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		queriesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "queries_received_total",
			Help:      "The number of channel queries received.",
		}, []string{"fn"}),
		queriesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "queries_failed_total",
			Help:      "The number of channel queries that failed.",
		}, []string{"fn", "fail"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "query_duration_seconds",
			Help:      "The time to complete a channel query.",
		}, []string{"fn"}),
		executionsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "executions_received_total",
			Help:      "The number of channel executions received.",
		}, []string{"fn"}),
		executionsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "executions_failed_total",
			Help:      "The number of channel executions that failed.",
		}, []string{"fn", "fail"}),
		executionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gateway",
			Name:      "execution_duration_seconds",
			Help:      "The time to complete a channel execution.",
		}, []string{"fn"}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "retries_total",
			Help:      "The number of retry attempts issued for transient errors.",
		}),
		idempotencyHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "idempotency_hits_total",
			Help:      "The number of invocations answered from an idempotency record.",
		}),
	}

	reg.MustRegister(
		m.queriesReceived, m.queriesFailed, m.queryDuration,
		m.executionsReceived, m.executionsFailed, m.executionDuration,
		m.retriesTotal, m.idempotencyHits,
	)

	return m
}

// RegisterPoolStats exposes pool occupancy gauges backed by the given
// snapshot functions
func (m *Metrics) RegisterPoolStats(reg prometheus.Registerer, open func() float64, inUse func() float64, waits func() float64) {
	if m == nil {
		return
	}
	reg.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "gateway",
			Name:      "pool_open_connections",
			Help:      "The number of established pooled connections.",
		}, open),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "gateway",
			Name:      "pool_in_use_connections",
			Help:      "The number of pooled connections currently leased.",
		}, inUse),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "gateway",
			Name:      "pool_acquire_waits_total",
			Help:      "The number of acquisitions that had to wait for a free connection.",
		}, waits),
	)
}

// ObserveQuery records the outcome of a READ invocation
func (m *Metrics) ObserveQuery(fn string, elapsed time.Duration, failKind string) {
	if m == nil {
		return
	}
	m.queriesReceived.WithLabelValues(fn).Inc()
	m.queryDuration.WithLabelValues(fn).Observe(elapsed.Seconds())
	if failKind != "" {
		m.queriesFailed.WithLabelValues(fn, failKind).Inc()
	}
}

// ObserveExecution records the outcome of a WRITE invocation
func (m *Metrics) ObserveExecution(fn string, elapsed time.Duration, failKind string) {
	if m == nil {
		return
	}
	m.executionsReceived.WithLabelValues(fn).Inc()
	m.executionDuration.WithLabelValues(fn).Observe(elapsed.Seconds())
	if failKind != "" {
		m.executionsFailed.WithLabelValues(fn, failKind).Inc()
	}
}

// IncRetry counts one retry attempt
func (m *Metrics) IncRetry() {
	if m == nil {
		return
	}
	m.retriesTotal.Inc()
}

// IncIdempotencyHit counts one invocation answered from a stored record
func (m *Metrics) IncIdempotencyHit() {
	if m == nil {
		return
	}
	m.idempotencyHits.Inc()
}
