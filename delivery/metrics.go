/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package delivery

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics tracks delivery outcomes. A nil *metrics is valid and records
// nothing, so the manager degrades gracefully when no registerer is
// configured.
type metrics struct {
	submitted  *prometheus.CounterVec
	delivered  *prometheus.CounterVec
	failed     *prometheus.CounterVec
	dropped    prometheus.Counter
	queueDepth prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracelog_delivery_submitted_total",
			Help: "Number of log events submitted for delivery.",
		}, []string{"kind"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracelog_delivery_delivered_total",
			Help: "Number of log events delivered to the remote store.",
		}, []string{"kind"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tracelog_delivery_failed_total",
			Help: "Number of log events that failed delivery.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracelog_delivery_dropped_total",
			Help: "Number of queued events discarded by immediate shutdown.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracelog_delivery_queue_depth",
			Help: "Number of events waiting in the delivery queue.",
		}),
	}
	reg.MustRegister(m.submitted, m.delivered, m.failed, m.dropped, m.queueDepth)
	return m
}

func (m *metrics) recordSubmitted(kind eventKind) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(string(kind)).Inc()
	m.queueDepth.Inc()
}

func (m *metrics) recordDelivered(kind eventKind) {
	if m == nil {
		return
	}
	m.delivered.WithLabelValues(string(kind)).Inc()
	m.queueDepth.Dec()
}

func (m *metrics) recordFailed(kind eventKind) {
	if m == nil {
		return
	}
	m.failed.WithLabelValues(string(kind)).Inc()
	m.queueDepth.Dec()
}

func (m *metrics) recordDropped(n int) {
	if m == nil {
		return
	}
	m.dropped.Add(float64(n))
	m.queueDepth.Sub(float64(n))
}
