// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	connectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "coset",
			Name:      "connections_active",
			Help:      "Connections not yet closed.",
		},
	)
	connectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coset",
			Name:      "connections_total",
			Help:      "Closed connections by outcome.",
		},
		[]string{"outcome"},
	)
	handshakeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "coset",
			Name:      "handshake_duration_seconds",
			Help:      "Time from connection start to an open data channel.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		},
	)
	messagesReceived = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coset",
			Subsystem: "data",
			Name:      "messages_received_total",
			Help:      "Data-channel messages dispatched to handlers.",
		},
	)
	messagesSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coset",
			Subsystem: "data",
			Name:      "messages_sent_total",
			Help:      "Data-channel messages handed to the channel.",
		},
	)
	messagesQueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "coset",
			Subsystem: "data",
			Name:      "messages_queued_total",
			Help:      "Sends deferred by backpressure or a closed channel.",
		},
	)
	errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "coset",
			Name:      "errors_total",
			Help:      "Errors reported by connections, by kind.",
		},
		[]string{"kind"},
	)
)

// RegisterMetrics registers the transport collectors with the default
// Prometheus registry. Safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connectionsActive,
			connectionsTotal,
			handshakeDuration,
			messagesReceived,
			messagesSent,
			messagesQueued,
			errorsTotal,
		)
	})
}

func recordConnectionOpened() {
	connectionsActive.Inc()
}

func recordConnectionClosed(outcome string) {
	connectionsActive.Dec()
	connectionsTotal.WithLabelValues(outcome).Inc()
}

func recordEstablished(elapsed time.Duration) {
	handshakeDuration.Observe(elapsed.Seconds())
}

func recordError(err error) {
	errorsTotal.WithLabelValues(errorKind(err)).Inc()
}
