// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package metrics exposes Prometheus counters and histograms for
// connection lifecycle, frame decoding, and error taxonomy.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	connectionsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpframe",
			Subsystem: "connections",
			Name:      "opened_total",
			Help:      "Connections accepted, labelled by the configured framing mode.",
		},
		[]string{"framing"},
	)
	connectionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpframe",
			Subsystem: "connections",
			Name:      "closed_total",
			Help:      "Connections closed, labelled by framing mode and close reason.",
		},
		[]string{"framing", "reason"},
	)
	idleTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tcpframe",
			Subsystem: "connections",
			Name:      "idle_timeouts_total",
			Help:      "Connections closed due to reader idle timeout.",
		},
	)
	framesDecoded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpframe",
			Subsystem: "frames",
			Name:      "decoded_total",
			Help:      "Frames successfully decoded, labelled by framer.",
		},
		[]string{"framer"},
	)
	decodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tcpframe",
			Subsystem: "errors",
			Name:      "decode_total",
			Help:      "Decode failures, labelled by error taxonomy class.",
		},
		[]string{"class"},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tcpframe",
			Subsystem: "requests",
			Name:      "duration_seconds",
			Help:      "Time spent in the request router per request, labelled by action.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"action"},
	)
)

// Register registers every collector with the default registry exactly
// once, regardless of how many times it is called.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			connectionsOpened,
			connectionsClosed,
			idleTimeouts,
			framesDecoded,
			decodeErrors,
			requestDuration,
		)
	})
}

// RecordConnectionOpened increments the opened counter for framing.
func RecordConnectionOpened(framing string) {
	Register()
	connectionsOpened.WithLabelValues(framing).Inc()
}

// RecordConnectionClosed increments the closed counter for framing/reason.
func RecordConnectionClosed(framing, reason string) {
	Register()
	connectionsClosed.WithLabelValues(framing, reason).Inc()
}

// RecordIdleTimeout increments the idle-timeout counter.
func RecordIdleTimeout() {
	Register()
	idleTimeouts.Inc()
}

// RecordFrameDecoded increments the decoded-frame counter for framer.
func RecordFrameDecoded(framer string) {
	Register()
	framesDecoded.WithLabelValues(framer).Inc()
}

// RecordDecodeError increments the decode-error counter for class.
func RecordDecodeError(class string) {
	Register()
	decodeErrors.WithLabelValues(class).Inc()
}

// ObserveRequestDuration records the time a request took to handle.
func ObserveRequestDuration(action string, seconds float64) {
	Register()
	requestDuration.WithLabelValues(action).Observe(seconds)
}

// Handler returns the Prometheus exposition HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
