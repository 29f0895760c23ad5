// Package metrics declares the process-wide Prometheus collectors.
//
// Naming follows namespace_subsystem_name with namespace "goban". Collectors
// are package-level promauto vars so call sites stay one-liners and the
// /metrics endpoint only needs promhttp.Handler().
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WSConnectionsActive tracks currently open gateway sockets.
	WSConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "goban",
		Subsystem: "ws",
		Name:      "connections_active",
		Help:      "Current number of open WebSocket connections",
	})

	// WSConnectionsAccepted counts sockets that passed auth and upgrade.
	WSConnectionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goban",
		Subsystem: "ws",
		Name:      "connections_accepted_total",
		Help:      "Total accepted WebSocket connections",
	})

	// WSFramesRead counts inbound text frames, including raw pings.
	WSFramesRead = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goban",
		Subsystem: "ws",
		Name:      "frames_read_total",
		Help:      "Total WebSocket frames read",
	})

	// WSFramesWritten counts outbound frames actually written to sockets.
	WSFramesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goban",
		Subsystem: "ws",
		Name:      "frames_written_total",
		Help:      "Total WebSocket frames written",
	})

	// AuthRequests counts auth endpoint hits by operation and outcome code.
	AuthRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "goban",
		Subsystem: "auth",
		Name:      "requests_total",
		Help:      "Auth HTTP requests by operation and outcome",
	}, []string{"op", "outcome"})

	// RoomsActive tracks rooms currently held in memory.
	RoomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "goban",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of rooms",
	})

	// MatchesStarted counts matches that reached the playing state.
	MatchesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goban",
		Subsystem: "room",
		Name:      "matches_started_total",
		Help:      "Total matches started",
	})

	// MatchesFinished counts matches that ended by win, draw or disconnect.
	MatchesFinished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "goban",
		Subsystem: "room",
		Name:      "matches_finished_total",
		Help:      "Total matches finished",
	})

	// HTTPRequestDuration observes wall time per route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "goban",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration by route",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	}, []string{"route"})
)
