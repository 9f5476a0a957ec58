//go:build linux

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MgJun-ux/MyWebServer/pkg/http11"
)

var (
	connectionsActive = promauto.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "mywebserver",
			Subsystem: "server",
			Name:      "connections_active",
			Help:      "Connections currently open",
		},
		func() float64 { return float64(http11.UserCount.Load()) },
	)

	acceptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mywebserver",
			Subsystem: "server",
			Name:      "accepted_total",
			Help:      "Connections accepted",
		},
	)

	busyRejectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mywebserver",
			Subsystem: "server",
			Name:      "busy_rejects_total",
			Help:      "Accepts rejected because the connection cap was reached",
		},
	)

	timerExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mywebserver",
			Subsystem: "server",
			Name:      "timer_expired_total",
			Help:      "Connections closed by the idle deadline",
		},
	)

	responsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mywebserver",
			Subsystem: "server",
			Name:      "responses_total",
			Help:      "Responses produced, by status code",
		},
		[]string{"code"},
	)
)
