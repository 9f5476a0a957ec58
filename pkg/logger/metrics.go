package logger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var logQueueFallbacks = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "mywebserver",
		Subsystem: "log",
		Name:      "sync_fallbacks_total",
		Help:      "Records written synchronously because the async queue was full",
	},
)
