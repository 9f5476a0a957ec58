package sqlpool

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sqlPoolSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mywebserver",
			Subsystem: "sql_pool",
			Name:      "size",
			Help:      "Handles the pool established at startup",
		},
	)

	sqlPoolInUse = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mywebserver",
			Subsystem: "sql_pool",
			Name:      "in_use",
			Help:      "Handles currently checked out",
		},
	)
)
