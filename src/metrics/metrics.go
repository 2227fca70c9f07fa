package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// -----------------------------------------------------------------------------
// Prometheus instrumentation for the relay data path. Counters are registered
// once at package load and shared by the transports, publishers and the
// health monitor; the REST server exposes them on /metrics.
// -----------------------------------------------------------------------------

var (
	// MessagesRelayed counts parsed rows handed to the publisher,
	// by source and data type.
	MessagesRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedrelay",
		Name:      "messages_relayed_total",
		Help:      "Parsed market data messages handed to the publisher.",
	}, []string{"source", "data_type"})

	// ParseErrors counts rows the feed adapter rejected.
	ParseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedrelay",
		Name:      "parse_errors_total",
		Help:      "Raw rows that failed to parse.",
	}, []string{"source"})

	// PublishErrors counts messages dropped on the broker side.
	PublishErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedrelay",
		Name:      "publish_errors_total",
		Help:      "Messages dropped due to publisher failures.",
	}, []string{"publisher"})

	// Reconnects counts transport reconnection attempts.
	Reconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "feedrelay",
		Name:      "transport_reconnects_total",
		Help:      "Transport reconnection attempts.",
	}, []string{"source"})

	// FeedConnected reflects the admin port STATS status:
	// 1 when the feed service reports Connected, else 0.
	FeedConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "feedrelay",
		Name:      "feed_connected",
		Help:      "Whether the feed service reports an upstream connection.",
	})

	// StatsRows counts S,STATS heartbeats seen on the admin port.
	StatsRows = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "feedrelay",
		Name:      "admin_stats_rows_total",
		Help:      "STATS heartbeat rows received on the admin port.",
	})
)
