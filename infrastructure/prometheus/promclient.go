package promclient

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var TrackedSymbolsGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "orderbook_sync_tracked_symbols",
		Help: "number of symbols with a live subscription",
	},
)

var AppliedUpdatesCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orderbook_sync_applied_updates_total",
		Help: "market updates applied to a symbol view",
	},
	[]string{"source", "resource"},
)

var DroppedUpdatesCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orderbook_sync_dropped_updates_total",
		Help: "market updates dropped before they were applied",
	},
	[]string{"reason"},
)

var FetchErrorsCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "orderbook_sync_fetch_errors_total",
		Help: "failed snapshot fetches and malformed payloads",
	},
	[]string{"source", "resource"},
)

var FetchDurationHistogram = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "orderbook_sync_fetch_duration_seconds",
		Help:    "rest snapshot fetch latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"resource"},
)

var ConnectivityGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "orderbook_sync_connected",
		Help: "1 when the last outcome of the transport was a success",
	},
	[]string{"source"},
)

var InconsistentTransitionsCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "orderbook_sync_inconsistent_transitions_total",
		Help: "server order updates rejected by the status lattice",
	},
)

var StreamReconnectsCounter = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "orderbook_sync_stream_reconnects_total",
		Help: "push connection (re)established",
	},
)

func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(TrackedSymbolsGauge)
	reg.MustRegister(AppliedUpdatesCounter)
	reg.MustRegister(DroppedUpdatesCounter)
	reg.MustRegister(FetchErrorsCounter)
	reg.MustRegister(FetchDurationHistogram)
	reg.MustRegister(ConnectivityGauge)
	reg.MustRegister(InconsistentTransitionsCounter)
	reg.MustRegister(StreamReconnectsCounter)
	reg.MustRegister(collectors.NewGoCollector())

	return reg
}

func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
