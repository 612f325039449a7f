package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the Prometheus collectors of one server instance. Each
// Registry owns its own prometheus.Registry so several servers can coexist
// in one process (tests).
type Registry struct {
	reg *prometheus.Registry

	// HTTP
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Map service
	DirectionsRequestsTotal *prometheus.CounterVec
	StaleRoutesDiscarded    prometheus.Counter
	SearchRequestsTotal     *prometheus.CounterVec
	SearchCacheHits         prometheus.Counter
	SearchCacheMisses       prometheus.Counter

	// Tracker
	TrackerSessionsActive prometheus.Gauge
	TrackerSessionsReaped prometheus.Counter
	ActivitiesSavedTotal  *prometheus.CounterVec
}

func New() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Registry{
		reg: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bikevillage_http_requests_total",
				Help: "Total HTTP requests processed by endpoint, method, and status code",
			},
			[]string{"endpoint", "method", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bikevillage_http_request_duration_seconds",
				Help:    "HTTP request latency distribution in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"endpoint", "method"},
		),

		DirectionsRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bikevillage_directions_requests_total",
				Help: "Directions requests by profile and outcome",
			},
			[]string{"profile", "outcome"},
		),
		StaleRoutesDiscarded: f.NewCounter(
			prometheus.CounterOpts{
				Name: "bikevillage_stale_routes_discarded_total",
				Help: "Directions responses dropped because a newer request was issued",
			},
		),
		SearchRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bikevillage_search_requests_total",
				Help: "Place search requests sent upstream by outcome",
			},
			[]string{"outcome"},
		),
		SearchCacheHits: f.NewCounter(
			prometheus.CounterOpts{
				Name: "bikevillage_search_cache_hits_total",
				Help: "Place searches answered from cache",
			},
		),
		SearchCacheMisses: f.NewCounter(
			prometheus.CounterOpts{
				Name: "bikevillage_search_cache_misses_total",
				Help: "Place searches that missed the cache",
			},
		),

		TrackerSessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "bikevillage_tracker_sessions_active",
				Help: "Tracker sessions currently running",
			},
		),
		TrackerSessionsReaped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "bikevillage_tracker_sessions_reaped_total",
				Help: "Tracker sessions stopped after sitting idle",
			},
		),
		ActivitiesSavedTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bikevillage_activities_saved_total",
				Help: "Recorded activities persisted on stop, by outcome",
			},
			[]string{"outcome"},
		),
	}
}

// Handler exposes the registry in the Prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// Gatherer is used by tests to inspect collected values.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}
