package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AlertsTotal    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "bike_help", Name: "alerts_total", Help: "Total nearby-point alerts emitted"})
	FixesTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "bike_help", Name: "location_fixes_total", Help: "Total location fixes accepted"})
	FixesDropped   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "bike_help", Name: "location_fixes_dropped_total", Help: "Fixes dropped because no session or a full queue"})
	SnapshotMisses = promauto.NewCounter(prometheus.CounterOpts{Namespace: "bike_help", Name: "snapshot_misses_total", Help: "Monitor ticks that ran with zero candidates because the point set was unavailable"})
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "bike_help", Name: "monitor_sessions_active", Help: "Number of running proximity sessions"})
	PointsTracked  = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "bike_help", Name: "points_tracked", Help: "Number of map points in the live snapshot"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bike_help", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "bike_help",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
