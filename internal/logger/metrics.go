package logger

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// StoreOperationsTotal counts record store operations
	StoreOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldops_store_operations_total",
			Help: "Total number of record store operations",
		},
		[]string{"collection", "operation", "backend", "result"},
	)

	// StoreOperationDuration measures record store latency
	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldops_store_operation_duration_seconds",
			Help:    "Record store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "backend"},
	)

	// BackendFallbackTotal counts calls routed to the document backend
	BackendFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldops_backend_fallback_total",
			Help: "Total number of calls served by the document backend instead of the structured backend",
		},
		[]string{"reason"}, // "forced", "offline", "unavailable", "not_configured"
	)

	// PowerConsumedTotal accumulates simulated power units per operation kind
	PowerConsumedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldops_power_consumed_units_total",
			Help: "Simulated power consumed by operation kind",
		},
		[]string{"operation"},
	)

	// ConnectivityMode reports the active connectivity mode (1 for the active one)
	ConnectivityMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldops_connectivity_mode",
			Help: "Active connectivity mode",
		},
		[]string{"mode"},
	)

	// PowerMode reports the active power mode (1 for the active one)
	PowerMode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fieldops_power_mode",
			Help: "Active power mode",
		},
		[]string{"mode"},
	)

	// HarnessCheckTotal counts fallback harness check outcomes
	HarnessCheckTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldops_harness_check_total",
			Help: "Total number of fallback harness checks by outcome",
		},
		[]string{"check", "result"},
	)

	// CatalogQueryTotal counts location catalog queries
	CatalogQueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldops_catalog_query_total",
			Help: "Total number of location catalog queries",
		},
		[]string{"query"},
	)

	// CacheHitTotal counts nearest-facility cache hits and misses
	CacheHitTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldops_cache_hit_total",
			Help: "Total number of nearest-facility cache hits and misses",
		},
		[]string{"result"}, // "hit" or "miss"
	)
)

var registerOnce sync.Once

// InitMetrics registers Prometheus metrics; repeated calls are no-ops
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(StoreOperationsTotal)
		prometheus.MustRegister(StoreOperationDuration)
		prometheus.MustRegister(BackendFallbackTotal)
		prometheus.MustRegister(PowerConsumedTotal)
		prometheus.MustRegister(ConnectivityMode)
		prometheus.MustRegister(PowerMode)
		prometheus.MustRegister(HarnessCheckTotal)
		prometheus.MustRegister(CatalogQueryTotal)
		prometheus.MustRegister(CacheHitTotal)
	})
}

// SetActiveMode sets the gauge for active to 1 and every other listed mode to 0
func SetActiveMode(gauge *prometheus.GaugeVec, active string, all []string) {
	for _, m := range all {
		v := 0.0
		if m == active {
			v = 1
		}
		gauge.WithLabelValues(m).Set(v)
	}
}

// MetricsHandler returns HTTP handler for Prometheus metrics
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
