package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the add-on ingestion pipeline.
var (
	IngestionRequestsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "addon_ingestion_requests_total",
			Help: "Total number of add-on ingestion requests received",
		},
	)

	IngestionRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "addon_ingestion_rejected_total",
			Help: "Total number of rejected ingestion requests by reason",
		},
		[]string{"reason"},
	)

	IngestionAcceptedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "addon_ingestion_accepted_total",
			Help: "Total number of ingestion requests that produced a deal",
		},
	)

	ExtractionFallbackTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extraction_fallback_total",
			Help: "Total number of extractions that degraded to the placeholder record",
		},
	)

	ExtractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "extraction_duration_seconds",
			Help:    "Duration of extraction model calls",
			Buckets: prometheus.DefBuckets,
		},
	)
)

// Register registers all Prometheus metrics.
// Call once from main; a second call panics.
func Register() {
	prometheus.MustRegister(IngestionRequestsTotal)
	prometheus.MustRegister(IngestionRejectedTotal)
	prometheus.MustRegister(IngestionAcceptedTotal)
	prometheus.MustRegister(ExtractionFallbackTotal)
	prometheus.MustRegister(ExtractionDuration)
}
