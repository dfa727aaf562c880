package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the chatbot API.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SearchesTotal  *prometheus.CounterVec
	SearchDuration *prometheus.HistogramVec
	SearchResults  prometheus.Histogram

	CategoryFallbacksTotal prometheus.Counter

	StreamsActive prometheus.Gauge

	DocumentsIngestedTotal *prometheus.CounterVec
}

// NewMetrics registers all instruments on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatbot_http_requests_total",
			Help: "HTTP requests by method, path and status code",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatbot_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		SearchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatbot_searches_total",
			Help: "Search operations by type and outcome",
		}, []string{"search_type", "outcome"}),

		SearchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "chatbot_search_duration_seconds",
			Help:    "Search latency by type",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"search_type"}),

		SearchResults: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatbot_search_results",
			Help:    "Number of results returned per search",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 50},
		}),

		CategoryFallbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatbot_category_fallbacks_total",
			Help: "Retrievals that fell back to unfiltered search after an empty category-filtered result",
		}),

		StreamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatbot_streams_active",
			Help: "Currently open answer streams",
		}),

		DocumentsIngestedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatbot_documents_ingested_total",
			Help: "Documents processed by the ingestion pipeline, by outcome",
		}, []string{"outcome"}),
	}
}
