// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	AskRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_ask_requests_total",
			Help: "Ask requests by classified intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	AskErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_ask_errors_total",
			Help: "Ask requests that failed, by error code",
		},
		[]string{"error_code"},
	)

	TopSimilarity = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rag_top_similarity_score",
			Help:    "Best chunk similarity per request",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"intent"},
	)

	ScrapesStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_scrapes_started_total",
			Help: "Background web scrapes started",
		},
	)

	ScrapesFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rag_scrapes_finished_total",
			Help: "Background web scrapes finished, by outcome",
		},
		[]string{"outcome"},
	)

	ScrapesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "rag_scrapes_in_flight",
			Help: "Background web scrapes currently running",
		},
	)

	ChunksIngested = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "rag_chunks_ingested_total",
			Help: "Chunks written to the chunk store",
		},
	)
)
