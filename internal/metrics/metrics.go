package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CoverageRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agriseries_coverage_requests_total",
			Help: "Coverage service requests by layer and outcome",
		},
		[]string{"layer", "status"},
	)

	CoverageLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agriseries_coverage_request_seconds",
			Help:    "Coverage service request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"layer"},
	)

	ArtifactsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agriseries_artifacts_written_total",
			Help: "Output artifacts written by kind",
		},
		[]string{"kind"},
	)

	SinkRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agriseries_sink_rows_total",
			Help: "Database sink rows by result",
		},
		[]string{"result"},
	)
)
