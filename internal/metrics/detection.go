package metrics

import "github.com/prometheus/client_golang/prometheus"

// Detection, embedding and generation Prometheus metrics.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardrail",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "guardrail",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardrail",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	DetectionChecksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardrail",
			Name:      "detection_checks_total",
			Help:      "Detection policy evaluations by corpus and outcome",
		},
		[]string{"corpus", "flagged"},
	)

	// FailOpenTotal counts guardrail checks that defaulted to "not
	// flagged" because a collaborator failed. The fail-open policy is
	// deliberate; this counter is how operators notice it firing.
	FailOpenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardrail",
			Name:      "failopen_total",
			Help:      "Checks that failed open due to collaborator errors",
		},
		[]string{"corpus"},
	)

	PipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "guardrail",
			Name:      "pipeline_requests_total",
			Help:      "Pipeline executions by final outcome",
		},
		[]string{"outcome"}, // "generated" / "blocked" / "generation_failed"
	)

	GenerationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "guardrail",
			Name:      "generation_request_duration_seconds",
			Help:      "Response generation duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"model", "status"},
	)
)

var registered bool

// Register registers all non-HTTP metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(DetectionChecksTotal)
	prometheus.MustRegister(FailOpenTotal)
	prometheus.MustRegister(PipelineRequestsTotal)
	prometheus.MustRegister(GenerationRequestDuration)
	registered = true
}
