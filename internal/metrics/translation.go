package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// TranslationRequestsTotal counts translator calls by provider/model/outcome.
	// Outcomes: filter, aggregate, out_of_scope, ambiguous, error.
	TranslationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "costnav",
			Name:      "translation_requests_total",
			Help:      "Total number of question translation requests",
		},
		[]string{"model", "outcome"},
	)

	// TranslationRequestDuration tracks translator call latency.
	TranslationRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "costnav",
			Name:      "translation_request_duration_seconds",
			Help:      "Question translation request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		},
		[]string{"model"},
	)

	// GovernedQueriesTotal counts governor decisions by intent and verdict.
	GovernedQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "costnav",
			Name:      "governed_queries_total",
			Help:      "Total number of proposals processed by the query governor",
		},
		[]string{"intent", "verdict"},
	)
)

// RegisterTranslationMetrics registers translator and governor metrics.
// Called explicitly from the composition root (no init()).
func RegisterTranslationMetrics() {
	prometheus.MustRegister(TranslationRequestsTotal)
	prometheus.MustRegister(TranslationRequestDuration)
	prometheus.MustRegister(GovernedQueriesTotal)
}
