package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP client metrics
	ClientRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrilo_client_requests_total",
			Help: "Total number of backend requests by method and status",
		},
		[]string{"method", "status"},
	)

	ClientRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agrilo_client_request_duration_seconds",
			Help:    "Backend request duration in seconds, including a refresh-and-retry",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	RefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrilo_client_refresh_total",
			Help: "Total number of access token refresh attempts by outcome",
		},
		[]string{"outcome"},
	)

	RetriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "agrilo_client_retries_total",
			Help: "Total number of requests re-issued after a successful refresh",
		},
	)

	// Session metrics
	SessionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrilo_session_transitions_total",
			Help: "Total number of session state transitions",
		},
		[]string{"from", "to"},
	)

	// Polling view metrics
	PollFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrilo_poll_fetches_total",
			Help: "Total number of polling fetches by view and outcome",
		},
		[]string{"view", "outcome"},
	)

	PollFetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agrilo_poll_fetch_duration_seconds",
			Help:    "Polling fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"view"},
	)

	PollStaleDiscardedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agrilo_poll_stale_discarded_total",
			Help: "Total number of out-of-order poll responses discarded",
		},
		[]string{"view"},
	)
)

// Outcome label values
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeShared  = "shared"
)

func init() {
	prometheus.MustRegister(ClientRequestsTotal)
	prometheus.MustRegister(ClientRequestDuration)
	prometheus.MustRegister(RefreshTotal)
	prometheus.MustRegister(RetriesTotal)
	prometheus.MustRegister(SessionTransitionsTotal)
	prometheus.MustRegister(PollFetchesTotal)
	prometheus.MustRegister(PollFetchDuration)
	prometheus.MustRegister(PollStaleDiscardedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
