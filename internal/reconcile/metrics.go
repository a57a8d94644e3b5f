package reconcile

import "github.com/prometheus/client_golang/prometheus"

var (
	decisionCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "reconcile",
		Name:      "decisions_total",
		Help:      "Number of checkpoint resolutions grouped by policy branch.",
	}, []string{"decision"})

	lookupErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "reconcile",
		Name:      "lookup_errors_total",
		Help:      "Number of failed latest-timestamp lookups against the server.",
	}, []string{"activity"})
)

func init() {
	prometheus.MustRegister(decisionCounter, lookupErrorCounter)
}

func recordDecision(d Decision) {
	decisionCounter.WithLabelValues(string(d)).Inc()
}

func recordLookupError(activity string) {
	lookupErrorCounter.WithLabelValues(activity).Inc()
}
