package coordinator

import "github.com/prometheus/client_golang/prometheus"

var (
	unitCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "coordinator",
		Name:      "units_total",
		Help:      "Number of work units finished grouped by outcome.",
	}, []string{"outcome"})

	fetchErrorCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "coordinator",
		Name:      "fetch_errors_total",
		Help:      "Number of data source fetches that failed and were treated as empty.",
	}, []string{"activity"})

	overallProgressGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "healthsync",
		Subsystem: "coordinator",
		Name:      "overall_progress_percent",
		Help:      "Share of work units completed in the current pass.",
	})
)

func init() {
	prometheus.MustRegister(unitCounter, fetchErrorCounter, overallProgressGauge)
}

func recordUnit(outcome Outcome) {
	unitCounter.WithLabelValues(string(outcome)).Inc()
}

func recordFetchError(activity string) {
	fetchErrorCounter.WithLabelValues(activity).Inc()
}

func setOverallProgress(pct float64) {
	overallProgressGauge.Set(pct)
}
