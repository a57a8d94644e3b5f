package upload

import "github.com/prometheus/client_golang/prometheus"

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "upload",
		Name:      "records_delivered_total",
		Help:      "Number of records acknowledged by the server.",
	}, []string{"activity"})

	failureCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "upload",
		Name:      "attempt_failures_total",
		Help:      "Number of failed delivery attempts.",
	}, []string{"activity"})

	deadLetterCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "upload",
		Name:      "dead_letters_total",
		Help:      "Number of records skipped after exhausting their attempts.",
	}, []string{"activity"})

	filteredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "healthsync",
		Subsystem: "upload",
		Name:      "records_filtered_total",
		Help:      "Number of fetched records dropped for falling outside their batch.",
	}, []string{"activity"})
)

func init() {
	prometheus.MustRegister(deliveredCounter, failureCounter, deadLetterCounter, filteredCounter)
}

func recordDelivered(activity string)  { deliveredCounter.WithLabelValues(activity).Inc() }
func recordFailure(activity string)    { failureCounter.WithLabelValues(activity).Inc() }
func recordDeadLetter(activity string) { deadLetterCounter.WithLabelValues(activity).Inc() }
func recordFiltered(activity string)   { filteredCounter.WithLabelValues(activity).Inc() }
