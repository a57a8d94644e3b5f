// Package observability holds watermark gauges shared by the syncer and the receiver.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	samplePersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "healthsync_receiver",
		Subsystem: "persistence",
		Name:      "last_sample_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent sample persisted to Postgres.",
	})
	checkpointGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "healthsync",
		Subsystem: "checkpoint",
		Name:      "watermark_timestamp_seconds",
		Help:      "Unix timestamp of the stored checkpoint per activity.",
	}, []string{"activity"})
	passGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "healthsync",
		Subsystem: "sync",
		Name:      "last_pass_completed_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed sync pass.",
	})
)

func init() {
	prometheus.MustRegister(samplePersistGauge, checkpointGauge, passGauge)
}

// RecordSamplePersisted updates the receiver persistence watermark.
func RecordSamplePersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	samplePersistGauge.Set(float64(ts.Unix()))
}

// RecordCheckpoints publishes the checkpoint watermark of every activity.
func RecordCheckpoints(checkpoints map[string]time.Time) {
	for activity, ts := range checkpoints {
		if ts.IsZero() {
			continue
		}
		checkpointGauge.WithLabelValues(activity).Set(float64(ts.Unix()))
	}
}

// RecordPassCompleted marks the end of a sync pass.
func RecordPassCompleted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	passGauge.Set(float64(ts.Unix()))
}
