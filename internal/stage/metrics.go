package stage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	stageRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vqa",
		Name:      "stage_requests_total",
		Help:      "Pipeline stage calls by outcome.",
	}, []string{"stage", "outcome"})

	stageDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vqa",
		Name:      "stage_duration_seconds",
		Help:      "Pipeline stage call latency.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})
)

func init() {
	prometheus.MustRegister(stageRequests, stageDuration)
}

func observe(stage Name, start time.Time, err error) {
	outcome := "ok"
	if se, ok := err.(*StageError); ok {
		outcome = "transport_error"
		if se.Kind == KindMalformed {
			outcome = "malformed"
		}
	} else if err != nil {
		outcome = "error"
	}
	stageRequests.WithLabelValues(string(stage), outcome).Inc()
	stageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}
