package artifact

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/splax/stackgen/internal/generator"
)

const (
	resultInvalid   = "invalid"
	resultGenerated = "generated"
	resultCommitted = "committed"
	resultFailed    = "failed"
)

var (
	metricsOnce     sync.Once
	artifactResults *prometheus.CounterVec
	publishDuration *prometheus.HistogramVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		artifactResults = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stackgen",
			Subsystem: "artifact",
			Name:      "results_total",
			Help:      "Generate requests by artifact kind and result",
		}, []string{"kind", "result"})
		publishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "stackgen",
			Subsystem: "artifact",
			Name:      "publish_duration_seconds",
			Help:      "Time spent cloning, committing and pushing",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"outcome"})

		if err := prometheus.Register(artifactResults); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(*prometheus.CounterVec); ok {
					artifactResults = existing
				}
			}
		}
		if err := prometheus.Register(publishDuration); err != nil {
			if already, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if existing, ok := already.ExistingCollector.(*prometheus.HistogramVec); ok {
					publishDuration = existing
				}
			}
		}
	})
}

func recordResult(kind, result string) {
	if artifactResults == nil {
		return
	}
	if parsed, err := generator.ParseKind(kind); err == nil {
		kind = string(parsed)
	} else {
		kind = "unknown"
	}
	artifactResults.With(prometheus.Labels{"kind": kind, "result": result}).Inc()
}

func observePublish(d time.Duration, ok bool) {
	if publishDuration == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	publishDuration.With(prometheus.Labels{"outcome": outcome}).Observe(d.Seconds())
}
