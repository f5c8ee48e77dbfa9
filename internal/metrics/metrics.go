package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScrapeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scrape_archiver_requests_total",
			Help: "Total number of scrape requests by outcome",
		},
		[]string{"outcome"},
	)

	ScrapeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_archiver_duration_seconds",
			Help:    "Duration of scrape requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"outcome"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scrape_archiver_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"stage"},
	)

	ArtifactBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scrape_archiver_artifact_bytes_total",
			Help: "Total bytes of encrypted archives produced",
		},
	)
)

// RecordRun updates the request metrics. outcome is "ok" or the failure kind.
func RecordRun(outcome string, elapsed time.Duration, artifactBytes int64) {
	ScrapeRequestsTotal.WithLabelValues(outcome).Inc()
	ScrapeDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if artifactBytes > 0 {
		ArtifactBytesTotal.Add(float64(artifactBytes))
	}
}

func ObserveStage(stage string, start time.Time) {
	StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
