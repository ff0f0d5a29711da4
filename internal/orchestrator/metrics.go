package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"

	"edgeforge/pkg/types"
)

var (
	buildsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edgeforge",
			Name:      "builds_total",
			Help:      "Total number of builds by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edgeforge",
			Subsystem: "build",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages in seconds",
			Buckets:   []float64{0.1, 1, 5, 15, 60, 300, 900, 1800},
		},
		[]string{"stage", "backend"},
	)

	buildsInflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "edgeforge",
			Name:      "builds_inflight",
			Help:      "Builds currently executing",
		},
	)
)

func init() {
	prometheus.MustRegister(buildsTotal, stageDuration, buildsInflight)
}

// observeBuild records terminal metrics from a finished record. Builds
// that fail before dispatch carry no backend; those count under "none".
func observeBuild(record *types.BuildRecord, failed bool) {
	backend := string(record.Backend)
	if backend == "" {
		backend = "none"
	}
	outcome := "packaged"
	if failed {
		outcome = "failed"
	}
	buildsTotal.WithLabelValues(backend, outcome).Inc()
	for _, s := range record.Stages {
		if s.Skipped {
			continue
		}
		stageDuration.WithLabelValues(string(s.Stage), backend).Observe(s.Duration.Seconds())
	}
}
