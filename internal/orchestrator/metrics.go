package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("flowsync.orchestrator")

var (
	// runsTotal counts runs by operation (extract, write) and outcome.
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowsync",
		Subsystem: "orchestrator",
		Name:      "runs_total",
		Help:      "Total orchestrator runs",
	}, []string{"op", "status"})

	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowsync",
		Subsystem: "orchestrator",
		Name:      "run_duration_seconds",
		Help:      "Duration of a full extract or write run",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"op"})

	// sectionInstances counts processed instances per section.
	// Labels: op, section, status (ok, failed)
	sectionInstances = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "flowsync",
		Subsystem: "orchestrator",
		Name:      "section_instances_total",
		Help:      "Total section instances processed",
	}, []string{"op", "section", "status"})

	sectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "flowsync",
		Subsystem: "orchestrator",
		Name:      "section_duration_seconds",
		Help:      "Duration of one section conversion",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"op", "section"})
)

// RecordRun records the outcome of a run.
func RecordRun(op string, ok bool, d time.Duration) {
	status := "ok"
	if !ok {
		status = "failed"
	}
	runsTotal.WithLabelValues(op, status).Inc()
	runDuration.WithLabelValues(op).Observe(d.Seconds())
}

// RecordSection records the outcome of one section conversion.
func RecordSection(op string, sr *SectionReport) {
	ok := sr.Instances - sr.FailedInstances
	if ok < 0 {
		ok = 0
	}
	sectionInstances.WithLabelValues(op, sr.Name, "ok").Add(float64(ok))
	sectionInstances.WithLabelValues(op, sr.Name, "failed").Add(float64(sr.FailedInstances))
	sectionDuration.WithLabelValues(op, sr.Name).Observe(sr.Duration.Seconds())
}
