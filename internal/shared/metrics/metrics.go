// Package metrics exposes Prometheus metrics for the reconciler jobs.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every reconciler metric plus the standard Go collectors.
var Registry = prometheus.NewRegistry()

var (
	jobRuns = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_job_runs_total",
		Help: "Job invocations by final status",
	}, []string{"job", "status"})

	jobItems = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_job_items_total",
		Help: "Items handled by jobs, by outcome",
	}, []string{"job", "outcome"})

	jobSkipped = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "reconciler_job_skipped_total",
		Help: "Firings skipped because the previous invocation was still running",
	}, []string{"job"})

	jobDuration = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconciler_job_duration_seconds",
		Help:    "Job invocation wall time",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
	}, []string{"job"})

	jobLastSuccess = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "reconciler_job_last_success_timestamp_seconds",
		Help: "Unix time of the last invocation that completed without a run-level error",
	}, []string{"job"})
)

func init() {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
}

// ObserveRun records one finished invocation.
func ObserveRun(job, status string, took time.Duration, finishedAt time.Time) {
	jobRuns.WithLabelValues(job, status).Inc()
	jobDuration.WithLabelValues(job).Observe(took.Seconds())
	if status == "ok" {
		jobLastSuccess.WithLabelValues(job).Set(float64(finishedAt.Unix()))
	}
}

// AddItems adds n items with the given outcome (ok, failed, deleted, kept, skipped, inconsistent).
func AddItems(job, outcome string, n int) {
	if n <= 0 {
		return
	}
	jobItems.WithLabelValues(job, outcome).Add(float64(n))
}

// IncSkipped counts a firing dropped by overlap prevention.
func IncSkipped(job string) {
	jobSkipped.WithLabelValues(job).Inc()
}

// Handler exposes metrics in Prometheus text format.
func Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
