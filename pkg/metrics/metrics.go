package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	eventPipeline = "event_pipeline"

	// Queue metrics
	queueDepth            = "queue_depth"
	jobsProcessedTotal    = "jobs_processed_total"
	jobDurationSeconds    = "job_duration_seconds"
	claimConflictsTotal   = "claim_conflicts_total"
	stalledJobsResetTotal = "stalled_jobs_reset_total"

	// Collaborator metrics
	externalCallsTotal = "external_calls_total"

	// Labels
	statusLabel       = "status"
	outcomeLabel      = "outcome"
	collaboratorLabel = "collaborator"
	resultLabel       = "result"
)

var queueDepthMetric = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Subsystem: eventPipeline,
		Name:      queueDepth,
		Help:      "number of import jobs per status",
	},
	[]string{statusLabel},
)

var jobsProcessedTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: eventPipeline,
		Name:      jobsProcessedTotal,
		Help:      "number of import jobs finished, by outcome",
	},
	[]string{outcomeLabel},
)

var jobDurationSecondsMetric = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Subsystem: eventPipeline,
		Name:      jobDurationSeconds,
		Help:      "wall-clock duration of one import job run",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
	},
)

var claimConflictsTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: eventPipeline,
		Name:      claimConflictsTotal,
		Help:      "number of claim attempts lost to a competing worker",
	},
)

var stalledJobsResetTotalMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: eventPipeline,
		Name:      stalledJobsResetTotal,
		Help:      "number of stuck processing jobs swept back to pending",
	},
)

var externalCallsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: eventPipeline,
		Name:      externalCallsTotal,
		Help:      "number of collaborator calls, by collaborator and result",
	},
	[]string{collaboratorLabel, resultLabel},
)

func UpdateQueueDepthMetric(status string, count int64) {
	queueDepthMetric.With(prometheus.Labels{statusLabel: status}).Set(float64(count))
}

func IncreaseJobsProcessedMetric(outcome string) {
	jobsProcessedTotalMetric.With(prometheus.Labels{outcomeLabel: outcome}).Inc()
}

func ObserveJobDuration(seconds float64) {
	jobDurationSecondsMetric.Observe(seconds)
}

func IncreaseClaimConflictsMetric() {
	claimConflictsTotalMetric.Inc()
}

func AddStalledJobsResetMetric(count int64) {
	stalledJobsResetTotalMetric.Add(float64(count))
}

func IncreaseExternalCallsMetric(collaborator, result string) {
	externalCallsTotalMetric.With(prometheus.Labels{
		collaboratorLabel: collaborator,
		resultLabel:       result,
	}).Inc()
}

// PrometheusMetricsHandler serves the default registry.
type PrometheusMetricsHandler struct{}

func NewPrometheusMetricsHandler() *PrometheusMetricsHandler {
	return &PrometheusMetricsHandler{}
}

func (h *PrometheusMetricsHandler) Handler() http.Handler {
	return promhttp.Handler()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(queueDepthMetric)
	prometheus.MustRegister(jobsProcessedTotalMetric)
	prometheus.MustRegister(jobDurationSecondsMetric)
	prometheus.MustRegister(claimConflictsTotalMetric)
	prometheus.MustRegister(stalledJobsResetTotalMetric)
	prometheus.MustRegister(externalCallsTotalMetric)
}
