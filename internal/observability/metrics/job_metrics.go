package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	JobReasonDeadlineExceeded = "deadline_exceeded"
	JobReasonConflict         = "conflict"
	JobReasonBusinessRule     = "business_rule"
	JobReasonDB               = "db"
	JobReasonUnknown          = "unknown"
)

// JobMetrics captures background job health signals.
type JobMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobErrors   *prometheus.CounterVec
	runLoopLag  prometheus.Observer
}

var (
	jobMetricsOnce sync.Once
	jobMetrics     *JobMetrics
)

// Jobs returns the singleton job metrics registry.
func Jobs() *JobMetrics {
	return JobsWithConfig(Config{})
}

// JobsWithConfig returns the singleton job metrics registry using config labels.
func JobsWithConfig(cfg Config) *JobMetrics {
	jobMetricsOnce.Do(func() {
		jobMetrics = newJobMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return jobMetrics
}

// ResetJobMetricsForTest resets the job metrics singleton for tests.
func ResetJobMetricsForTest() {
	jobMetricsOnce = sync.Once{}
	jobMetrics = nil
}

func newJobMetrics(registerer prometheus.Registerer, cfg Config) *JobMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "cirrus"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cirrus_job_runs_total",
		Help:        "Background job runs by name and outcome.",
		ConstLabels: constLabels,
	}, []string{"job", "outcome"})

	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "cirrus_job_duration_seconds",
		Help:        "Background job duration by name.",
		ConstLabels: constLabels,
		Buckets:     []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	}, []string{"job"})

	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "cirrus_job_errors_total",
		Help:        "Background job errors by name and reason.",
		ConstLabels: constLabels,
	}, []string{"job", "reason"})

	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "cirrus_job_run_loop_lag_seconds",
		Help:        "Delay between scheduled and actual job loop ticks.",
		ConstLabels: constLabels,
		Buckets:     []float64{0.01, 0.1, 0.5, 1, 5, 30},
	})

	for _, collector := range []prometheus.Collector{jobRuns, jobDuration, jobErrors, runLoopLag} {
		_ = registerer.Register(collector)
	}

	return &JobMetrics{
		jobRuns:     jobRuns,
		jobDuration: jobDuration,
		jobErrors:   jobErrors,
		runLoopLag:  runLoopLag,
	}
}

// ObserveJob records one completed job run.
func (m *JobMetrics) ObserveJob(job, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job, outcome).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}

// ObserveJobError records one job error by reason.
func (m *JobMetrics) ObserveJobError(job, reason string) {
	if m == nil {
		return
	}
	if strings.TrimSpace(reason) == "" {
		reason = JobReasonUnknown
	}
	m.jobErrors.WithLabelValues(job, reason).Inc()
}

// ObserveRunLoopLag records scheduling delay of the job loop.
func (m *JobMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m == nil || lag < 0 {
		return
	}
	m.runLoopLag.Observe(lag.Seconds())
}
