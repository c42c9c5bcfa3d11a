package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	subsystem = "doc_feedback"

	jobsTotal          = "jobs_total"
	stageDuration      = "stage_duration_seconds"
	itemsInserted      = "items_inserted_total"
	schedulerTimeouts  = "scheduler_timeouts_total"
	httpRequestsTotal  = "http_requests_total"
	httpRequestLatency = "http_request_duration_seconds"

	// Labels
	statusLabel  = "status"
	stageLabel   = "stage"
	outcomeLabel = "outcome"
	codeLabel    = "code"
	methodLabel  = "method"
	routeLabel   = "route"
)

var jobsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      jobsTotal,
		Help:      "number of feedback jobs that reached a terminal status",
	},
	[]string{statusLabel},
)

var stageDurationMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      stageDuration,
		Help:      "duration of each pipeline stage",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300},
	},
	[]string{stageLabel, outcomeLabel},
)

var itemsInsertedMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      itemsInserted,
		Help:      "number of feedback blocks written into documents",
	},
)

var schedulerTimeoutsMetric = prometheus.NewCounter(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      schedulerTimeouts,
		Help:      "number of jobs failed by the scheduler timeout",
	},
)

var httpRequestsMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: subsystem,
		Name:      httpRequestsTotal,
		Help:      "number of HTTP requests partitioned by status code, method and route",
	},
	[]string{codeLabel, methodLabel, routeLabel},
)

var httpLatencyMetric = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Subsystem: subsystem,
		Name:      httpRequestLatency,
		Help:      "HTTP request latency partitioned by method and route",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{methodLabel, routeLabel},
)

// IncreaseJobsTotal counts a job reaching a terminal status
func IncreaseJobsTotal(status string) {
	jobsTotalMetric.With(prometheus.Labels{statusLabel: status}).Inc()
}

// ObserveStageDuration records how long a stage took and whether it succeeded
func ObserveStageDuration(stage string, ok bool, d time.Duration) {
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	stageDurationMetric.With(prometheus.Labels{stageLabel: stage, outcomeLabel: outcome}).Observe(d.Seconds())
}

// AddItemsInserted counts feedback blocks written to documents
func AddItemsInserted(n int) {
	if n > 0 {
		itemsInsertedMetric.Add(float64(n))
	}
}

// IncreaseSchedulerTimeouts counts a job failed by the scheduler timeout
func IncreaseSchedulerTimeouts() {
	schedulerTimeoutsMetric.Inc()
}

// ObserveHTTPRequest records one served request
func ObserveHTTPRequest(method, route string, code int, d time.Duration) {
	httpRequestsMetric.With(prometheus.Labels{
		codeLabel:   strconv.Itoa(code),
		methodLabel: method,
		routeLabel:  route,
	}).Inc()
	httpLatencyMetric.With(prometheus.Labels{methodLabel: method, routeLabel: route}).Observe(d.Seconds())
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(jobsTotalMetric)
	prometheus.MustRegister(stageDurationMetric)
	prometheus.MustRegister(itemsInsertedMetric)
	prometheus.MustRegister(schedulerTimeoutsMetric)
	prometheus.MustRegister(httpRequestsMetric)
	prometheus.MustRegister(httpLatencyMetric)
}
