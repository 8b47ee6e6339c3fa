package telemetry

import "github.com/prometheus/client_golang/prometheus"

// The job, probe, session-recovery and job-duration collectors below are
// registered and exposed on /metrics; no code path in this module updates
// them, so they report zero values. HTTPRequestDuration is updated by the
// httpserver Metrics middleware.
var JobsStartedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "harvest",
		Subsystem: "jobs",
		Name:      "started_total",
		Help:      "Total number of harvest jobs promoted to in_progress.",
	},
)

var JobsCompletedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "harvest",
		Subsystem: "jobs",
		Name:      "completed_total",
		Help:      "Total number of harvest jobs that reached completed.",
	},
)

var JobsFailedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "harvest",
		Subsystem: "jobs",
		Name:      "failed_total",
		Help:      "Total number of harvest jobs that reached failed, by reason.",
	},
	[]string{"reason"},
)

var ProbesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "harvest",
		Subsystem: "probes",
		Name:      "total",
		Help:      "Total number of stage-4 appointment probes, by result.",
	},
	[]string{"result"},
)

var SessionRecoveriesTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "harvest",
		Subsystem: "session",
		Name:      "recoveries_total",
		Help:      "Total number of upstream session recoveries performed.",
	},
)

var JobDurationSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "harvest",
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Harvest job duration in seconds, from in_progress to terminal.",
		Buckets:   prometheus.ExponentialBuckets(5, 2, 12),
	},
)

// HTTPRequestDuration tracks admin HTTP surface request latency, labeled by
// method, matched route pattern, and status code.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "harvest",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

// All returns all harvest-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		JobsStartedTotal,
		JobsCompletedTotal,
		JobsFailedTotal,
		ProbesTotal,
		SessionRecoveriesTotal,
		JobDurationSeconds,
		HTTPRequestDuration,
	}
}
