package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sdi_http_requests_total",
		Help: "Administration requests by route and status",
	}, []string{"method", "route", "status"})
	RequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sdi_http_request_duration_seconds",
		Help:    "Administration request duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
	InstanceTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sdi_instance_transitions_total",
		Help: "Service instance status changes",
	}, []string{"spec", "status"})
	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sdi_jobs_total",
		Help: "Finished scheduler jobs by final status",
	}, []string{"status"})
	JobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sdi_job_duration_seconds",
		Help:    "Scheduler job duration",
		Buckets: []float64{0.01, 0.1, 1, 10, 60, 600, 3600},
	})
	TaskEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sdi_task_events_total",
		Help: "Task status events published",
	}, []string{"status"})
)

func init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(InstanceTransitions)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(TaskEventsTotal)
}

func Handler() http.Handler {
	return promhttp.Handler()
}
