// Package telemetry exposes Prometheus collectors for the transcript service.
package telemetry

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	queueActive            prometheus.Gauge
	queuePending           prometheus.Gauge
	queueTasksTotal        *prometheus.CounterVec
	queueRejectionsTotal   *prometheus.CounterVec
	queueTaskSeconds       prometheus.Histogram
	browserLaunchesTotal   prometheus.Counter
	browserLaunchRetries   prometheus.Counter
	browserLaunchSeconds   prometheus.Histogram
	browserCleanupFailures prometheus.Counter
	extractAttemptsTotal   *prometheus.CounterVec
	batchItemsTotal        *prometheus.CounterVec
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestSeconds     *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times; all observation helpers are no-ops until it runs.
func Init() {
	once.Do(func() {
		queueActive = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "transcriptd_queue_active",
			Help: "Tasks currently executing.",
		})
		queuePending = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "transcriptd_queue_pending",
			Help: "Tasks parked on the wait list.",
		})
		queueTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriptd_queue_tasks_total",
			Help: "Settled queue tasks partitioned by result.",
		}, []string{"result"})
		queueRejectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriptd_queue_rejections_total",
			Help: "Rejected submissions partitioned by reason.",
		}, []string{"reason"})
		queueTaskSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcriptd_queue_task_seconds",
			Help:    "Wall time per settled queue task.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		})
		browserLaunchesTotal = promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcriptd_browser_launches_total",
			Help: "Successful browser launches.",
		})
		browserLaunchRetries = promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcriptd_browser_launch_retries_total",
			Help: "Launch attempts that failed and were retried.",
		})
		browserLaunchSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcriptd_browser_launch_seconds",
			Help:    "Time to a usable browser process.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		})
		browserCleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcriptd_browser_cleanup_failures_total",
			Help: "Teardowns that reported an error.",
		})
		extractAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriptd_extract_attempts_total",
			Help: "Extraction attempts partitioned by outcome.",
		}, []string{"outcome"})
		batchItemsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriptd_batch_items_total",
			Help: "Settled batch items partitioned by status.",
		}, []string{"status"})
		httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriptd_http_requests_total",
			Help: "HTTP requests partitioned by method and code.",
		}, []string{"method", "code"})
		httpRequestSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcriptd_http_request_seconds",
			Help:    "HTTP request latency partitioned by method and route.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120},
		}, []string{"method", "route"})
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetQueueDepth records the queue gauges.
func SetQueueDepth(active, pending int) {
	if queueActive == nil {
		return
	}
	queueActive.Set(float64(active))
	queuePending.Set(float64(pending))
}

// ObserveQueueTask records one settled task.
func ObserveQueueTask(succeeded bool, dur time.Duration) {
	if queueTasksTotal == nil {
		return
	}
	result := "failed"
	if succeeded {
		result = "succeeded"
	}
	queueTasksTotal.WithLabelValues(result).Inc()
	queueTaskSeconds.Observe(dur.Seconds())
}

// ObserveQueueRejection counts one rejected submission.
func ObserveQueueRejection(reason string) {
	if queueRejectionsTotal == nil {
		return
	}
	queueRejectionsTotal.WithLabelValues(reason).Inc()
}

// ObserveBrowserLaunch records a successful launch and its duration.
func ObserveBrowserLaunch(dur time.Duration) {
	if browserLaunchesTotal == nil {
		return
	}
	browserLaunchesTotal.Inc()
	browserLaunchSeconds.Observe(dur.Seconds())
}

// ObserveBrowserLaunchRetry counts one failed launch attempt.
func ObserveBrowserLaunchRetry() {
	if browserLaunchRetries == nil {
		return
	}
	browserLaunchRetries.Inc()
}

// ObserveBrowserCleanupFailure counts one teardown error.
func ObserveBrowserCleanupFailure() {
	if browserCleanupFailures == nil {
		return
	}
	browserCleanupFailures.Inc()
}

// ObserveExtractAttempt counts one extraction attempt by outcome.
func ObserveExtractAttempt(outcome string) {
	if extractAttemptsTotal == nil {
		return
	}
	extractAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveBatchItem counts one settled batch item by status.
func ObserveBatchItem(status string) {
	if batchItemsTotal == nil {
		return
	}
	batchItemsTotal.WithLabelValues(status).Inc()
}

// ObserveHTTPRequest records one served HTTP request.
func ObserveHTTPRequest(method, route string, code int, dur time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestSeconds.WithLabelValues(method, route).Observe(dur.Seconds())
}
