package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"transcriptd/internal/progress"
)

// PrometheusSink exports extraction progress via Prometheus. It owns all
// collectors for job lifecycle and per-item settlement.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec
	attemptTime   prometheus.Histogram
	itemsSettled  *prometheus.CounterVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "transcriptd_jobs_started_total",
			Help: "Total jobs that have started.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriptd_jobs_completed_total",
			Help: "Total jobs completed partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "transcriptd_jobs_running",
			Help: "Current number of running jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcriptd_job_runtime_seconds",
			Help:    "Wall time per completed job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"result"}),
		attemptTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcriptd_attempt_seconds",
			Help:    "Wall time per extraction attempt.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		itemsSettled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "transcriptd_items_settled_total",
			Help: "Batch items settled partitioned by status.",
		}, []string{"status"}),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.attemptTime,
		s.itemsSettled,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from the batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageJobStart:
			s.jobsStarted.Inc()
			s.jobsRunning.Inc()
		case progress.StageJobDone:
			s.jobsRunning.Dec()
			s.jobsCompleted.WithLabelValues("success").Inc()
			s.jobRuntime.WithLabelValues("success").Observe(evt.Dur.Seconds())
		case progress.StageJobError:
			s.jobsRunning.Dec()
			s.jobsCompleted.WithLabelValues("error").Inc()
			s.jobRuntime.WithLabelValues("error").Observe(evt.Dur.Seconds())
		case progress.StageAttemptDone:
			s.attemptTime.Observe(evt.Dur.Seconds())
		case progress.StageItemDone:
			s.itemsSettled.WithLabelValues(evt.Status).Inc()
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
