package metrics

import (
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Job metrics
	materializeRunsTotal *prometheus.CounterVec
	materializeDuration  prometheus.Histogram
	eventsAddedTotal     prometheus.Counter
	eventsRemovedTotal   prometheus.Counter
	cleanupRunsTotal     *prometheus.CounterVec
	cleanupDuration      prometheus.Histogram
	eventsPrunedTotal    prometheus.Counter
	exclusionsPruned     prometheus.Counter

	// Trigger bus metrics
	triggerBufferSize     prometheus.Gauge
	triggerBufferCapacity prometheus.Gauge
	triggerEmitErrors     prometheus.Counter

	// Deployment tracker metrics
	deploymentsTracked  prometheus.Counter
	deploymentPolls     *prometheus.CounterVec
	deploymentsResolved *prometheus.CounterVec
	deploymentWait      prometheus.Histogram

	// Notification metrics
	notificationAttempts *prometheus.CounterVec
	notificationDuration prometheus.Histogram
	notificationOutcomes *prometheus.CounterVec
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// If registration fails, it logs a warning and returns a functional sink.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initJobMetrics(reg)
	s.initTriggerMetrics(reg)
	s.initTrackerMetrics(reg)
	s.initNotificationMetrics(reg)
	return s
}

func (s *PrometheusSink) initJobMetrics(reg prometheus.Registerer) {
	s.materializeRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesched_materialize_runs_total",
		Help: "Total number of materializer runs by result.",
	}, []string{"result"})
	s.materializeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagesched_materialize_duration_seconds",
		Help:    "Duration of each materializer run in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	s.eventsAddedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagesched_events_added_total",
		Help: "Total number of events added by the materializer.",
	})
	s.eventsRemovedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagesched_events_removed_total",
		Help: "Total number of events retracted by the materializer.",
	})
	s.cleanupRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesched_cleanup_runs_total",
		Help: "Total number of cleanup runs by result.",
	}, []string{"result"})
	s.cleanupDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagesched_cleanup_duration_seconds",
		Help:    "Duration of each cleanup run in seconds.",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	s.eventsPrunedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagesched_events_pruned_total",
		Help: "Total number of expired events pruned.",
	})
	s.exclusionsPruned = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagesched_exclusions_pruned_total",
		Help: "Total number of elapsed exclusion dates pruned.",
	})

	s.register(reg, s.materializeRunsTotal, "pagesched_materialize_runs_total")
	s.register(reg, s.materializeDuration, "pagesched_materialize_duration_seconds")
	s.register(reg, s.eventsAddedTotal, "pagesched_events_added_total")
	s.register(reg, s.eventsRemovedTotal, "pagesched_events_removed_total")
	s.register(reg, s.cleanupRunsTotal, "pagesched_cleanup_runs_total")
	s.register(reg, s.cleanupDuration, "pagesched_cleanup_duration_seconds")
	s.register(reg, s.eventsPrunedTotal, "pagesched_events_pruned_total")
	s.register(reg, s.exclusionsPruned, "pagesched_exclusions_pruned_total")
}

func (s *PrometheusSink) initTriggerMetrics(reg prometheus.Registerer) {
	s.triggerBufferSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pagesched_trigger_buffer_size",
		Help: "Current number of requests in the trigger buffer.",
	})
	s.triggerBufferCapacity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pagesched_trigger_buffer_capacity",
		Help: "Capacity of the trigger buffer.",
	})
	s.triggerEmitErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagesched_trigger_emit_errors_total",
		Help: "Total number of trigger emit errors (buffer full or cancelled).",
	})

	s.register(reg, s.triggerBufferSize, "pagesched_trigger_buffer_size")
	s.register(reg, s.triggerBufferCapacity, "pagesched_trigger_buffer_capacity")
	s.register(reg, s.triggerEmitErrors, "pagesched_trigger_emit_errors_total")
}

func (s *PrometheusSink) initTrackerMetrics(reg prometheus.Registerer) {
	s.deploymentsTracked = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pagesched_deployments_tracked_total",
		Help: "Total number of commits registered for deployment tracking.",
	})
	s.deploymentPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesched_deployment_polls_total",
		Help: "Total number of liveness checks by result.",
	}, []string{"result"})
	s.deploymentsResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesched_deployments_resolved_total",
		Help: "Total number of tracked deployments by terminal outcome.",
	}, []string{"outcome"})
	s.deploymentWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagesched_deployment_wait_seconds",
		Help:    "Time from commit to resolution in seconds.",
		Buckets: []float64{15, 30, 60, 120, 180, 240, 300, 600},
	})

	s.register(reg, s.deploymentsTracked, "pagesched_deployments_tracked_total")
	s.register(reg, s.deploymentPolls, "pagesched_deployment_polls_total")
	s.register(reg, s.deploymentsResolved, "pagesched_deployments_resolved_total")
	s.register(reg, s.deploymentWait, "pagesched_deployment_wait_seconds")
}

func (s *PrometheusSink) initNotificationMetrics(reg prometheus.Registerer) {
	s.notificationAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesched_notification_attempts_total",
		Help: "Total number of notification delivery attempts.",
	}, []string{"attempt", "status_class"})
	s.notificationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagesched_notification_duration_seconds",
		Help:    "Notification request latency in seconds (excludes backoff wait).",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})
	s.notificationOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesched_notification_outcomes_total",
		Help: "Total number of final notification outcomes per delivery.",
	}, []string{"outcome"})

	s.register(reg, s.notificationAttempts, "pagesched_notification_attempts_total")
	s.register(reg, s.notificationDuration, "pagesched_notification_duration_seconds")
	s.register(reg, s.notificationOutcomes, "pagesched_notification_outcomes_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

// Job metrics implementation

func (s *PrometheusSink) MaterializeRunCompleted(duration time.Duration, added, removed int, err error) {
	s.materializeRunsTotal.WithLabelValues(resultLabel(err)).Inc()
	s.materializeDuration.Observe(duration.Seconds())
	s.eventsAddedTotal.Add(float64(added))
	s.eventsRemovedTotal.Add(float64(removed))
}

func (s *PrometheusSink) CleanupRunCompleted(duration time.Duration, eventsPruned, exclusionsPruned int, err error) {
	s.cleanupRunsTotal.WithLabelValues(resultLabel(err)).Inc()
	s.cleanupDuration.Observe(duration.Seconds())
	s.eventsPrunedTotal.Add(float64(eventsPruned))
	s.exclusionsPruned.Add(float64(exclusionsPruned))
}

// Trigger bus metrics implementation

func (s *PrometheusSink) TriggerBufferUpdate(size, capacity int) {
	s.triggerBufferSize.Set(float64(size))
	s.triggerBufferCapacity.Set(float64(capacity))
}

func (s *PrometheusSink) TriggerEmitError() {
	s.triggerEmitErrors.Inc()
}

// Deployment tracker metrics implementation

func (s *PrometheusSink) DeploymentTracked() {
	s.deploymentsTracked.Inc()
}

func (s *PrometheusSink) DeploymentPollCompleted(err error) {
	s.deploymentPolls.WithLabelValues(resultLabel(err)).Inc()
}

func (s *PrometheusSink) DeploymentResolved(outcome string, elapsed time.Duration) {
	s.deploymentsResolved.WithLabelValues(outcome).Inc()
	s.deploymentWait.Observe(elapsed.Seconds())
}

// Notification metrics implementation

func (s *PrometheusSink) NotificationAttemptCompleted(attempt int, statusClass string, duration time.Duration) {
	s.notificationAttempts.WithLabelValues(strconv.Itoa(attempt), statusClass).Inc()
	s.notificationDuration.Observe(duration.Seconds())
}

func (s *PrometheusSink) NotificationOutcome(outcome string) {
	s.notificationOutcomes.WithLabelValues(outcome).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
