package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

var _ Sink = (*PrometheusSink)(nil)

func newTestSink(t *testing.T) (*PrometheusSink, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	sink := NewPrometheusSink(reg)
	return sink, reg
}

func getCounterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func getGaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if m.GetGauge() != nil {
					return m.GetGauge().GetValue()
				}
			}
		}
	}
	return 0
}

func getCounterVecValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			for _, m := range mf.GetMetric() {
				if matchLabels(m.GetLabel(), labels) {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func matchLabels(pairs []*dto.LabelPair, want map[string]string) bool {
	if len(pairs) != len(want) {
		return false
	}
	for _, p := range pairs {
		if v, ok := want[p.GetName()]; !ok || v != p.GetValue() {
			return false
		}
	}
	return true
}

func TestPrometheusSink_MaterializeRunCompleted(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.MaterializeRunCompleted(2*time.Second, 3, 1, nil)
	sink.MaterializeRunCompleted(time.Second, 0, 0, errors.New("read rules: boom"))

	if got := getCounterVecValue(t, reg, "pagesched_materialize_runs_total", map[string]string{"result": "ok"}); got != 1 {
		t.Errorf("ok runs = %v, want 1", got)
	}
	if got := getCounterVecValue(t, reg, "pagesched_materialize_runs_total", map[string]string{"result": "error"}); got != 1 {
		t.Errorf("error runs = %v, want 1", got)
	}
	if got := getCounterValue(t, reg, "pagesched_events_added_total"); got != 3 {
		t.Errorf("events added = %v, want 3", got)
	}
	if got := getCounterValue(t, reg, "pagesched_events_removed_total"); got != 1 {
		t.Errorf("events removed = %v, want 1", got)
	}
}

func TestPrometheusSink_CleanupRunCompleted(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.CleanupRunCompleted(time.Second, 4, 2, nil)

	if got := getCounterVecValue(t, reg, "pagesched_cleanup_runs_total", map[string]string{"result": "ok"}); got != 1 {
		t.Errorf("ok runs = %v, want 1", got)
	}
	if got := getCounterValue(t, reg, "pagesched_events_pruned_total"); got != 4 {
		t.Errorf("events pruned = %v, want 4", got)
	}
	if got := getCounterValue(t, reg, "pagesched_exclusions_pruned_total"); got != 2 {
		t.Errorf("exclusions pruned = %v, want 2", got)
	}
}

func TestPrometheusSink_TriggerBuffer(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.TriggerBufferUpdate(3, 16)
	sink.TriggerEmitError()
	sink.TriggerEmitError()

	if got := getGaugeValue(t, reg, "pagesched_trigger_buffer_size"); got != 3 {
		t.Errorf("buffer size = %v, want 3", got)
	}
	if got := getGaugeValue(t, reg, "pagesched_trigger_buffer_capacity"); got != 16 {
		t.Errorf("buffer capacity = %v, want 16", got)
	}
	if got := getCounterValue(t, reg, "pagesched_trigger_emit_errors_total"); got != 2 {
		t.Errorf("emit errors = %v, want 2", got)
	}
}

func TestPrometheusSink_DeploymentMetrics(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.DeploymentTracked()
	sink.DeploymentPollCompleted(nil)
	sink.DeploymentPollCompleted(errors.New("api unavailable"))
	sink.DeploymentResolved(OutcomeSuccess, 45*time.Second)
	sink.DeploymentResolved(OutcomeTimeout, 301*time.Second)

	if got := getCounterValue(t, reg, "pagesched_deployments_tracked_total"); got != 1 {
		t.Errorf("tracked = %v, want 1", got)
	}
	if got := getCounterVecValue(t, reg, "pagesched_deployment_polls_total", map[string]string{"result": "error"}); got != 1 {
		t.Errorf("error polls = %v, want 1", got)
	}
	if got := getCounterVecValue(t, reg, "pagesched_deployments_resolved_total", map[string]string{"outcome": "success"}); got != 1 {
		t.Errorf("success resolutions = %v, want 1", got)
	}
	if got := getCounterVecValue(t, reg, "pagesched_deployments_resolved_total", map[string]string{"outcome": "timeout"}); got != 1 {
		t.Errorf("timeout resolutions = %v, want 1", got)
	}
}

func TestPrometheusSink_NotificationMetrics(t *testing.T) {
	sink, reg := newTestSink(t)

	sink.NotificationAttemptCompleted(1, "5xx", 100*time.Millisecond)
	sink.NotificationAttemptCompleted(2, "2xx", 80*time.Millisecond)
	sink.NotificationOutcome(OutcomeSuccess)

	if got := getCounterVecValue(t, reg, "pagesched_notification_attempts_total",
		map[string]string{"attempt": "1", "status_class": "5xx"}); got != 1 {
		t.Errorf("attempt 1 5xx = %v, want 1", got)
	}
	if got := getCounterVecValue(t, reg, "pagesched_notification_attempts_total",
		map[string]string{"attempt": "2", "status_class": "2xx"}); got != 1 {
		t.Errorf("attempt 2 2xx = %v, want 1", got)
	}
	if got := getCounterVecValue(t, reg, "pagesched_notification_outcomes_total",
		map[string]string{"outcome": "success"}); got != 1 {
		t.Errorf("success outcomes = %v, want 1", got)
	}
}

func TestPrometheusSink_DuplicateRegistrationDoesNotPanic(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheusSink(reg)
	// Second sink on the same registry fails registration; must only log.
	sink := NewPrometheusSink(reg)
	sink.DeploymentTracked()
}
