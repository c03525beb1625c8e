package metrics

import (
	"testing"
	"time"
)

var _ Sink = (*NoopSink)(nil)

func TestNoopSink(t *testing.T) {
	sink := NewNoopSink()

	// Every method is callable and does nothing.
	sink.MaterializeRunCompleted(time.Second, 1, 1, nil)
	sink.CleanupRunCompleted(time.Second, 1, 1, nil)
	sink.TriggerBufferUpdate(1, 10)
	sink.TriggerEmitError()
	sink.DeploymentTracked()
	sink.DeploymentPollCompleted(nil)
	sink.DeploymentResolved(OutcomeSuccess, time.Second)
	sink.NotificationAttemptCompleted(1, "2xx", time.Second)
	sink.NotificationOutcome(OutcomeFailed)
}
