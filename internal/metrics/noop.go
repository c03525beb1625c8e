package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) MaterializeRunCompleted(d time.Duration, added, removed int, err error)     {}
func (n *NoopSink) CleanupRunCompleted(d time.Duration, eventsPruned, exclPruned int, e error) {}
func (n *NoopSink) TriggerBufferUpdate(size, capacity int)                                     {}
func (n *NoopSink) TriggerEmitError()                                                          {}
func (n *NoopSink) DeploymentTracked()                                                         {}
func (n *NoopSink) DeploymentPollCompleted(err error)                                          {}
func (n *NoopSink) DeploymentResolved(outcome string, elapsed time.Duration)                   {}
func (n *NoopSink) NotificationAttemptCompleted(attempt int, sc string, d time.Duration)       {}
func (n *NoopSink) NotificationOutcome(outcome string)                                         {}
