package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Job metrics
	MaterializeRunCompleted(duration time.Duration, added, removed int, err error)
	CleanupRunCompleted(duration time.Duration, eventsPruned, exclusionsPruned int, err error)

	// Trigger bus metrics
	TriggerBufferUpdate(size, capacity int)
	TriggerEmitError()

	// Deployment tracker metrics
	DeploymentTracked()
	DeploymentPollCompleted(err error)
	DeploymentResolved(outcome string, elapsed time.Duration)

	// Notification metrics
	NotificationAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	NotificationOutcome(outcome string)
}

// Outcome constants for DeploymentResolved and NotificationOutcome.
const (
	OutcomeSuccess = "success"
	OutcomeTimeout = "timeout"
	OutcomeFailed  = "failed"
)
