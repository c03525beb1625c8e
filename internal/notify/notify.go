// Package notify delivers deployment outcome notifications. The webhook
// implementation signs payloads with HMAC-SHA256 and retries transient
// failures with backoff behind a per-URL circuit breaker.
package notify

import (
	"context"
	"log"
	"time"
)

// Notifier receives the terminal outcome of a tracked deployment.
type Notifier interface {
	Success(ctx context.Context, target string, elapsed time.Duration)
	Timeout(ctx context.Context, target string, elapsed time.Duration)
}

// LogNotifier writes outcomes to the process log. Used when no webhook URL
// is configured.
type LogNotifier struct{}

func (LogNotifier) Success(ctx context.Context, target string, elapsed time.Duration) {
	log.Printf("notify: %s deployed after %s", target, elapsed.Round(time.Second))
}

func (LogNotifier) Timeout(ctx context.Context, target string, elapsed time.Duration) {
	log.Printf("notify: %s deployment not confirmed after %s", target, elapsed.Round(time.Second))
}
