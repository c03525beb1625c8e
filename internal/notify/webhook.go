package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

// EventDeploymentLive and EventDeploymentTimeout are the payload event names.
const (
	EventDeploymentLive    = "deployment_live"
	EventDeploymentTimeout = "deployment_timeout"
)

var defaultBackoff = []time.Duration{
	0,
	10 * time.Second,
	30 * time.Second,
	2 * time.Minute,
}

const maxAttempts = 4

const (
	breakerThreshold = 3
	breakerCooldown  = 5 * time.Minute
)

// MetricsSink records delivery metrics. Fire-and-forget.
type MetricsSink interface {
	NotificationAttemptCompleted(attempt int, statusClass string, duration time.Duration)
	NotificationOutcome(outcome string)
}

// Payload is the JSON body of a notification. Receivers verify the
// X-Pagesched-Signature header over the raw body with the shared secret.
type Payload struct {
	Event          string `json:"event"`
	Target         string `json:"target"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
	NotifiedAt     string `json:"notifiedAt"`
	DeliveryID     string `json:"deliveryId"`
}

// Webhook posts signed outcome notifications to a single destination.
type Webhook struct {
	url     string
	secret  string
	client  *http.Client
	backoff []time.Duration
	breaker *breaker
	metrics MetricsSink
	clock   func() time.Time
}

// NewWebhook creates a webhook notifier for url, signing with secret.
func NewWebhook(url, secret string) *Webhook {
	return &Webhook{
		url:     url,
		secret:  secret,
		client:  &http.Client{Timeout: 30 * time.Second},
		backoff: defaultBackoff,
		breaker: newBreaker(breakerThreshold, breakerCooldown),
		clock:   time.Now,
	}
}

// WithMetrics attaches a metrics sink.
func (w *Webhook) WithMetrics(sink MetricsSink) *Webhook {
	w.metrics = sink
	return w
}

func (w *Webhook) Success(ctx context.Context, target string, elapsed time.Duration) {
	w.deliver(ctx, EventDeploymentLive, target, elapsed)
}

func (w *Webhook) Timeout(ctx context.Context, target string, elapsed time.Duration) {
	w.deliver(ctx, EventDeploymentTimeout, target, elapsed)
}

type attemptResult struct {
	StatusCode int
	Error      error
	Duration   time.Duration
}

func (r attemptResult) IsSuccess() bool {
	return r.Error == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

func (r attemptResult) IsRetryable() bool {
	if r.Error != nil {
		return true
	}
	if r.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return r.StatusCode >= 500
}

func (w *Webhook) deliver(ctx context.Context, event, target string, elapsed time.Duration) {
	if err := w.breaker.allow(w.url); err != nil {
		log.Printf("notify: %s for %s skipped, destination circuit open", event, target)
		if w.metrics != nil {
			w.metrics.NotificationOutcome("circuit_open")
		}
		return
	}

	deliveryID := uuid.New().String()
	body, err := json.Marshal(Payload{
		Event:          event,
		Target:         target,
		ElapsedSeconds: int(elapsed.Seconds()),
		NotifiedAt:     w.clock().UTC().Format(time.RFC3339),
		DeliveryID:     deliveryID,
	})
	if err != nil {
		log.Printf("notify: marshal payload: %v", err)
		return
	}
	signature := computeSignature(w.secret, body)

	var last attemptResult
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			idx := attempt - 1
			if idx >= len(w.backoff) {
				idx = len(w.backoff) - 1
			}
			timer := time.NewTimer(w.backoff[idx])
			select {
			case <-ctx.Done():
				timer.Stop()
				log.Printf("notify: %s for %s abandoned: %v", event, target, ctx.Err())
				return
			case <-timer.C:
			}
		}

		last = w.post(ctx, body, signature, event, deliveryID)
		if w.metrics != nil {
			w.metrics.NotificationAttemptCompleted(attempt, classifyStatus(last.StatusCode, last.Error), last.Duration)
		}

		if last.IsSuccess() {
			w.breaker.recordSuccess(w.url)
			if w.metrics != nil {
				w.metrics.NotificationOutcome("success")
			}
			log.Printf("notify: %s for %s delivered (attempt=%d)", event, target, attempt)
			return
		}
		if !last.IsRetryable() {
			log.Printf("notify: %s for %s rejected, status=%d", event, target, last.StatusCode)
			break
		}
		log.Printf("notify: %s for %s attempt=%d failed status=%d err=%v",
			event, target, attempt, last.StatusCode, last.Error)
	}

	w.breaker.recordFailure(w.url)
	if w.metrics != nil {
		w.metrics.NotificationOutcome("failed")
	}
	log.Printf("notify: %s for %s failed, status=%d err=%v", event, target, last.StatusCode, last.Error)
}

func (w *Webhook) post(ctx context.Context, body []byte, signature, event, deliveryID string) attemptResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return attemptResult{Error: fmt.Errorf("create request: %w", err), Duration: time.Since(start)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Pagesched-Event", event)
	req.Header.Set("X-Pagesched-Delivery", deliveryID)
	req.Header.Set("X-Pagesched-Signature", signature)

	resp, err := w.client.Do(req)
	if err != nil {
		return attemptResult{Error: fmt.Errorf("send: %w", err), Duration: time.Since(start)}
	}
	defer resp.Body.Close()

	return attemptResult{StatusCode: resp.StatusCode, Duration: time.Since(start)}
}

func computeSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature is for receivers to verify incoming notifications.
func VerifySignature(secret string, body []byte, signature string) bool {
	expected := computeSignature(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}

// classifyStatus maps a result to a bounded-cardinality metrics label.
func classifyStatus(statusCode int, err error) string {
	if err != nil {
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") {
			return "timeout"
		}
		if strings.Contains(msg, "connection refused") ||
			strings.Contains(msg, "no such host") ||
			strings.Contains(msg, "network is unreachable") ||
			strings.Contains(msg, "dial") {
			return "connection_error"
		}
		return "other_error"
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "other_error"
	}
}
