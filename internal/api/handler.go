// Package api is the daemon's HTTP surface: health and status, manual
// triggers, the GitHub push webhook and the ICS export.
package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/pagesched/pagesched/internal/deploytrack"
	"github.com/pagesched/pagesched/internal/documents"
	"github.com/pagesched/pagesched/internal/domain"
	"github.com/pagesched/pagesched/internal/scheduler"
)

// Runtime is the scheduler surface the API needs.
type Runtime interface {
	Status() scheduler.Status
	TriggerCleanup(ctx context.Context, source domain.TriggerSource) error
	TriggerRepeatingEvents(ctx context.Context, source domain.TriggerSource) error
}

// DeploymentTracker reports in-flight deployments.
type DeploymentTracker interface {
	Status() []deploytrack.DeploymentStatus
}

// EventsSource reads the concrete events document for the ICS export.
type EventsSource interface {
	Events(ctx context.Context) (documents.EventsDoc, error)
}

// HealthChecker provides database health status for verbose /health responses.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	runtime Runtime
	tracker DeploymentTracker
	events  EventsSource
	loc     *time.Location

	// branch filters push webhooks; secret signs them.
	branch        string
	webhookSecret string

	db HealthChecker
}

func NewHandler(runtime Runtime, tracker DeploymentTracker, events EventsSource, branch string, loc *time.Location) *Handler {
	return &Handler{
		runtime: runtime,
		tracker: tracker,
		events:  events,
		branch:  branch,
		loc:     loc,
	}
}

// WithWebhookSecret enables the GitHub push webhook endpoint.
func (h *Handler) WithWebhookSecret(secret string) *Handler {
	h.webhookSecret = secret
	return h
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/status" && r.Method == http.MethodGet:
		h.status(w, r)

	case path == "/triggers/cleanup" && r.Method == http.MethodPost:
		h.trigger(w, r, domain.JobCleanup)

	case path == "/triggers/repeating-events" && r.Method == http.MethodPost:
		h.trigger(w, r, domain.JobRepeatingEvents)

	case path == "/deployments" && r.Method == http.MethodGet:
		h.deployments(w, r)

	case path == "/hooks/github" && r.Method == http.MethodPost:
		h.githubHook(w, r)

	case path == "/events.ics" && r.Method == http.MethodGet:
		h.eventsICS(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	if !verbose || h.db == nil {
		writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		return
	}

	resp := HealthResponse{
		Status:     "ok",
		Components: make(map[string]string),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Components["database"] = "unhealthy: " + err.Error()
	} else {
		resp.Components["database"] = "healthy"
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Scheduler:   h.runtime.Status(),
		Deployments: h.tracker.Status(),
	})
}

func (h *Handler) deployments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, DeploymentsResponse{Deployments: h.tracker.Status()})
}

func (h *Handler) trigger(w http.ResponseWriter, r *http.Request, job domain.JobName) {
	var err error
	switch job {
	case domain.JobCleanup:
		err = h.runtime.TriggerCleanup(r.Context(), domain.TriggerSourceManual)
	default:
		err = h.runtime.TriggerRepeatingEvents(r.Context(), domain.TriggerSourceManual)
	}
	if err != nil {
		log.Printf("api: trigger %s: %v", job, err)
		writeError(w, http.StatusServiceUnavailable, "trigger not accepted")
		return
	}
	writeJSON(w, http.StatusAccepted, TriggerResponse{Status: "queued", Job: string(job)})
}

// maxHookBodySize bounds webhook payloads (1MB).
const maxHookBodySize = 1 << 20

func (h *Handler) githubHook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret == "" {
		writeError(w, http.StatusNotFound, "webhook not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxHookBodySize))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	if !verifyHookSignature(h.webhookSecret, body, r.Header.Get("X-Hub-Signature-256")) {
		writeError(w, http.StatusUnauthorized, "signature mismatch")
		return
	}

	if r.Header.Get("X-GitHub-Event") == "ping" {
		writeJSON(w, http.StatusOK, HookResponse{Status: "pong"})
		return
	}

	var push pushEvent
	if err := json.Unmarshal(body, &push); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if push.Ref != "refs/heads/"+h.branch {
		writeJSON(w, http.StatusOK, HookResponse{Status: "ignored", Ref: push.Ref})
		return
	}

	if err := h.runtime.TriggerRepeatingEvents(r.Context(), domain.TriggerSourceWebhook); err != nil {
		log.Printf("api: webhook trigger: %v", err)
		writeError(w, http.StatusServiceUnavailable, "trigger not accepted")
		return
	}
	writeJSON(w, http.StatusAccepted, HookResponse{Status: "queued", Ref: push.Ref})
}

// verifyHookSignature checks GitHub's X-Hub-Signature-256 header
// ("sha256=<hex>") over the raw body.
func verifyHookSignature(secret string, body []byte, header string) bool {
	const prefix = "sha256="
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header[len(prefix):]))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}
