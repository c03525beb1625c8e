package api

import (
	"github.com/pagesched/pagesched/internal/deploytrack"
	"github.com/pagesched/pagesched/internal/scheduler"
)

// HealthResponse represents the /health endpoint response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// StatusResponse represents the /status endpoint response.
type StatusResponse struct {
	Scheduler   scheduler.Status               `json:"scheduler"`
	Deployments []deploytrack.DeploymentStatus `json:"deployments"`
}

// DeploymentsResponse represents the /deployments endpoint response.
type DeploymentsResponse struct {
	Deployments []deploytrack.DeploymentStatus `json:"deployments"`
}

// TriggerResponse represents a manual trigger acknowledgement.
type TriggerResponse struct {
	Status string `json:"status"`
	Job    string `json:"job"`
}

// HookResponse represents the webhook acknowledgement.
type HookResponse struct {
	Status string `json:"status"`
	Ref    string `json:"ref,omitempty"`
}

// ErrorResponse represents an error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// pushEvent is the slice of GitHub's push payload the webhook needs.
type pushEvent struct {
	Ref   string `json:"ref"`
	After string `json:"after"`
}
