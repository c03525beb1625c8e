// Package audit records operator-visible actions. Logging is fire and
// forget: a sink failure is itself logged but never propagated, so an audit
// problem can never abort the operation being audited.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// Actor identifies who caused an action. Platform distinguishes the surface
// the action came from (scheduler, webhook, api, telegram, discord).
type Actor struct {
	ID       string
	Name     string
	Platform string
}

// System is the actor attached to runs the daemon starts on its own.
var System = Actor{ID: "system", Name: "pagesched", Platform: "scheduler"}

// Entry is one audit record.
type Entry struct {
	ID      uuid.UUID
	At      time.Time
	Action  string
	Details string
	Actor   Actor
}

// Logger is the audit contract consumed by the jobs.
type Logger interface {
	Log(ctx context.Context, action, details string, actor Actor)
	Error(ctx context.Context, err error, context string, actor Actor)
}

// LogSink writes audit entries to the process log.
type LogSink struct{}

// NewLogSink returns a sink backed by the standard logger.
func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Log(ctx context.Context, action, details string, actor Actor) {
	log.Printf("audit: action=%s actor=%s/%s details=%q", action, actor.Platform, actor.ID, details)
}

func (s *LogSink) Error(ctx context.Context, err error, context string, actor Actor) {
	log.Printf("audit: error context=%q actor=%s/%s err=%v", context, actor.Platform, actor.ID, err)
}

// Multi fans entries out to several sinks.
type Multi []Logger

func (m Multi) Log(ctx context.Context, action, details string, actor Actor) {
	for _, l := range m {
		l.Log(ctx, action, details, actor)
	}
}

func (m Multi) Error(ctx context.Context, err error, context string, actor Actor) {
	for _, l := range m {
		l.Error(ctx, err, context, actor)
	}
}
