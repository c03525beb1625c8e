package materializer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pagesched/pagesched/internal/audit"
	"github.com/pagesched/pagesched/internal/documents"
	"github.com/pagesched/pagesched/internal/domain"
)

// Docs is the slice of the documents layer the job needs.
type Docs interface {
	Rules(ctx context.Context) (documents.RulesDoc, error)
	Events(ctx context.Context) (documents.EventsDoc, error)
	PutEvents(ctx context.Context, events []domain.Event, revision, message string) (string, error)
}

// Tracker registers a committed revision for deployment tracking.
type Tracker interface {
	Track(revision, target string)
}

// MetricsSink records materializer metrics. Fire-and-forget.
type MetricsSink interface {
	MaterializeRunCompleted(duration time.Duration, added, removed int, err error)
}

// AnalyticsSink records daily materialization counters. Best effort.
type AnalyticsSink interface {
	RecordMaterialization(ctx context.Context, added, removed int)
}

// Job runs one materialization pass against the site documents.
type Job struct {
	docs        Docs
	loc         *time.Location
	advanceDays int
	audit       audit.Logger

	// Optional collaborators; nil disables each.
	tracker     Tracker
	trackTarget string
	metrics     MetricsSink
	analytics   AnalyticsSink

	clock func() time.Time
}

// NewJob creates a materializer job.
func NewJob(docs Docs, loc *time.Location, advanceDays int, auditLog audit.Logger) *Job {
	return &Job{
		docs:        docs,
		loc:         loc,
		advanceDays: advanceDays,
		audit:       auditLog,
		clock:       time.Now,
	}
}

// WithTracker makes the job register successful commits for deployment
// tracking, notifying target.
func (j *Job) WithTracker(tracker Tracker, target string) *Job {
	j.tracker = tracker
	j.trackTarget = target
	return j
}

// WithMetrics attaches a metrics sink.
func (j *Job) WithMetrics(sink MetricsSink) *Job {
	j.metrics = sink
	return j
}

// WithAnalytics attaches an analytics sink.
func (j *Job) WithAnalytics(sink AnalyticsSink) *Job {
	j.analytics = sink
	return j
}

// Run performs one read-diff-write pass. Store errors abort the run with no
// partial write; per-rule failures are logged and skipped.
func (j *Job) Run(ctx context.Context, source domain.TriggerSource) error {
	start := j.clock()
	err := j.run(ctx, source, start)
	if j.metrics != nil && err != nil {
		j.metrics.MaterializeRunCompleted(time.Since(start), 0, 0, err)
	}
	return err
}

func (j *Job) run(ctx context.Context, source domain.TriggerSource, start time.Time) error {
	rules, err := j.docs.Rules(ctx)
	if err != nil {
		j.audit.Error(ctx, err, "materialize: read rules", audit.System)
		return fmt.Errorf("read rules: %w", err)
	}

	events, err := j.docs.Events(ctx)
	if err != nil {
		j.audit.Error(ctx, err, "materialize: read events", audit.System)
		return fmt.Errorf("read events: %w", err)
	}

	now := start.In(j.loc)
	cs, ruleErrs := Materialize(rules.Rules, events.Events, now, j.advanceDays, j.loc)
	for _, re := range ruleErrs {
		log.Printf("materializer: skipping rule: %v", re)
		j.audit.Error(ctx, re, "materialize: rule skipped", audit.System)
	}

	if cs.Empty() {
		log.Printf("materializer: no changes (source=%s, rules=%d, events=%d)", source, len(rules.Rules), len(events.Events))
		if j.metrics != nil {
			j.metrics.MaterializeRunCompleted(time.Since(start), 0, 0, nil)
		}
		return nil
	}

	merged := cs.Apply(events.Events)
	message := fmt.Sprintf("Materialize repeating events (+%d/-%d)", len(cs.ToAdd), len(cs.ToRemove))

	revision, err := j.docs.PutEvents(ctx, merged, events.Revision, message)
	if err != nil {
		j.audit.Error(ctx, err, "materialize: write events", audit.System)
		return fmt.Errorf("write events: %w", err)
	}

	log.Printf("materializer: committed %s (source=%s, added=%d, removed=%d, revision=%s)",
		message, source, len(cs.ToAdd), len(cs.ToRemove), revision)
	j.audit.Log(ctx, "repeating_events_materialized",
		fmt.Sprintf("source=%s added=%d removed=%d revision=%s", source, len(cs.ToAdd), len(cs.ToRemove), revision),
		audit.System)

	if j.metrics != nil {
		j.metrics.MaterializeRunCompleted(time.Since(start), len(cs.ToAdd), len(cs.ToRemove), nil)
	}
	if j.analytics != nil {
		j.analytics.RecordMaterialization(ctx, len(cs.ToAdd), len(cs.ToRemove))
	}
	if j.tracker != nil {
		j.tracker.Track(revision, j.trackTarget)
	}
	return nil
}
