package pruner

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/pagesched/pagesched/internal/audit"
	"github.com/pagesched/pagesched/internal/documents"
	"github.com/pagesched/pagesched/internal/domain"
)

// Docs is the slice of the documents layer the cleanup job needs.
type Docs interface {
	Rules(ctx context.Context) (documents.RulesDoc, error)
	Events(ctx context.Context) (documents.EventsDoc, error)
	PutEvents(ctx context.Context, events []domain.Event, revision, message string) (string, error)
	PutRules(ctx context.Context, rules []domain.Rule, revision, message string) (string, error)
	PutBoth(ctx context.Context, rules documents.RulesDoc, events documents.EventsDoc, message string) (string, error)
}

// Tracker registers a committed revision for deployment tracking.
type Tracker interface {
	Track(revision, target string)
}

// MetricsSink records cleanup metrics. Fire-and-forget.
type MetricsSink interface {
	CleanupRunCompleted(duration time.Duration, eventsPruned, exclusionsPruned int, err error)
}

// AnalyticsSink records daily cleanup counters. Best effort.
type AnalyticsSink interface {
	RecordCleanup(ctx context.Context, eventsPruned, exclusionsPruned int)
}

// Job runs the daily retention pass.
type Job struct {
	docs          Docs
	loc           *time.Location
	retentionDays int
	audit         audit.Logger

	tracker     Tracker
	trackTarget string
	metrics     MetricsSink
	analytics   AnalyticsSink

	clock func() time.Time
}

// NewJob creates a cleanup job.
func NewJob(docs Docs, loc *time.Location, retentionDays int, auditLog audit.Logger) *Job {
	return &Job{
		docs:          docs,
		loc:           loc,
		retentionDays: retentionDays,
		audit:         auditLog,
		clock:         time.Now,
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

// Run prunes expired events and elapsed exclusion dates. When both documents
// change they are committed together; a tick that changes nothing commits
// nothing.
func (j *Job) Run(ctx context.Context, source domain.TriggerSource) error {
	start := j.clock()
	eventsPruned, exclusionsPruned, err := j.run(ctx, source, start)
	if j.metrics != nil {
		j.metrics.CleanupRunCompleted(time.Since(start), eventsPruned, exclusionsPruned, err)
	}
	return err
}

func (j *Job) run(ctx context.Context, source domain.TriggerSource, start time.Time) (eventsPruned, exclusionsPruned int, err error) {
	rules, err := j.docs.Rules(ctx)
	if err != nil {
		j.audit.Error(ctx, err, "cleanup: read rules", audit.System)
		return 0, 0, fmt.Errorf("read rules: %w", err)
	}

	events, err := j.docs.Events(ctx)
	if err != nil {
		j.audit.Error(ctx, err, "cleanup: read events", audit.System)
		return 0, 0, fmt.Errorf("read events: %w", err)
	}

	now := start.In(j.loc)
	today := now.Format(domain.DateLayout)

	survivors, eventsPruned := PruneEvents(events.Events, now, j.retentionDays, j.loc)
	prunedRules, rulesChanged, exclusionsPruned := PruneExclusions(rules.Rules, today)

	eventsChanged := eventsPruned > 0
	if !eventsChanged && !rulesChanged {
		log.Printf("cleanup: nothing to prune (source=%s)", source)
		return 0, 0, nil
	}

	message := fmt.Sprintf("Prune %d past events, %d elapsed exclusions", eventsPruned, exclusionsPruned)

	var revision string
	switch {
	case eventsChanged && rulesChanged:
		revision, err = j.docs.PutBoth(ctx,
			documents.RulesDoc{Rules: prunedRules, Revision: rules.Revision},
			documents.EventsDoc{Events: survivors, Revision: events.Revision},
			message)
	case eventsChanged:
		revision, err = j.docs.PutEvents(ctx, survivors, events.Revision, message)
	default:
		revision, err = j.docs.PutRules(ctx, prunedRules, rules.Revision, message)
	}
	if err != nil {
		j.audit.Error(ctx, err, "cleanup: write documents", audit.System)
		return 0, 0, fmt.Errorf("write documents: %w", err)
	}

	log.Printf("cleanup: committed %s (source=%s, revision=%s)", message, source, revision)
	j.audit.Log(ctx, "retention_pruned",
		fmt.Sprintf("source=%s events=%d exclusions=%d revision=%s", source, eventsPruned, exclusionsPruned, revision),
		audit.System)

	if j.tracker != nil {
		j.tracker.Track(revision, j.trackTarget)
	}
	if j.analytics != nil {
		j.analytics.RecordCleanup(ctx, eventsPruned, exclusionsPruned)
	}
	return eventsPruned, exclusionsPruned, nil
}
