// Package deploytrack follows commits from the moment they are pushed until
// the Pages deployment that contains them is observed live, then fires a
// single success or timeout notification per commit.
//
// One shared poll loop serves all in-flight records. The loop exits when the
// last record resolves and is restarted by the next Track call, so an idle
// daemon polls nothing.
package deploytrack

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pagesched/pagesched/internal/audit"
)

// Oracle answers whether a revision is visible on the live site.
type Oracle interface {
	IsRevisionLive(ctx context.Context, revision string) (bool, error)
}

// Notifier receives the terminal outcome for a tracked revision. Called at
// most once per record.
type Notifier interface {
	Success(ctx context.Context, target string, elapsed time.Duration)
	Timeout(ctx context.Context, target string, elapsed time.Duration)
}

// MetricsSink records tracker activity. Fire-and-forget.
type MetricsSink interface {
	DeploymentTracked()
	DeploymentPollCompleted(err error)
	DeploymentResolved(outcome string, elapsed time.Duration)
}

// AnalyticsSink records daily deployment outcome counters. Best effort.
type AnalyticsSink interface {
	RecordDeployment(ctx context.Context, outcome string)
}

// Config holds the poll cadence and the give-up threshold.
type Config struct {
	// PollInterval is the shared loop's tick. Default 15s.
	PollInterval time.Duration

	// MaxWait is the age past which a record times out. Default 5m.
	MaxWait time.Duration

	// MinCheckGap rate-limits oracle calls per record. Default 10s.
	MinCheckGap time.Duration
}

// DefaultConfig returns the default tracker configuration.
func DefaultConfig() Config {
	return Config{
		PollInterval: 15 * time.Second,
		MaxWait:      5 * time.Minute,
		MinCheckGap:  10 * time.Second,
	}
}

type record struct {
	ID            uuid.UUID
	Revision      string
	Target        string
	StartedAt     time.Time
	LastCheckedAt time.Time
}

// DeploymentStatus is one in-flight record for the status endpoint.
type DeploymentStatus struct {
	Revision       string `json:"revision"`
	ElapsedSeconds int    `json:"elapsedSeconds"`
}

// Tracker owns the record table and the shared poll loop.
type Tracker struct {
	config    Config
	oracle    Oracle
	notifier  Notifier
	audit     audit.Logger
	metrics   MetricsSink
	analytics AnalyticsSink

	ctx    context.Context
	cancel context.CancelFunc
	clock  func() time.Time

	mu      sync.Mutex
	records map[uuid.UUID]*record
	running bool
}

// New creates a stopped tracker. The poll loop starts with the first Track.
func New(config Config, oracle Oracle, notifier Notifier, auditLog audit.Logger) *Tracker {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.MaxWait <= 0 {
		config.MaxWait = DefaultConfig().MaxWait
	}
	if config.MinCheckGap <= 0 {
		config.MinCheckGap = DefaultConfig().MinCheckGap
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Tracker{
		config:   config,
		oracle:   oracle,
		notifier: notifier,
		audit:    auditLog,
		ctx:      ctx,
		cancel:   cancel,
		clock:    time.Now,
		records:  make(map[uuid.UUID]*record),
	}
}

// WithMetrics attaches a metrics sink.
func (t *Tracker) WithMetrics(sink MetricsSink) *Tracker {
	t.metrics = sink
	return t
}

// WithAnalytics attaches an analytics sink.
func (t *Tracker) WithAnalytics(sink AnalyticsSink) *Tracker {
	t.analytics = sink
	return t
}

// Track registers a committed revision and ensures the poll loop is running.
func (t *Tracker) Track(revision, target string) {
	rec := &record{
		ID:        uuid.New(),
		Revision:  revision,
		Target:    target,
		StartedAt: t.clock(),
	}

	t.mu.Lock()
	t.records[rec.ID] = rec
	startLoop := !t.running
	if startLoop {
		t.running = true
	}
	t.mu.Unlock()

	if t.metrics != nil {
		t.metrics.DeploymentTracked()
	}
	log.Printf("deploytrack: tracking revision=%s target=%s", revision, target)

	if startLoop {
		go t.loop()
	}
}

// Close stops the poll loop permanently. Pending records are abandoned
// without notification; on restart the site is simply re-read.
func (t *Tracker) Close() {
	t.cancel()
}

// Status reports in-flight records, oldest first.
func (t *Tracker) Status() []DeploymentStatus {
	now := t.clock()

	t.mu.Lock()
	recs := make([]*record, 0, len(t.records))
	for _, rec := range t.records {
		recs = append(recs, rec)
	}
	t.mu.Unlock()

	sort.Slice(recs, func(i, j int) bool { return recs[i].StartedAt.Before(recs[j].StartedAt) })

	out := make([]DeploymentStatus, len(recs))
	for i, rec := range recs {
		out[i] = DeploymentStatus{
			Revision:       rec.Revision,
			ElapsedSeconds: int(now.Sub(rec.StartedAt).Seconds()),
		}
	}
	return out
}

func (t *Tracker) loop() {
	ticker := time.NewTicker(t.config.PollInterval)
	defer ticker.Stop()

	log.Printf("deploytrack: poll loop started (interval=%s, max_wait=%s)",
		t.config.PollInterval, t.config.MaxWait)

	for {
		select {
		case <-t.ctx.Done():
			t.mu.Lock()
			t.running = false
			t.mu.Unlock()
			log.Println("deploytrack: poll loop stopped")
			return
		case <-ticker.C:
			t.pollOnce(t.ctx)

			t.mu.Lock()
			idle := len(t.records) == 0
			if idle {
				t.running = false
			}
			t.mu.Unlock()
			if idle {
				log.Println("deploytrack: all deployments resolved, poll loop idle")
				return
			}
		}
	}
}

// pollOnce checks every record once: timeout first, then the rate limit,
// then the oracle. Oracle errors leave the record for the next pass.
func (t *Tracker) pollOnce(ctx context.Context) {
	now := t.clock()

	t.mu.Lock()
	recs := make([]*record, 0, len(t.records))
	for _, rec := range t.records {
		recs = append(recs, rec)
	}
	t.mu.Unlock()

	for _, rec := range recs {
		elapsed := now.Sub(rec.StartedAt)

		if elapsed > t.config.MaxWait {
			if !t.remove(rec.ID) {
				continue
			}
			log.Printf("deploytrack: revision=%s timed out after %s", rec.Revision, elapsed.Round(time.Second))
			t.audit.Error(ctx, fmt.Errorf("deployment not live after %s", elapsed.Round(time.Second)),
				"deploytrack: revision "+rec.Revision, audit.System)
			if t.metrics != nil {
				t.metrics.DeploymentResolved("timeout", elapsed)
			}
			if t.analytics != nil {
				t.analytics.RecordDeployment(ctx, "timeout")
			}
			t.notifier.Timeout(ctx, rec.Target, elapsed)
			continue
		}

		t.mu.Lock()
		recentlyChecked := !rec.LastCheckedAt.IsZero() && now.Sub(rec.LastCheckedAt) < t.config.MinCheckGap
		if !recentlyChecked {
			rec.LastCheckedAt = now
		}
		t.mu.Unlock()
		if recentlyChecked {
			continue
		}

		live, err := t.oracle.IsRevisionLive(ctx, rec.Revision)
		if t.metrics != nil {
			t.metrics.DeploymentPollCompleted(err)
		}
		if err != nil {
			log.Printf("deploytrack: liveness check for revision=%s failed: %v", rec.Revision, err)
			continue
		}
		if !live {
			continue
		}

		if !t.remove(rec.ID) {
			continue
		}
		log.Printf("deploytrack: revision=%s live after %s", rec.Revision, elapsed.Round(time.Second))
		t.audit.Log(ctx, "deployment_live",
			fmt.Sprintf("revision=%s elapsed=%s", rec.Revision, elapsed.Round(time.Second)), audit.System)
		if t.metrics != nil {
			t.metrics.DeploymentResolved("success", elapsed)
		}
		if t.analytics != nil {
			t.analytics.RecordDeployment(ctx, "success")
		}
		t.notifier.Success(ctx, rec.Target, elapsed)
	}
}

// remove deletes a record and reports whether this call was the one that
// removed it. Notifications ride on a true return, so each record resolves
// at most once.
func (t *Tracker) remove(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.records[id]; !ok {
		return false
	}
	delete(t.records, id)
	return true
}
