// Package poller is the fallback for installations where the push webhook
// cannot reach the daemon. It periodically re-reads the rules document
// revision and triggers a materializer run when it changes.
package poller

import (
	"context"
	"log"
	"time"

	"github.com/pagesched/pagesched/internal/domain"
)

// RevisionSource reports the current revision of the rules document.
type RevisionSource interface {
	RulesRevision(ctx context.Context) (string, error)
}

// Triggerer enqueues a materializer run.
type Triggerer interface {
	TriggerRepeatingEvents(ctx context.Context, source domain.TriggerSource) error
}

// Poller watches the rules revision at a fixed interval.
type Poller struct {
	source   RevisionSource
	trigger  Triggerer
	interval time.Duration

	lastRevision string
}

// New creates a poller. Interval must be positive; the caller disables the
// poller by not running it.
func New(source RevisionSource, trigger Triggerer, interval time.Duration) *Poller {
	return &Poller{
		source:   source,
		trigger:  trigger,
		interval: interval,
	}
}

// Run blocks until ctx is cancelled. The first observation only seeds the
// baseline so a daemon restart does not trigger a spurious run.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	log.Printf("poller: started (interval=%s)", p.interval)
	p.check(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("poller: stopped")
			return
		case <-ticker.C:
			p.check(ctx)
		}
	}
}

func (p *Poller) check(ctx context.Context) {
	revision, err := p.source.RulesRevision(ctx)
	if err != nil {
		log.Printf("poller: read rules revision: %v", err)
		return
	}

	if p.lastRevision == "" {
		p.lastRevision = revision
		return
	}
	if revision == p.lastRevision {
		return
	}

	log.Printf("poller: rules revision changed %s -> %s", p.lastRevision, revision)
	p.lastRevision = revision

	if err := p.trigger.TriggerRepeatingEvents(ctx, domain.TriggerSourcePoller); err != nil {
		log.Printf("poller: trigger failed: %v", err)
	}
}
