// Package pruner removes concrete events that fell out of the retention
// window and exclusion dates that have fully elapsed. The retention logic is
// pure; the Job around it batches both documents into a single commit when
// both change in the same tick.
package pruner

import (
	"time"

	"github.com/pagesched/pagesched/internal/domain"
)

// PruneEvents returns the events whose datetime is within the retention
// window, oldest cutoff at now-retentionDays. Events with an unparseable
// datetime are kept; pruning never destroys data it cannot interpret.
func PruneEvents(events []domain.Event, now time.Time, retentionDays int, loc *time.Location) (survivors []domain.Event, dropped int) {
	cutoff := now.In(loc).AddDate(0, 0, -retentionDays)

	survivors = make([]domain.Event, 0, len(events))
	for _, ev := range events {
		t := ev.Time(loc)
		if !t.IsZero() && t.Before(cutoff) {
			dropped++
			continue
		}
		survivors = append(survivors, ev)
	}
	return survivors, dropped
}

// PruneExclusions drops every excluded date strictly before today
// ("YYYY-MM-DD", date-only comparison) from each rule. The input slice is
// not modified; changed reports whether any rule lost a date.
func PruneExclusions(rules []domain.Rule, today string) (out []domain.Rule, changed bool, dropped int) {
	out = make([]domain.Rule, len(rules))
	copy(out, rules)

	for i := range out {
		if len(out[i].ExcludedDates) == 0 {
			continue
		}
		kept := make([]string, 0, len(out[i].ExcludedDates))
		for _, d := range out[i].ExcludedDates {
			// ISO dates compare correctly as strings.
			if d < today {
				dropped++
				continue
			}
			kept = append(kept, d)
		}
		if len(kept) != len(out[i].ExcludedDates) {
			changed = true
			if len(kept) == 0 {
				out[i].ExcludedDates = nil
			} else {
				out[i].ExcludedDates = kept
			}
		}
	}
	return out, changed, dropped
}
