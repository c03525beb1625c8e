// Package materializer expands recurrence rules into concrete events over an
// advance window and commits the diff against the events document.
//
// The diff itself (Materialize) is pure; the Job around it does the store
// round-trip. A run either commits the whole changeset in one write or
// nothing at all — on any store error the run is abandoned and the next
// scheduled tick retries naturally.
package materializer

import (
	"fmt"
	"time"

	"github.com/pagesched/pagesched/internal/domain"
	"github.com/pagesched/pagesched/internal/recurrence"
)

// RuleError reports a rule that could not be processed. Rules fail
// individually: one malformed rule never aborts the rest of the batch.
type RuleError struct {
	Rule string
	Err  error
}

func (e RuleError) Error() string {
	return fmt.Sprintf("rule %q: %v", e.Rule, e.Err)
}

// Materialize computes the changeset that brings existing in line with the
// enabled rules over the window (now, now+advanceDays].
//
// Retraction precedes expansion: a concrete event whose location matches a
// rule and whose calendar date is excluded is removed even if it was
// materialized before the exclusion was added. Running Materialize again
// over the applied result yields an empty changeset.
func Materialize(rules []domain.Rule, existing []domain.Event, now time.Time, advanceDays int, loc *time.Location) (domain.Changeset, []RuleError) {
	windowEnd := now.AddDate(0, 0, advanceDays)

	existingKeys := make(map[string]struct{}, len(existing))
	for _, ev := range existing {
		existingKeys[ev.Key()] = struct{}{}
	}

	var (
		cs      domain.Changeset
		errs    []RuleError
		removed = make(map[string]struct{})
		added   = make(map[string]struct{})
	)

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}

		excluded := rule.ExcludedDateSet()

		// Retraction pass.
		for _, ev := range existing {
			if ev.LocationID != rule.LocationID {
				continue
			}
			if _, ok := excluded[ev.Date()]; !ok {
				continue
			}
			if _, dup := removed[ev.Key()]; dup {
				continue
			}
			removed[ev.Key()] = struct{}{}
			cs.ToRemove = append(cs.ToRemove, ev)
		}

		// Expansion pass.
		occurrences, err := recurrence.Expand(now, windowEnd, rule.Weekday, rule.Time, loc)
		if err != nil {
			errs = append(errs, RuleError{Rule: rule.Name, Err: err})
			continue
		}

		for _, occ := range occurrences {
			if _, ok := excluded[occ.Format(domain.DateLayout)]; ok {
				continue
			}
			ev := domain.Event{
				LocationID: rule.LocationID,
				Datetime:   occ.Format(domain.DatetimeLayout),
				About:      rule.About,
			}
			if _, ok := existingKeys[ev.Key()]; ok {
				continue
			}
			if _, dup := added[ev.Key()]; dup {
				continue
			}
			added[ev.Key()] = struct{}{}
			cs.ToAdd = append(cs.ToAdd, ev)
		}
	}

	domain.SortEvents(cs.ToAdd)
	domain.SortEvents(cs.ToRemove)
	return cs, errs
}
