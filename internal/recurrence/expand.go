// Package recurrence computes the concrete occurrences of a weekly
// recurrence inside a date window. Pure functions, no I/O.
package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"
)

// rruleWeekdays maps the site's weekday numbering (0 = Sunday) onto RRULE
// weekdays.
var rruleWeekdays = [7]rrule.Weekday{
	rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA,
}

// ParseTimeOfDay parses an "HH:MM:SS" local time of day.
func ParseTimeOfDay(s string) (hour, min, sec int, err error) {
	var h, m, sc int
	if _, err := fmt.Sscanf(s, "%2d:%2d:%2d", &h, &m, &sc); err != nil {
		return 0, 0, 0, fmt.Errorf("invalid time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sc < 0 || sc > 59 {
		return 0, 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	return h, m, sc, nil
}

// Expand returns every occurrence of weekday@timeOfDay strictly after
// windowStart and at or before windowEnd, in loc. Results are strictly
// increasing with 7-day spacing. An occurrence exactly at windowStart is
// excluded, so a rule whose slot has already passed today first fires next
// week.
func Expand(windowStart, windowEnd time.Time, weekday int, timeOfDay string, loc *time.Location) ([]time.Time, error) {
	if weekday < 0 || weekday > 6 {
		return nil, fmt.Errorf("invalid weekday %d", weekday)
	}
	hour, min, sec, err := ParseTimeOfDay(timeOfDay)
	if err != nil {
		return nil, err
	}
	if windowEnd.Before(windowStart) {
		return nil, fmt.Errorf("window end %s before start %s", windowEnd, windowStart)
	}

	start := windowStart.In(loc)
	end := windowEnd.In(loc)

	// Anchor the rule a week before the window so the first in-window
	// occurrence is never skipped when the window starts on the target
	// weekday.
	anchor := time.Date(start.Year(), start.Month(), start.Day(), hour, min, sec, 0, loc).AddDate(0, 0, -7)

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   anchor,
		Byweekday: []rrule.Weekday{rruleWeekdays[weekday]},
	})
	if err != nil {
		return nil, fmt.Errorf("build recurrence: %w", err)
	}

	occurrences := r.Between(start, end, true)

	out := make([]time.Time, 0, len(occurrences))
	for _, t := range occurrences {
		if !t.After(start) {
			continue
		}
		out = append(out, t.In(loc))
	}
	return out, nil
}
