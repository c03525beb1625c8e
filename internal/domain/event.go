package domain

import (
	"sort"
	"time"
)

// DatetimeLayout is the wire format of Event.Datetime: a local ISO-8601
// timestamp at second precision with no timezone suffix, interpreted in the
// site's reference timezone.
const DatetimeLayout = "2006-01-02T15:04:05"

// DateLayout is the wire format of calendar dates (excluded dates, pruning).
const DateLayout = "2006-01-02"

// Event is one concrete occurrence. The pair (LocationID, Datetime) is
// unique within the events document.
type Event struct {
	LocationID string `json:"locationId"`
	Datetime   string `json:"datetime"`
	About      string `json:"about,omitempty"`
}

// Key identifies an event within the events document.
func (e Event) Key() string {
	return e.LocationID + "|" + e.Datetime
}

// Date returns the calendar-date part of the event's datetime.
func (e Event) Date() string {
	if len(e.Datetime) < len(DateLayout) {
		return e.Datetime
	}
	return e.Datetime[:len(DateLayout)]
}

// Time parses the event's datetime in loc. Returns the zero time if the
// datetime is malformed.
func (e Event) Time(loc *time.Location) time.Time {
	t, err := time.ParseInLocation(DatetimeLayout, e.Datetime, loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SortEvents orders events ascending by datetime, then by location for a
// stable document layout.
func SortEvents(events []Event) {
	sort.Slice(events, func(i, j int) bool {
		if events[i].Datetime != events[j].Datetime {
			return events[i].Datetime < events[j].Datetime
		}
		return events[i].LocationID < events[j].LocationID
	})
}
