package domain

// Changeset is the diff produced by one materialization pass.
type Changeset struct {
	ToAdd    []Event
	ToRemove []Event
}

// Empty reports whether applying the changeset would be a no-op.
func (c Changeset) Empty() bool {
	return len(c.ToAdd) == 0 && len(c.ToRemove) == 0
}

// Apply merges the changeset into events and returns the new sorted list.
// The input slice is not modified.
func (c Changeset) Apply(events []Event) []Event {
	if c.Empty() {
		out := make([]Event, len(events))
		copy(out, events)
		SortEvents(out)
		return out
	}

	removed := make(map[string]struct{}, len(c.ToRemove))
	for _, e := range c.ToRemove {
		removed[e.Key()] = struct{}{}
	}

	out := make([]Event, 0, len(events)+len(c.ToAdd))
	for _, e := range events {
		if _, drop := removed[e.Key()]; drop {
			continue
		}
		out = append(out, e)
	}
	out = append(out, c.ToAdd...)
	SortEvents(out)
	return out
}
