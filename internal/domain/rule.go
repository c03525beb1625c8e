package domain

// Rule is a weekly recurring-event template. Rules are authored by the
// operator bots; the daemon only reads them, except that the cleanup job may
// drop elapsed entries from ExcludedDates.
type Rule struct {
	Name       string `json:"name"`
	LocationID string `json:"locationId"`

	// Weekday is 0-6 with 0 = Sunday.
	Weekday int `json:"weekday"`

	// Time is the local time of day, "HH:MM:SS", in the site's reference
	// timezone.
	Time string `json:"time"`

	Enabled bool `json:"enabled"`

	// ExcludedDates lists calendar dates ("YYYY-MM-DD") on which no
	// occurrence may exist. An excluded date also retracts occurrences that
	// were materialized before the exclusion was added.
	ExcludedDates []string `json:"excludedDates,omitempty"`

	About string `json:"about,omitempty"`
}

// ExcludedDateSet returns the rule's excluded dates as a set.
func (r Rule) ExcludedDateSet() map[string]struct{} {
	if len(r.ExcludedDates) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(r.ExcludedDates))
	for _, d := range r.ExcludedDates {
		set[d] = struct{}{}
	}
	return set
}
