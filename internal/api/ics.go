package api

import (
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
)

// eventDuration is assumed for calendar entries; the events document only
// carries a start time.
const eventDuration = 2 * time.Hour

func (h *Handler) eventsICS(w http.ResponseWriter, r *http.Request) {
	doc, err := h.events.Events(r.Context())
	if err != nil {
		log.Printf("api: read events for ics: %v", err)
		writeError(w, http.StatusBadGateway, "events unavailable")
		return
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId("-//pagesched//events//EN")

	now := time.Now().UTC()
	for _, ev := range doc.Events {
		start := ev.Time(h.loc)
		if start.IsZero() {
			log.Printf("api: skipping event with malformed datetime %q in ics export", ev.Datetime)
			continue
		}

		entry := cal.AddEvent(icsUID(ev.LocationID, ev.Datetime))
		entry.SetDtStampTime(now)
		entry.SetStartAt(start)
		entry.SetEndAt(start.Add(eventDuration))
		entry.SetLocation(ev.LocationID)
		if ev.About != "" {
			entry.SetSummary(ev.About)
		} else {
			entry.SetSummary(ev.LocationID)
		}
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(cal.Serialize())); err != nil {
		log.Printf("api: write ics: %v", err)
	}
}

func icsUID(locationID, datetime string) string {
	cleaned := strings.NewReplacer(":", "", "|", "-").Replace(datetime)
	return fmt.Sprintf("%s-%s@pagesched", locationID, cleaned)
}
