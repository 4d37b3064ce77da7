// Package privacy redacts event details according to a calendar's privacy mode.
package privacy

import (
	"github.com/beekhof/calendar-availability/internal/model"
)

// BusyTitle replaces the title of every event redacted under model.BusyOnly.
const BusyTitle = "Busy"

// Apply returns a copy of events with mode applied. model.BusyOnly replaces the
// title with BusyTitle and clears location and notes; any other mode returns
// the events unchanged. The input slice is never modified.
func Apply(events []model.CanonicalEvent, mode model.PrivacyMode) []model.CanonicalEvent {
	if events == nil {
		return nil
	}
	out := make([]model.CanonicalEvent, len(events))
	for i, ev := range events {
		out[i] = redact(ev, mode)
	}
	return out
}

// ApplyPerCalendar applies to each event the mode of the calendar it belongs
// to. Events of calendars missing from modes are redacted as model.BusyOnly.
func ApplyPerCalendar(events []model.CanonicalEvent, modes map[string]model.PrivacyMode) []model.CanonicalEvent {
	if events == nil {
		return nil
	}
	out := make([]model.CanonicalEvent, len(events))
	for i, ev := range events {
		mode, ok := modes[ev.CalendarID]
		if !ok {
			mode = model.BusyOnly
		}
		out[i] = redact(ev, mode)
	}
	return out
}

func redact(ev model.CanonicalEvent, mode model.PrivacyMode) model.CanonicalEvent {
	if mode != model.BusyOnly {
		return ev
	}
	ev.Title = BusyTitle
	ev.Location = ""
	ev.Notes = ""
	return ev
}
