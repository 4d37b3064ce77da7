package availability

import (
	"time"

	"github.com/beekhof/calendar-availability/internal/model"
	"github.com/beekhof/calendar-availability/internal/recurrence"
)

// BusyIntervals returns the time occupied by events inside
// [windowStart, windowEnd]. Recurring events are expanded into one interval
// per occurrence; an event whose rule cannot be expanded counts only its first
// instance. Intervals are clipped to the window and are not merged.
func BusyIntervals(events []model.CanonicalEvent, windowStart, windowEnd time.Time) []model.Interval {
	var busy []model.Interval
	add := func(start, end time.Time) {
		if iv, ok := clip(model.Interval{Start: start, End: end}, windowStart, windowEnd); ok {
			busy = append(busy, iv)
		}
	}

	for _, ev := range events {
		length := ev.End.Sub(ev.Start)
		if !ev.IsRecurring() {
			add(ev.Start, ev.End)
			continue
		}

		// Start the expansion early enough to catch an occurrence that began
		// before the window but is still running when it opens.
		starts, err := recurrence.Occurrences(ev.RecurrenceRule, ev.Start, windowStart.Add(-length), windowEnd, 0)
		if err != nil {
			add(ev.Start, ev.End)
			continue
		}
		for _, s := range starts {
			add(s, s.Add(length))
		}
	}
	return busy
}
