package calendar

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/beekhof/calendar-availability/internal/model"
	"github.com/beekhof/calendar-availability/internal/recurrence"
)

// seriesEvent is one VEVENT as read from an iCalendar source, before
// recurrence expansion. RecurrenceID is set on overrides of a single instance.
type seriesEvent struct {
	UID          string
	Title        string
	Location     string
	Notes        string
	Start        time.Time
	End          time.Time
	AllDay       bool
	Rule         string
	ExDates      []time.Time
	RecurrenceID *time.Time
}

// expandSeries turns the VEVENTs of one calendar into the occurrences that
// overlap [windowStart, windowEnd], applying EXDATEs and instance overrides.
func expandSeries(ctx context.Context, calendarID string, events []seriesEvent, windowStart, windowEnd time.Time, logger *slog.Logger) []model.RawOccurrence {
	overrides := make(map[string]map[int64]seriesEvent)
	var masters []seriesEvent
	for _, ev := range events {
		if ev.RecurrenceID == nil {
			masters = append(masters, ev)
			continue
		}
		if overrides[ev.UID] == nil {
			overrides[ev.UID] = make(map[int64]seriesEvent)
		}
		overrides[ev.UID][ev.RecurrenceID.Unix()] = ev
	}

	var out []model.RawOccurrence
	for _, master := range masters {
		if master.Rule == "" {
			if overlaps(master.Start, master.End, windowStart, windowEnd) {
				out = append(out, occurrenceOf(calendarID, master, master.Start, master.End, nil))
			}
			continue
		}

		desc, err := recurrence.ParseDescriptor(master.Rule)
		if err != nil {
			level := slog.LevelWarn
			if errors.Is(err, recurrence.ErrAmbiguous) {
				level = slog.LevelDebug
			}
			logger.Log(ctx, level, "ignoring recurrence rule", "uid", master.UID, "error", err)
		}
		desc = boundDescriptor(ctx, desc, master.Start, master.UID, logger)

		length := master.End.Sub(master.Start)
		starts, err := recurrence.Occurrences(master.Rule, master.Start, windowStart.Add(-length), windowEnd, 0)
		if err != nil {
			logger.Warn("failed to expand recurring event, using first instance", "uid", master.UID, "error", err)
			starts = []time.Time{master.Start}
		}

		excluded := make(map[int64]bool, len(master.ExDates))
		for _, ex := range master.ExDates {
			excluded[ex.Unix()] = true
		}

		for _, s := range starts {
			if excluded[s.Unix()] {
				continue
			}
			instance, end := master, s.Add(length)
			key := s.Unix()
			if o, ok := overrides[master.UID][key]; ok {
				instance, s, end = o, o.Start, o.End
				delete(overrides[master.UID], key)
			}
			if overlaps(s, end, windowStart, windowEnd) {
				out = append(out, occurrenceOf(calendarID, instance, s, end, desc))
			}
		}

		// Overrides that moved an instance into the window from outside it.
		for _, o := range overrides[master.UID] {
			if !excluded[o.RecurrenceID.Unix()] && overlaps(o.Start, o.End, windowStart, windowEnd) {
				out = append(out, occurrenceOf(calendarID, o, o.Start, o.End, desc))
			}
		}
	}
	return out
}

func occurrenceOf(calendarID string, ev seriesEvent, start, end time.Time, desc *model.RecurrenceDescriptor) model.RawOccurrence {
	return model.RawOccurrence{
		SourceEventID: ev.UID,
		CalendarID:    calendarID,
		Title:         ev.Title,
		Start:         start,
		End:           end,
		IsAllDay:      ev.AllDay,
		Location:      ev.Location,
		Notes:         ev.Notes,
		Recurrence:    desc,
	}
}

// overlaps reports whether [start, end] intersects the window. Zero-length
// events count when they fall inside it.
func overlaps(start, end, windowStart, windowEnd time.Time) bool {
	if end.Equal(start) {
		return !start.Before(windowStart) && start.Before(windowEnd)
	}
	return start.Before(windowEnd) && end.After(windowStart)
}

// boundDescriptor replaces a COUNT limit with the UNTIL it implies for a
// series starting at start, so the rule stays right once consumers anchor it
// at a later occurrence. A rule that cannot be bounded is dropped.
func boundDescriptor(ctx context.Context, desc *model.RecurrenceDescriptor, start time.Time, id string, logger *slog.Logger) *model.RecurrenceDescriptor {
	if !countBounded(desc) {
		return desc
	}
	rule, ok := recurrence.Translate(desc).Get()
	if !ok {
		return desc
	}
	bounded, err := recurrence.BoundCount(rule, start)
	if err != nil {
		logger.Log(ctx, slog.LevelWarn, "ignoring unbounded recurrence rule", "id", id, "error", err)
		return nil
	}
	return &model.RecurrenceDescriptor{Rule: bounded}
}

// countBounded reports whether desc ends after a number of occurrences.
func countBounded(desc *model.RecurrenceDescriptor) bool {
	if desc == nil {
		return false
	}
	if desc.Rule != "" {
		return strings.Contains(strings.ToUpper(desc.Rule), "COUNT=")
	}
	return desc.OccurrenceCount != nil
}
