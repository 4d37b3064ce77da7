// Package occurrence collapses the per-instance events reported by calendar
// providers into one canonical event per series.
package occurrence

import (
	"log/slog"
	"slices"
	"time"

	"github.com/samber/mo"

	"github.com/beekhof/calendar-availability/internal/model"
	"github.com/beekhof/calendar-availability/internal/recurrence"
)

// weekdaySampleSize is how many leading occurrences are inspected to infer
// the weekdays of a weekly series.
const weekdaySampleSize = 7

// Deduplicator groups occurrences by series.
type Deduplicator struct {
	logger *slog.Logger
}

// NewDeduplicator creates a Deduplicator. A nil logger discards output.
func NewDeduplicator(logger *slog.Logger) *Deduplicator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Deduplicator{logger: logger}
}

// Deduplicate returns one CanonicalEvent per distinct SourceEventID, in order
// of each series' first appearance in occurrences. The input is not modified.
func (d *Deduplicator) Deduplicate(occurrences []model.RawOccurrence) []model.CanonicalEvent {
	var order []string
	groups := make(map[string][]model.RawOccurrence)
	for _, occ := range occurrences {
		if _, seen := groups[occ.SourceEventID]; !seen {
			order = append(order, occ.SourceEventID)
		}
		groups[occ.SourceEventID] = append(groups[occ.SourceEventID], occ)
	}

	events := make([]model.CanonicalEvent, 0, len(order))
	for _, id := range order {
		group := groups[id]
		slices.SortStableFunc(group, func(a, b model.RawOccurrence) int {
			return a.Start.Compare(b.Start)
		})
		events = append(events, d.canonicalize(group))
	}

	d.logger.Debug("deduplicated occurrences", "occurrences", len(occurrences), "events", len(events))
	return events
}

// canonicalize builds the representative of one sorted, non-empty group.
func (d *Deduplicator) canonicalize(group []model.RawOccurrence) model.CanonicalEvent {
	first := group[0]
	event := model.CanonicalEvent{
		SourceEventID: first.SourceEventID,
		CalendarID:    first.CalendarID,
		Title:         first.Title,
		Start:         first.Start,
		End:           first.End,
		IsAllDay:      first.IsAllDay,
		Location:      first.Location,
		Notes:         first.Notes,
	}

	if first.Recurrence == nil {
		return event
	}

	rule, ok := recurrence.Translate(first.Recurrence).Get()
	if !ok {
		d.logger.Debug("no usable recurrence rule, treating as single event",
			"sourceEventId", first.SourceEventID)
		return event
	}

	var days []string
	lastStart := mo.None[time.Time]()
	if recurrence.IsWeekly(rule) {
		days = sampleWeekdays(group)
		lastStart = mo.Some(group[len(group)-1].Start)
	}

	event.RecurrenceRule = recurrence.Infer(rule, first.Start, days, lastStart)

	decomposed := recurrence.Decompose(event.RecurrenceRule, first.Start)
	event.RecurrenceStart = decomposed.Start
	event.RecurrenceUntil = decomposed.Until
	event.RecurrenceCount = decomposed.Count

	return event
}

// sampleWeekdays returns the distinct weekday tokens of the first few
// occurrences, ordered Sunday first.
func sampleWeekdays(group []model.RawOccurrence) []string {
	var seen [7]bool
	for _, occ := range group[:min(len(group), weekdaySampleSize)] {
		seen[occ.Start.Weekday()] = true
	}

	var days []string
	for w, ok := range seen {
		if ok {
			days = append(days, recurrence.WeekdayToken(time.Weekday(w)))
		}
	}
	return days
}
