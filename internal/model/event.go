// Package model holds the data types shared by the sync engine, the providers
// and the availability computations.
package model

import (
	"time"
)

// Frequency is the repetition unit of a structured recurrence descriptor.
type Frequency string

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

// RecurrenceDescriptor is the normalized recurrence information reported by a
// calendar provider. Exactly one of the two shapes is used: Rule carries an
// already-serialized rule ("FREQ=WEEKLY;INTERVAL=2"), otherwise the
// structured fields describe the series.
type RecurrenceDescriptor struct {
	Rule string `json:"rule,omitempty"`

	Frequency       Frequency `json:"frequency,omitempty"`
	Interval        int       `json:"interval,omitempty"`
	OccurrenceCount *int      `json:"occurrenceCount,omitempty"`
	EndDate         time.Time `json:"endDate,omitzero"`
	// DaysOfWeek uses ordinals 1=Sunday..7=Saturday.
	DaysOfWeek   []int `json:"daysOfWeek,omitempty"`
	DaysOfMonth  []int `json:"daysOfMonth,omitempty"`
	MonthsOfYear []int `json:"monthsOfYear,omitempty"`
	SetPositions []int `json:"setPositions,omitempty"`
}

// RawOccurrence is one instance of an event as reported by a calendar provider
// for a query window. All occurrences of one recurring series share
// SourceEventID and an identical Recurrence descriptor.
type RawOccurrence struct {
	SourceEventID string
	CalendarID    string
	Title         string
	Start         time.Time
	End           time.Time
	IsAllDay      bool
	Location      string
	Notes         string
	Recurrence    *RecurrenceDescriptor
}

// CanonicalEvent is the deduplicated representative of one series, or of a
// single non-recurring occurrence. It is built once and never mutated; a
// resync produces a new value.
type CanonicalEvent struct {
	SourceEventID   string     `json:"sourceEventId"`
	CalendarID      string     `json:"calendarId"`
	Title           string     `json:"title"`
	Start           time.Time  `json:"startTime"`
	End             time.Time  `json:"endTime"`
	IsAllDay        bool       `json:"isAllDay"`
	Location        string     `json:"location,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	RecurrenceRule  string     `json:"recurrenceRule,omitempty"`
	RecurrenceStart *time.Time `json:"recurrenceStart,omitempty"`
	RecurrenceUntil *time.Time `json:"recurrenceUntil,omitempty"`
	RecurrenceCount *int       `json:"recurrenceCount,omitempty"`
}

// IsRecurring reports whether the event carries a recurrence rule.
func (e CanonicalEvent) IsRecurring() bool {
	return e.RecurrenceRule != ""
}

// EventPayload is the form of a CanonicalEvent submitted to the backend in a
// sync batch. Timestamps are absolute UTC instants.
type EventPayload struct {
	ExternalEventID string     `json:"externalEventId"`
	CalendarID      string     `json:"calendarId"`
	Title           string     `json:"title"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         time.Time  `json:"endTime"`
	Location        string     `json:"location,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	IsAllDay        bool       `json:"isAllDay"`
	RecurrenceRule  string     `json:"recurrenceRule,omitempty"`
	RecurrenceStart *time.Time `json:"recurrenceStart,omitempty"`
	RecurrenceUntil *time.Time `json:"recurrenceUntil,omitempty"`
	RecurrenceCount *int       `json:"recurrenceCount,omitempty"`
}

// SyncSummary is the backend's answer to a sync batch.
type SyncSummary struct {
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Conflicts []string `json:"conflicts"`
	Total     int      `json:"total"`
}

// EventDraft describes an event to create in a device calendar.
type EventDraft struct {
	Title          string
	Start          time.Time
	End            time.Time
	IsAllDay       bool
	Location       string
	Notes          string
	RecurrenceRule string
}

// EventPatch lists the fields to change on an existing device event. Nil
// fields are left untouched.
type EventPatch struct {
	Title    *string
	Start    *time.Time
	End      *time.Time
	Location *string
	Notes    *string
}

// NewEventPayload converts a canonical event into its backend form.
func NewEventPayload(ev CanonicalEvent) EventPayload {
	return EventPayload{
		ExternalEventID: ev.SourceEventID,
		CalendarID:      ev.CalendarID,
		Title:           ev.Title,
		StartTime:       ev.Start.UTC(),
		EndTime:         ev.End.UTC(),
		Location:        ev.Location,
		Notes:           ev.Notes,
		IsAllDay:        ev.IsAllDay,
		RecurrenceRule:  ev.RecurrenceRule,
		RecurrenceStart: utcPtr(ev.RecurrenceStart),
		RecurrenceUntil: utcPtr(ev.RecurrenceUntil),
		RecurrenceCount: ev.RecurrenceCount,
	}
}

// Event converts a stored payload back into a canonical event.
func (p EventPayload) Event() CanonicalEvent {
	return CanonicalEvent{
		SourceEventID:   p.ExternalEventID,
		CalendarID:      p.CalendarID,
		Title:           p.Title,
		Start:           p.StartTime,
		End:             p.EndTime,
		IsAllDay:        p.IsAllDay,
		Location:        p.Location,
		Notes:           p.Notes,
		RecurrenceRule:  p.RecurrenceRule,
		RecurrenceStart: p.RecurrenceStart,
		RecurrenceUntil: p.RecurrenceUntil,
		RecurrenceCount: p.RecurrenceCount,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
