// Package calendar reads and writes events in the external calendars a user
// links: Google Calendar, CalDAV servers and read-only ICS feeds.
package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/beekhof/calendar-availability/internal/model"
)

var (
	// ErrPermissionDenied is returned when the provider refuses access to a
	// calendar. It is never retried.
	ErrPermissionDenied = errors.New("calendar access denied")

	// ErrReadOnly is returned by write operations on read-only calendars.
	ErrReadOnly = errors.New("calendar is read-only")
)

// Provider is the interface for device and external calendar sources.
type Provider interface {
	// ListOccurrences returns every event instance overlapping [start, end].
	// Recurring series are expanded into one occurrence per instance, all
	// sharing the series' SourceEventID and Recurrence descriptor.
	ListOccurrences(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawOccurrence, error)
	CreateEvent(ctx context.Context, calendarID string, draft model.EventDraft) (string, error)
	UpdateEvent(ctx context.Context, calendarID, eventID string, patch model.EventPatch) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
}
