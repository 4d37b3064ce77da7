package backend

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/beekhof/calendar-availability/internal/model"
)

// LinkCalendar registers a device calendar for userID and returns the stored
// configuration, including the backend's calendar ID.
func (c *Client) LinkCalendar(ctx context.Context, userID string, cfg model.LinkedCalendarConfig) (model.LinkedCalendarConfig, error) {
	var linked model.LinkedCalendarConfig
	err := c.do(ctx, request{
		op:     "link calendar",
		method: http.MethodPost,
		path:   []string{"users", userID, "calendars"},
		body:   cfg,
	}, &linked)
	return linked, err
}

// UnlinkCalendar removes a linked calendar. The backend deletes its events.
func (c *Client) UnlinkCalendar(ctx context.Context, userID, calendarID string) error {
	return c.do(ctx, request{
		op:     "unlink calendar",
		method: http.MethodDelete,
		path:   []string{"users", userID, "calendars", calendarID},
	}, nil)
}

// ListLinkedCalendars returns every calendar userID has linked.
func (c *Client) ListLinkedCalendars(ctx context.Context, userID string) ([]model.LinkedCalendarConfig, error) {
	var calendars []model.LinkedCalendarConfig
	err := c.do(ctx, request{
		op:     "list linked calendars",
		method: http.MethodGet,
		path:   []string{"users", userID, "calendars"},
	}, &calendars)
	return calendars, err
}

// UpdateCalendarSettings applies a partial settings update.
func (c *Client) UpdateCalendarSettings(ctx context.Context, userID, calendarID string, settings model.CalendarSettings) (model.LinkedCalendarConfig, error) {
	var updated model.LinkedCalendarConfig
	err := c.do(ctx, request{
		op:     "update calendar settings",
		method: http.MethodPatch,
		path:   []string{"users", userID, "calendars", calendarID},
		body:   settings,
	}, &updated)
	return updated, err
}

type syncBatch struct {
	Events []model.EventPayload `json:"events"`
}

// SubmitSyncBatch sends the canonical events of one calendar in a single
// request. The backend decides per event whether to create or update.
func (c *Client) SubmitSyncBatch(ctx context.Context, userID, calendarID string, events []model.EventPayload) (model.SyncSummary, error) {
	if events == nil {
		events = []model.EventPayload{}
	}
	var summary model.SyncSummary
	err := c.do(ctx, request{
		op:     "submit sync batch",
		method: http.MethodPost,
		path:   []string{"users", userID, "calendars", calendarID, "sync"},
		body:   syncBatch{Events: events},
		header: http.Header{"Idempotency-Key": []string{uuid.NewString()}},
	}, &summary)
	if summary.Conflicts == nil {
		summary.Conflicts = []string{}
	}
	return summary, err
}

// FetchEvents returns the canonical events stored for userID that fall in
// [start, end]. Events may or may not have been redacted by the backend.
func (c *Client) FetchEvents(ctx context.Context, userID string, start, end time.Time) ([]model.CanonicalEvent, error) {
	var payloads []model.EventPayload
	err := c.do(ctx, request{
		op:     "fetch events",
		method: http.MethodGet,
		path:   []string{"users", userID, "events"},
		query:  windowQuery(start, end),
	}, &payloads)
	if err != nil {
		return nil, err
	}

	events := make([]model.CanonicalEvent, len(payloads))
	for i, p := range payloads {
		events[i] = p.Event()
	}
	return events, nil
}

// FetchAvailability returns the free slots the backend computed for userID.
func (c *Client) FetchAvailability(ctx context.Context, userID string, start, end time.Time, minMinutes int) ([]model.AvailabilitySlot, error) {
	q := windowQuery(start, end)
	q.Set("minDuration", strconv.Itoa(minMinutes))

	var slots []model.AvailabilitySlot
	err := c.do(ctx, request{
		op:     "fetch availability",
		method: http.MethodGet,
		path:   []string{"users", userID, "availability"},
		query:  q,
	}, &slots)
	return slots, err
}

// FetchMutualAvailability returns the slots the backend computed as free for
// both users.
func (c *Client) FetchMutualAvailability(ctx context.Context, userA, userB string, start, end time.Time, minMinutes int) ([]model.AvailabilitySlot, error) {
	q := windowQuery(start, end)
	q.Set("userA", userA)
	q.Set("userB", userB)
	q.Set("minDuration", strconv.Itoa(minMinutes))

	var slots []model.AvailabilitySlot
	err := c.do(ctx, request{
		op:     "fetch mutual availability",
		method: http.MethodGet,
		path:   []string{"availability", "mutual"},
		query:  q,
	}, &slots)
	return slots, err
}
