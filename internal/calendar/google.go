package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/beekhof/calendar-availability/internal/model"
	"github.com/beekhof/calendar-availability/internal/recurrence"
)

const googleDateLayout = "2006-01-02"

// Google is a Provider for Google Calendar.
type Google struct {
	service *gcal.Service
	logger  *slog.Logger
}

// NewGoogle creates a Google Calendar provider using the provided HTTP client,
// which must carry the user's OAuth credentials.
func NewGoogle(ctx context.Context, httpClient *http.Client, logger *slog.Logger, opts ...option.ClientOption) (*Google, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	service, err := gcal.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Google{service: service, logger: logger}, nil
}

// ListOccurrences implements Provider. Recurring events are expanded by the
// API; each series' recurrence is read once from its parent event.
func (g *Google) ListOccurrences(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawOccurrence, error) {
	descriptors := make(map[string]*model.RecurrenceDescriptor)
	var occurrences []model.RawOccurrence

	err := g.service.Events.List(calendarID).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		SingleEvents(true). // Expand recurring events
		Pages(ctx, func(page *gcal.Events) error {
			loc := time.UTC
			if page.TimeZone != "" {
				if l, err := time.LoadLocation(page.TimeZone); err == nil {
					loc = l
				}
			}

			for _, item := range page.Items {
				if item.Status == "cancelled" {
					continue
				}
				occ, err := googleOccurrence(calendarID, item, loc)
				if err != nil {
					g.logger.Warn("skipping event", "id", item.Id, "error", err)
					continue
				}
				if item.RecurringEventId != "" {
					desc, ok := descriptors[item.RecurringEventId]
					if !ok {
						desc, err = g.seriesDescriptor(ctx, calendarID, item.RecurringEventId, loc)
						if err != nil {
							return err
						}
						descriptors[item.RecurringEventId] = desc
					}
					occ.Recurrence = desc
				}
				occurrences = append(occurrences, occ)
			}
			return nil
		})
	if err != nil {
		return nil, googleError("list events", err)
	}

	g.logger.Debug("listed Google occurrences", "calendar", calendarID, "occurrences", len(occurrences), "series", len(descriptors))
	return occurrences, nil
}

// seriesDescriptor reads the recurrence of a series from its parent event.
// Unusable recurrence data is logged and treated as no recurrence.
func (g *Google) seriesDescriptor(ctx context.Context, calendarID, parentID string, loc *time.Location) (*model.RecurrenceDescriptor, error) {
	parent, err := g.service.Events.Get(calendarID, parentID).Context(ctx).Do()
	if err != nil {
		if isPermissionError(err) {
			return nil, err
		}
		g.logger.Warn("failed to get recurring event", "id", parentID, "error", err)
		return nil, nil
	}

	desc, err := recurrence.ParseDescriptorLines(parent.Recurrence)
	if err != nil {
		g.logger.Debug("ignoring recurrence", "id", parentID, "error", err)
		return nil, nil
	}
	if !countBounded(desc) {
		return desc, nil
	}

	start, _, err := parseGoogleDateTime(parent.Start, loc)
	if err != nil {
		g.logger.Warn("recurring event has no usable start, ignoring COUNT rule", "id", parentID, "error", err)
		return nil, nil
	}
	return boundDescriptor(ctx, desc, start, parentID, g.logger), nil
}

// CreateEvent implements Provider.
// Important: Sets sendUpdates="none" to prevent notifications.
func (g *Google) CreateEvent(ctx context.Context, calendarID string, draft model.EventDraft) (string, error) {
	event := &gcal.Event{
		Summary:     draft.Title,
		Location:    draft.Location,
		Description: draft.Notes,
		Start:       googleDateTime(draft.Start, draft.IsAllDay),
		End:         googleDateTime(draft.End, draft.IsAllDay),
	}
	if draft.RecurrenceRule != "" {
		event.Recurrence = []string{"RRULE:" + draft.RecurrenceRule}
	}

	created, err := g.service.Events.Insert(calendarID, event).
		SendUpdates("none"). // Disable notifications
		Context(ctx).
		Do()
	if err != nil {
		return "", googleError("insert event", err)
	}
	return created.Id, nil
}

// UpdateEvent implements Provider. Only the fields set in patch are sent.
func (g *Google) UpdateEvent(ctx context.Context, calendarID, eventID string, patch model.EventPatch) error {
	event := &gcal.Event{}
	if patch.Title != nil {
		event.Summary = *patch.Title
		event.ForceSendFields = append(event.ForceSendFields, "Summary")
	}
	if patch.Location != nil {
		event.Location = *patch.Location
		event.ForceSendFields = append(event.ForceSendFields, "Location")
	}
	if patch.Notes != nil {
		event.Description = *patch.Notes
		event.ForceSendFields = append(event.ForceSendFields, "Description")
	}
	if patch.Start != nil {
		event.Start = googleDateTime(*patch.Start, false)
	}
	if patch.End != nil {
		event.End = googleDateTime(*patch.End, false)
	}

	_, err := g.service.Events.Patch(calendarID, eventID, event).
		SendUpdates("none"). // Disable notifications
		Context(ctx).
		Do()
	if err != nil {
		return googleError("update event", err)
	}
	return nil
}

// DeleteEvent implements Provider.
func (g *Google) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := g.service.Events.Delete(calendarID, eventID).
		SendUpdates("none"). // Disable notifications
		Context(ctx).
		Do()
	if err != nil {
		return googleError("delete event", err)
	}
	return nil
}

func googleOccurrence(calendarID string, item *gcal.Event, loc *time.Location) (model.RawOccurrence, error) {
	start, allDay, err := parseGoogleDateTime(item.Start, loc)
	if err != nil {
		return model.RawOccurrence{}, fmt.Errorf("invalid start: %w", err)
	}
	end, _, err := parseGoogleDateTime(item.End, loc)
	if err != nil {
		return model.RawOccurrence{}, fmt.Errorf("invalid end: %w", err)
	}

	id := item.Id
	if item.RecurringEventId != "" {
		id = item.RecurringEventId
	}
	return model.RawOccurrence{
		SourceEventID: id,
		CalendarID:    calendarID,
		Title:         item.Summary,
		Start:         start,
		End:           end,
		IsAllDay:      allDay,
		Location:      item.Location,
		Notes:         item.Description,
	}, nil
}

// parseGoogleDateTime reads a timed or all-day value. All-day dates are
// placed at midnight in loc.
func parseGoogleDateTime(dt *gcal.EventDateTime, loc *time.Location) (time.Time, bool, error) {
	if dt == nil {
		return time.Time{}, false, errors.New("missing date")
	}
	if dt.DateTime != "" {
		t, err := time.Parse(time.RFC3339, dt.DateTime)
		return t, false, err
	}
	t, err := time.ParseInLocation(googleDateLayout, dt.Date, loc)
	return t, true, err
}

func googleDateTime(t time.Time, allDay bool) *gcal.EventDateTime {
	if allDay {
		return &gcal.EventDateTime{Date: t.Format(googleDateLayout)}
	}
	return &gcal.EventDateTime{DateTime: t.Format(time.RFC3339)}
}

func isPermissionError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden
	}
	var tokenErr *oauth2.RetrieveError
	return errors.As(err, &tokenErr)
}

func googleError(op string, err error) error {
	if isPermissionError(err) {
		return fmt.Errorf("Google: failed to %s: %w: %w", op, ErrPermissionDenied, err)
	}
	return fmt.Errorf("Google: failed to %s: %w", op, err)
}
