package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	ics "github.com/arran4/golang-ical"

	"github.com/beekhof/calendar-availability/internal/model"
)

// ICSFeed is a read-only Provider over an iCalendar subscription URL. A feed
// is a single calendar, so calendar IDs are only used to label occurrences.
type ICSFeed struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger

	mu   sync.Mutex
	etag string
	body []byte
}

// NewICSFeed creates a provider for the feed at url.
func NewICSFeed(url string, httpClient *http.Client, logger *slog.Logger) *ICSFeed {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ICSFeed{url: url, httpClient: httpClient, logger: logger}
}

// ListOccurrences implements Provider.
func (f *ICSFeed) ListOccurrences(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawOccurrence, error) {
	body, err := f.fetch(ctx)
	if err != nil {
		return nil, err
	}

	cal, err := ics.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	var events []seriesEvent
	for _, vevent := range cal.Events() {
		ev, err := seriesEventFromFeed(vevent)
		if err != nil {
			f.logger.Warn("skipping feed event", "error", err)
			continue
		}
		events = append(events, ev)
	}

	return expandSeries(ctx, calendarID, events, start, end, f.logger), nil
}

// CreateEvent implements Provider. Feeds cannot be written.
func (f *ICSFeed) CreateEvent(context.Context, string, model.EventDraft) (string, error) {
	return "", ErrReadOnly
}

// UpdateEvent implements Provider. Feeds cannot be written.
func (f *ICSFeed) UpdateEvent(context.Context, string, string, model.EventPatch) error {
	return ErrReadOnly
}

// DeleteEvent implements Provider. Feeds cannot be written.
func (f *ICSFeed) DeleteEvent(context.Context, string, string) error {
	return ErrReadOnly
}

// fetch downloads the feed, reusing the previous body when the server answers
// 304 Not Modified.
func (f *ICSFeed) fetch(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}
	if f.etag != "" && f.body != nil {
		req.Header.Set("If-None-Match", f.etag)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified && f.body != nil {
		f.logger.Debug("feed not modified", "etag", f.etag)
		return f.body, nil
	}
	if err := checkStatus("fetch feed", resp, http.StatusOK); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed: %w", err)
	}
	f.etag = resp.Header.Get("ETag")
	f.body = body
	return body, nil
}

func seriesEventFromFeed(vevent *ics.VEvent) (seriesEvent, error) {
	var ev seriesEvent

	uid := vevent.GetProperty(ics.ComponentPropertyUniqueId)
	if uid == nil || uid.Value == "" {
		return ev, fmt.Errorf("missing UID")
	}
	ev.UID = uid.Value

	if p := vevent.GetProperty(ics.ComponentPropertySummary); p != nil {
		ev.Title = p.Value
	}
	if p := vevent.GetProperty(ics.ComponentPropertyLocation); p != nil {
		ev.Location = p.Value
	}
	if p := vevent.GetProperty(ics.ComponentPropertyDescription); p != nil {
		ev.Notes = p.Value
	}

	dtstart := vevent.GetProperty(ics.ComponentPropertyDtStart)
	if dtstart == nil {
		return ev, fmt.Errorf("event %s has no DTSTART", ev.UID)
	}
	ev.AllDay = !strings.Contains(dtstart.Value, "T")
	if vs := dtstart.ICalParameters["VALUE"]; len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		ev.AllDay = true
	}

	var err error
	if ev.AllDay {
		ev.Start, err = vevent.GetAllDayStartAt()
	} else {
		ev.Start, err = vevent.GetStartAt()
	}
	if err != nil {
		return ev, fmt.Errorf("event %s: invalid DTSTART: %w", ev.UID, err)
	}

	switch {
	case vevent.GetProperty(ics.ComponentPropertyDtEnd) != nil && ev.AllDay:
		ev.End, err = vevent.GetAllDayEndAt()
	case vevent.GetProperty(ics.ComponentPropertyDtEnd) != nil:
		ev.End, err = vevent.GetEndAt()
	case ev.AllDay:
		ev.End = ev.Start.AddDate(0, 0, 1)
	default:
		ev.End = ev.Start
	}
	if err != nil {
		return ev, fmt.Errorf("event %s: invalid DTEND: %w", ev.UID, err)
	}

	if p := vevent.GetProperty(ics.ComponentPropertyRrule); p != nil {
		ev.Rule = p.Value
	}
	for _, p := range vevent.GetProperties(ics.ComponentPropertyExdate) {
		for _, value := range strings.Split(p.Value, ",") {
			if t, err := parseFeedTime(strings.TrimSpace(value), p.ICalParameters); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	if p := vevent.GetProperty(ics.ComponentPropertyRecurrenceId); p != nil {
		if t, err := parseFeedTime(p.Value, p.ICalParameters); err == nil {
			ev.RecurrenceID = &t
		}
	}
	return ev, nil
}

// parseFeedTime parses a DATE or DATE-TIME value, honouring TZID.
func parseFeedTime(value string, params map[string][]string) (time.Time, error) {
	loc := time.Local
	if tz := params["TZID"]; len(tz) == 1 {
		l, err := time.LoadLocation(tz[0])
		if err != nil {
			return time.Time{}, err
		}
		loc = l
	}
	switch {
	case strings.HasSuffix(value, "Z"):
		return time.Parse("20060102T150405Z", value)
	case strings.Contains(value, "T"):
		return time.ParseInLocation("20060102T150405", value, loc)
	default:
		return time.ParseInLocation("20060102", value, loc)
	}
}
