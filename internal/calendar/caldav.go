package calendar

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/beekhof/calendar-availability/internal/model"
)

const (
	caldavTimeLayout = "20060102T150405Z"
	productID        = "-//calendar-availability//EN"
)

// CalDAV is a Provider for CalDAV servers such as iCloud. Calendar IDs are
// collection paths relative to the server URL, e.g. "/alice/calendars/home/".
// Event IDs are UIDs stored as "<uid>.ics" resources in the collection.
type CalDAV struct {
	httpClient *http.Client
	serverURL  string
	username   string
	password   string
	logger     *slog.Logger
}

// NewCalDAV creates a CalDAV provider using basic auth. A nil httpClient uses a
// client with a 30 second timeout.
func NewCalDAV(serverURL, username, password string, httpClient *http.Client, logger *slog.Logger) *CalDAV {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &CalDAV{
		httpClient: httpClient,
		serverURL:  strings.TrimSuffix(serverURL, "/"),
		username:   username,
		password:   password,
		logger:     logger,
	}
}

// makeRequest makes an authenticated request to the CalDAV server.
func (c *CalDAV) makeRequest(ctx context.Context, method, path string, body io.Reader, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.password)
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return c.httpClient.Do(req)
}

// checkStatus maps an unexpected response status to an error.
func checkStatus(op string, resp *http.Response, ok ...int) error {
	for _, code := range ok {
		if resp.StatusCode == code {
			return nil
		}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("failed to %s: %w: HTTP %d", op, ErrPermissionDenied, resp.StatusCode)
	}
	return fmt.Errorf("failed to %s: HTTP %d", op, resp.StatusCode)
}

// ListOccurrences implements Provider.
func (c *CalDAV) ListOccurrences(ctx context.Context, calendarID string, start, end time.Time) ([]model.RawOccurrence, error) {
	query, err := calendarQuery(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to build calendar query: %w", err)
	}

	resp, err := c.makeRequest(ctx, "REPORT", calendarID, bytes.NewReader(query), http.Header{
		"Content-Type": []string{"application/xml; charset=utf-8"},
		"Depth":        []string{"1"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("query calendar", resp, http.StatusMultiStatus, http.StatusOK); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	objects, err := parseMultistatus(body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CalDAV response: %w", err)
	}

	var events []seriesEvent
	for _, obj := range objects {
		cal, err := ical.NewDecoder(strings.NewReader(obj.data)).Decode()
		if err != nil {
			c.logger.Warn("failed to parse iCalendar data", "href", obj.href, "error", err)
			continue
		}
		for _, vevent := range cal.Events() {
			ev, err := seriesEventFromICal(vevent)
			if err != nil {
				c.logger.Warn("failed to convert event", "href", obj.href, "error", err)
				continue
			}
			events = append(events, ev)
		}
	}

	occurrences := expandSeries(ctx, calendarID, events, start, end, c.logger)
	c.logger.Debug("listed CalDAV occurrences", "calendar", calendarID, "objects", len(objects), "occurrences", len(occurrences))
	return occurrences, nil
}

// CreateEvent implements Provider. The returned ID is the new event's UID.
func (c *CalDAV) CreateEvent(ctx context.Context, calendarID string, draft model.EventDraft) (string, error) {
	uid := uuid.NewString()

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)

	vevent := ical.NewEvent()
	vevent.Props.SetText(ical.PropUID, uid)
	if draft.Title != "" {
		vevent.Props.SetText(ical.PropSummary, draft.Title)
	}
	if draft.Location != "" {
		vevent.Props.SetText(ical.PropLocation, draft.Location)
	}
	if draft.Notes != "" {
		vevent.Props.SetText(ical.PropDescription, draft.Notes)
	}
	setEventTime(vevent.Component, ical.PropDateTimeStart, draft.Start, draft.IsAllDay)
	setEventTime(vevent.Component, ical.PropDateTimeEnd, draft.End, draft.IsAllDay)
	if draft.RecurrenceRule != "" {
		// RRULE values must not be text-escaped.
		rrule := ical.NewProp(ical.PropRecurrenceRule)
		rrule.Value = draft.RecurrenceRule
		vevent.Props.Set(rrule)
	}
	now := time.Now().UTC()
	vevent.Props.SetDateTime(ical.PropDateTimeStamp, now)
	vevent.Props.SetDateTime(ical.PropCreated, now)
	vevent.Props.SetDateTime(ical.PropLastModified, now)
	cal.Children = append(cal.Children, vevent.Component)

	if err := c.put(ctx, calendarID, uid, cal, http.Header{"If-None-Match": []string{"*"}}); err != nil {
		return "", fmt.Errorf("failed to insert event: %w", err)
	}
	return uid, nil
}

// UpdateEvent implements Provider. It rewrites the series master; instance
// overrides are left as they are.
func (c *CalDAV) UpdateEvent(ctx context.Context, calendarID, eventID string, patch model.EventPatch) error {
	resp, err := c.makeRequest(ctx, http.MethodGet, resourcePath(calendarID, eventID), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to get event: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("get event", resp, http.StatusOK); err != nil {
		return err
	}

	cal, err := ical.NewDecoder(resp.Body).Decode()
	if err != nil {
		return fmt.Errorf("failed to parse iCalendar: %w", err)
	}

	var master *ical.Component
	for _, comp := range cal.Children {
		if comp.Name == ical.CompEvent && comp.Props.Get(ical.PropRecurrenceID) == nil {
			master = comp
			break
		}
	}
	if master == nil {
		return fmt.Errorf("no VEVENT found in event %s", eventID)
	}

	if patch.Title != nil {
		master.Props.SetText(ical.PropSummary, *patch.Title)
	}
	if patch.Location != nil {
		master.Props.SetText(ical.PropLocation, *patch.Location)
	}
	if patch.Notes != nil {
		master.Props.SetText(ical.PropDescription, *patch.Notes)
	}
	allDay := false
	if dtstart := master.Props.Get(ical.PropDateTimeStart); dtstart != nil {
		allDay = dtstart.Params.Get(ical.ParamValue) == string(ical.ValueDate)
	}
	if patch.Start != nil {
		setEventTime(master, ical.PropDateTimeStart, *patch.Start, allDay)
	}
	if patch.End != nil {
		master.Props.Del(ical.PropDuration)
		setEventTime(master, ical.PropDateTimeEnd, *patch.End, allDay)
	}
	now := time.Now().UTC()
	master.Props.SetDateTime(ical.PropDateTimeStamp, now)
	master.Props.SetDateTime(ical.PropLastModified, now)

	var header http.Header
	if etag := resp.Header.Get("ETag"); etag != "" {
		header = http.Header{"If-Match": []string{etag}}
	}
	if err := c.put(ctx, calendarID, eventID, cal, header); err != nil {
		return fmt.Errorf("failed to update event: %w", err)
	}
	return nil
}

// DeleteEvent implements Provider.
func (c *CalDAV) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	resp, err := c.makeRequest(ctx, http.MethodDelete, resourcePath(calendarID, eventID), nil, nil)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	defer resp.Body.Close()

	return checkStatus("delete event", resp, http.StatusNoContent, http.StatusOK)
}

func (c *CalDAV) put(ctx context.Context, calendarID, eventID string, cal *ical.Calendar, header http.Header) error {
	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return fmt.Errorf("failed to encode iCalendar: %w", err)
	}

	if header == nil {
		header = http.Header{}
	}
	header.Set("Content-Type", "text/calendar; charset=utf-8")

	resp, err := c.makeRequest(ctx, http.MethodPut, resourcePath(calendarID, eventID), &buf, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus("store event", resp, http.StatusCreated, http.StatusNoContent, http.StatusOK)
}

func resourcePath(calendarID, eventID string) string {
	if !strings.HasSuffix(calendarID, "/") {
		calendarID += "/"
	}
	return calendarID + eventID + ".ics"
}

func setEventTime(comp *ical.Component, name string, t time.Time, allDay bool) {
	prop := ical.NewProp(name)
	if allDay {
		prop.SetDate(t)
	} else {
		prop.SetDateTime(t.UTC())
	}
	comp.Props.Set(prop)
}

// calendarQuery builds a calendar-query REPORT body for VEVENTs overlapping
// [start, end].
func calendarQuery(start, end time.Time) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="utf-8"`)

	query := doc.CreateElement("C:calendar-query")
	query.CreateAttr("xmlns:D", "DAV:")
	query.CreateAttr("xmlns:C", "urn:ietf:params:xml:ns:caldav")

	prop := query.CreateElement("D:prop")
	prop.CreateElement("D:getetag")
	prop.CreateElement("C:calendar-data")

	vcalendar := query.CreateElement("C:filter").CreateElement("C:comp-filter")
	vcalendar.CreateAttr("name", "VCALENDAR")
	vevent := vcalendar.CreateElement("C:comp-filter")
	vevent.CreateAttr("name", "VEVENT")
	timeRange := vevent.CreateElement("C:time-range")
	timeRange.CreateAttr("start", start.UTC().Format(caldavTimeLayout))
	timeRange.CreateAttr("end", end.UTC().Format(caldavTimeLayout))

	doc.Indent(2)
	return doc.WriteToBytes()
}

type calendarObject struct {
	href string
	data string
}

// parseMultistatus extracts the calendar-data of every response in a
// multistatus body. Namespace prefixes vary between servers and are ignored.
func parseMultistatus(body []byte) ([]calendarObject, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return nil, fmt.Errorf("failed to parse XML: %w", err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "multistatus" {
		return nil, fmt.Errorf("expected multistatus document")
	}

	var objects []calendarObject
	for _, resp := range descendants(root, "response") {
		var obj calendarObject
		if href := descendants(resp, "href"); len(href) > 0 {
			obj.href = strings.TrimSpace(href[0].Text())
		}
		if data := descendants(resp, "calendar-data"); len(data) > 0 {
			obj.data = data[0].Text()
		}
		if strings.TrimSpace(obj.data) != "" {
			objects = append(objects, obj)
		}
	}
	return objects, nil
}

func descendants(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			out = append(out, child)
		}
		out = append(out, descendants(child, tag)...)
	}
	return out
}

// seriesEventFromICal reads the fields used for availability from a VEVENT.
func seriesEventFromICal(vevent ical.Event) (seriesEvent, error) {
	var ev seriesEvent

	uid := vevent.Props.Get(ical.PropUID)
	if uid == nil || uid.Value == "" {
		return ev, fmt.Errorf("VEVENT has no UID")
	}
	ev.UID = uid.Value

	if summary := vevent.Props.Get(ical.PropSummary); summary != nil {
		ev.Title, _ = summary.Text()
	}
	if loc := vevent.Props.Get(ical.PropLocation); loc != nil {
		ev.Location, _ = loc.Text()
	}
	if desc := vevent.Props.Get(ical.PropDescription); desc != nil {
		ev.Notes, _ = desc.Text()
	}

	dtstart := vevent.Props.Get(ical.PropDateTimeStart)
	if dtstart == nil {
		return ev, fmt.Errorf("VEVENT %s has no DTSTART", ev.UID)
	}
	ev.AllDay = dtstart.Params.Get(ical.ParamValue) == string(ical.ValueDate)

	var err error
	if ev.Start, err = vevent.DateTimeStart(nil); err != nil {
		return ev, fmt.Errorf("invalid DTSTART: %w", err)
	}
	if ev.End, err = vevent.DateTimeEnd(nil); err != nil {
		return ev, fmt.Errorf("invalid DTEND: %w", err)
	}
	if ev.End.Before(ev.Start) {
		ev.End = ev.Start
	}

	if rrule := vevent.Props.Get(ical.PropRecurrenceRule); rrule != nil {
		ev.Rule = rrule.Value
	}
	for _, exdate := range vevent.Props[ical.PropExceptionDates] {
		for _, value := range strings.Split(exdate.Value, ",") {
			single := exdate
			single.Value = strings.TrimSpace(value)
			if t, err := single.DateTime(nil); err == nil {
				ev.ExDates = append(ev.ExDates, t)
			}
		}
	}
	if rid := vevent.Props.Get(ical.PropRecurrenceID); rid != nil {
		if t, err := rid.DateTime(nil); err == nil {
			ev.RecurrenceID = &t
		}
	}
	return ev, nil
}
