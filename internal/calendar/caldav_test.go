package calendar

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beekhof/calendar-availability/internal/model"
)

var gymICS = icsLines(
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//test//EN",
	"BEGIN:VEVENT",
	"UID:gym",
	"DTSTAMP:20231201T000000Z",
	"SUMMARY:Gym",
	"LOCATION:Downtown",
	"DTSTART:20240101T180000Z",
	"DTEND:20240101T190000Z",
	"RRULE:FREQ=WEEKLY;BYDAY=MO,WE;COUNT=6",
	"EXDATE:20240108T180000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:gym",
	"DTSTAMP:20231201T000000Z",
	"RECURRENCE-ID:20240110T180000Z",
	"SUMMARY:Gym (late)",
	"DTSTART:20240110T200000Z",
	"DTEND:20240110T210000Z",
	"END:VEVENT",
	"END:VCALENDAR",
)

var dentistICS = icsLines(
	"BEGIN:VCALENDAR",
	"VERSION:2.0",
	"PRODID:-//test//EN",
	"BEGIN:VEVENT",
	"UID:dentist",
	"DTSTAMP:20231201T000000Z",
	"SUMMARY:Dentist",
	"DESCRIPTION:Check-up",
	"DTSTART:20240105T090000Z",
	"DTEND:20240105T093000Z",
	"END:VEVENT",
	"BEGIN:VEVENT",
	"UID:holiday",
	"DTSTAMP:20231201T000000Z",
	"SUMMARY:Holiday",
	"DTSTART;VALUE=DATE:20240120",
	"DTEND;VALUE=DATE:20240121",
	"END:VEVENT",
	"END:VCALENDAR",
)

func multistatus(objects map[string]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>` + "\n")
	b.WriteString(`<d:multistatus xmlns:d="DAV:" xmlns:cal="urn:ietf:params:xml:ns:caldav">`)
	for href, data := range objects {
		b.WriteString(`<d:response><d:href>` + href + `</d:href><d:propstat><d:prop>`)
		b.WriteString(`<d:getetag>"1"</d:getetag><cal:calendar-data>` + data + `</cal:calendar-data>`)
		b.WriteString(`</d:prop><d:status>HTTP/1.1 200 OK</d:status></d:propstat></d:response>`)
	}
	b.WriteString(`</d:multistatus>`)
	return b.String()
}

func newCalDAVServer(t *testing.T, handler http.HandlerFunc) *CalDAV {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "alice" || pass != "app-password" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewCalDAV(srv.URL+"/", "alice", "app-password", srv.Client(), nil)
}

func TestCalDAV_ListOccurrences(t *testing.T) {
	c := newCalDAVServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "REPORT", r.Method)
		assert.Equal(t, "/alice/calendars/home/", r.URL.Path)
		assert.Equal(t, "1", r.Header.Get("Depth"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `start="20240101T000000Z"`)
		assert.Contains(t, string(body), `end="20240201T000000Z"`)
		assert.Contains(t, string(body), `name="VEVENT"`)

		w.WriteHeader(http.StatusMultiStatus)
		_, _ = io.WriteString(w, multistatus(map[string]string{
			"/alice/calendars/home/gym.ics": gymICS,
		}))
	})

	occ, err := c.ListOccurrences(context.Background(), "/alice/calendars/home/", utc(1, 1, 0, 0), utc(2, 1, 0, 0))
	require.NoError(t, err)

	require.Len(t, occ, 5)
	assert.Equal(t, utc(1, 1, 18, 0), occ[0].Start)
	assert.Equal(t, utc(1, 1, 19, 0), occ[0].End)
	assert.Equal(t, "Gym", occ[0].Title)
	assert.Equal(t, "Downtown", occ[0].Location)
	assert.Equal(t, "Gym (late)", occ[2].Title)
	assert.Equal(t, utc(1, 10, 20, 0), occ[2].Start)
	for _, o := range occ {
		assert.Equal(t, "gym", o.SourceEventID)
		assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO,WE;UNTIL=20240117T180000Z", o.Recurrence.Rule)
	}
}

func TestCalDAV_ListOccurrences_SingleAndAllDay(t *testing.T) {
	c := newCalDAVServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusMultiStatus)
		_, _ = io.WriteString(w, multistatus(map[string]string{
			"/alice/calendars/home/misc.ics": dentistICS,
		}))
	})

	occ, err := c.ListOccurrences(context.Background(), "/alice/calendars/home/", utc(1, 1, 0, 0), utc(2, 1, 0, 0))
	require.NoError(t, err)

	require.Len(t, occ, 2)
	assert.Equal(t, "dentist", occ[0].SourceEventID)
	assert.Equal(t, "Check-up", occ[0].Notes)
	assert.Nil(t, occ[0].Recurrence)
	assert.False(t, occ[0].IsAllDay)

	assert.Equal(t, "holiday", occ[1].SourceEventID)
	assert.True(t, occ[1].IsAllDay)
	assert.Equal(t, 24*time.Hour, occ[1].End.Sub(occ[1].Start))
}

func TestCalDAV_PermissionDenied(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	c := NewCalDAV(srv.URL, "alice", "wrong", srv.Client(), nil)

	_, err := c.ListOccurrences(context.Background(), "/alice/calendars/home/", utc(1, 1, 0, 0), utc(2, 1, 0, 0))
	assert.True(t, errors.Is(err, ErrPermissionDenied))

	err = c.DeleteEvent(context.Background(), "/alice/calendars/home/", "gym")
	assert.True(t, errors.Is(err, ErrPermissionDenied))
}

func TestCalDAV_CreateEvent(t *testing.T) {
	var putPath string
	c := newCalDAVServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "*", r.Header.Get("If-None-Match"))
		assert.True(t, strings.HasPrefix(r.Header.Get("Content-Type"), "text/calendar"))
		putPath = r.URL.Path

		cal, err := ical.NewDecoder(r.Body).Decode()
		require.NoError(t, err)
		events := cal.Events()
		require.Len(t, events, 1)
		summary, err := events[0].Props.Text(ical.PropSummary)
		require.NoError(t, err)
		assert.Equal(t, "Date night", summary)
		assert.Equal(t, "FREQ=WEEKLY;BYDAY=FR", events[0].Props.Get(ical.PropRecurrenceRule).Value)
		start, err := events[0].DateTimeStart(nil)
		require.NoError(t, err)
		assert.True(t, start.Equal(utc(1, 5, 19, 0)))

		w.WriteHeader(http.StatusCreated)
	})

	id, err := c.CreateEvent(context.Background(), "/alice/calendars/home", model.EventDraft{
		Title:          "Date night",
		Start:          utc(1, 5, 19, 0),
		End:            utc(1, 5, 22, 0),
		RecurrenceRule: "FREQ=WEEKLY;BYDAY=FR",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, "/alice/calendars/home/"+id+".ics", putPath)
}

func TestCalDAV_UpdateEvent(t *testing.T) {
	var stored string
	c := newCalDAVServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/alice/calendars/home/dentist.ics", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("ETag", `"v1"`)
			_, _ = io.WriteString(w, dentistICS)
		case http.MethodPut:
			assert.Equal(t, `"v1"`, r.Header.Get("If-Match"))
			body, _ := io.ReadAll(r.Body)
			stored = string(body)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	})

	title := "Dentist (moved)"
	start := utc(1, 6, 10, 0)
	end := utc(1, 6, 10, 30)
	err := c.UpdateEvent(context.Background(), "/alice/calendars/home/", "dentist", model.EventPatch{
		Title: &title,
		Start: &start,
		End:   &end,
	})
	require.NoError(t, err)

	cal, err := ical.NewDecoder(strings.NewReader(stored)).Decode()
	require.NoError(t, err)
	ev, err := seriesEventFromICal(cal.Events()[0])
	require.NoError(t, err)
	assert.Equal(t, "Dentist (moved)", ev.Title)
	assert.Equal(t, "Check-up", ev.Notes)
	assert.True(t, ev.Start.Equal(start))
	assert.True(t, ev.End.Equal(end))
}

func TestCalDAV_DeleteEvent(t *testing.T) {
	c := newCalDAVServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/alice/calendars/home/gym.ics", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, c.DeleteEvent(context.Background(), "/alice/calendars/home/", "gym"))
}

func TestParseMultistatus(t *testing.T) {
	objects, err := parseMultistatus([]byte(`<?xml version="1.0"?>
<multistatus xmlns="DAV:" xmlns:C="urn:ietf:params:xml:ns:caldav">
  <response><href>/a.ics</href><propstat><prop><C:calendar-data>BEGIN:VCALENDAR</C:calendar-data></prop></propstat></response>
  <response><href>/empty/</href><propstat><prop/></propstat></response>
</multistatus>`))
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, "/a.ics", objects[0].href)

	_, err = parseMultistatus([]byte(`<error/>`))
	assert.Error(t, err)
}
