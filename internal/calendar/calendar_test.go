package calendar

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/beekhof/calendar-availability/internal/model"
)

// icsLines joins iCalendar content lines with CRLF.
func icsLines(lines ...string) string {
	return strings.Join(lines, "\r\n") + "\r\n"
}

func utc(month time.Month, day, hour, minute int) time.Time {
	return time.Date(2024, month, day, hour, minute, 0, 0, time.UTC)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeProvider records the calendar IDs it is called with.
type fakeProvider struct {
	calls       []string
	occurrences []model.RawOccurrence
	err         error
}

func (f *fakeProvider) ListOccurrences(_ context.Context, calendarID string, _, _ time.Time) ([]model.RawOccurrence, error) {
	f.calls = append(f.calls, "list "+calendarID)
	return append([]model.RawOccurrence(nil), f.occurrences...), f.err
}

func (f *fakeProvider) CreateEvent(_ context.Context, calendarID string, _ model.EventDraft) (string, error) {
	f.calls = append(f.calls, "create "+calendarID)
	return "new-id", f.err
}

func (f *fakeProvider) UpdateEvent(_ context.Context, calendarID, eventID string, _ model.EventPatch) error {
	f.calls = append(f.calls, "update "+calendarID+" "+eventID)
	return f.err
}

func (f *fakeProvider) DeleteEvent(_ context.Context, calendarID, eventID string) error {
	f.calls = append(f.calls, "delete "+calendarID+" "+eventID)
	return f.err
}

var (
	_ Provider = (*Google)(nil)
	_ Provider = (*CalDAV)(nil)
	_ Provider = (*ICSFeed)(nil)
	_ Provider = (*Mux)(nil)
)
