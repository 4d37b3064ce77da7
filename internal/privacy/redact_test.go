package privacy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beekhof/calendar-availability/internal/model"
)

func sampleEvents() []model.CanonicalEvent {
	start := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	count := 5
	return []model.CanonicalEvent{
		{
			SourceEventID: "a",
			CalendarID:    "work",
			Title:         "Quarterly review",
			Start:         start,
			End:           start.Add(time.Hour),
			Location:      "Board room",
			Notes:         "bring slides",
		},
		{
			SourceEventID:   "b",
			CalendarID:      "home",
			Title:           "Therapy",
			Start:           start.AddDate(0, 0, 1),
			End:             start.AddDate(0, 0, 1).Add(time.Hour),
			IsAllDay:        true,
			Location:        "Clinic",
			RecurrenceRule:  "FREQ=WEEKLY;BYDAY=TU;COUNT=5",
			RecurrenceStart: &start,
			RecurrenceCount: &count,
		},
	}
}

func TestApply_BusyOnly(t *testing.T) {
	input := sampleEvents()

	out := Apply(input, model.BusyOnly)

	require.Len(t, out, len(input))
	for i, ev := range out {
		assert.Equal(t, BusyTitle, ev.Title)
		assert.Empty(t, ev.Location)
		assert.Empty(t, ev.Notes)

		assert.Equal(t, input[i].Start, ev.Start)
		assert.Equal(t, input[i].End, ev.End)
		assert.Equal(t, input[i].IsAllDay, ev.IsAllDay)
		assert.Equal(t, input[i].RecurrenceRule, ev.RecurrenceRule)
		assert.Equal(t, input[i].RecurrenceCount, ev.RecurrenceCount)
	}
	assert.Equal(t, sampleEvents(), input, "input must not be modified")
}

func TestApply_FullDetailsIsIdentity(t *testing.T) {
	input := sampleEvents()

	assert.Equal(t, input, Apply(input, model.FullDetails))
}

func TestApply_Idempotent(t *testing.T) {
	once := Apply(sampleEvents(), model.BusyOnly)

	assert.Equal(t, once, Apply(once, model.BusyOnly))
}

func TestApply_Nil(t *testing.T) {
	assert.Nil(t, Apply(nil, model.BusyOnly))
	assert.Nil(t, ApplyPerCalendar(nil, nil))
}

func TestApplyPerCalendar(t *testing.T) {
	out := ApplyPerCalendar(sampleEvents(), map[string]model.PrivacyMode{
		"work": model.FullDetails,
		"home": model.BusyOnly,
	})

	require.Len(t, out, 2)
	assert.Equal(t, "Quarterly review", out[0].Title)
	assert.Equal(t, "Board room", out[0].Location)
	assert.Equal(t, BusyTitle, out[1].Title)
	assert.Empty(t, out[1].Location)
}

func TestApplyPerCalendar_UnknownCalendarIsRedacted(t *testing.T) {
	out := ApplyPerCalendar(sampleEvents(), map[string]model.PrivacyMode{"home": model.FullDetails})

	assert.Equal(t, BusyTitle, out[0].Title)
	assert.Equal(t, "Therapy", out[1].Title)
}
