package calendar

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beekhof/calendar-availability/internal/availability"
	"github.com/beekhof/calendar-availability/internal/model"
	"github.com/beekhof/calendar-availability/internal/occurrence"
)

func TestExpandSeries_SingleEvents(t *testing.T) {
	events := []seriesEvent{
		{UID: "in", Start: utc(1, 5, 9, 0), End: utc(1, 5, 10, 0)},
		{UID: "out", Start: utc(2, 5, 9, 0), End: utc(2, 5, 10, 0)},
		{UID: "straddle", Start: utc(1, 31, 23, 0), End: utc(2, 1, 1, 0)},
		{UID: "reminder", Start: utc(1, 6, 8, 0), End: utc(1, 6, 8, 0)},
	}

	occ := expandSeries(context.Background(), "cal", events, utc(1, 1, 0, 0), utc(2, 1, 0, 0), discardLogger())

	require.Len(t, occ, 3)
	assert.Equal(t, "in", occ[0].SourceEventID)
	assert.Equal(t, "straddle", occ[1].SourceEventID)
	assert.Equal(t, "reminder", occ[2].SourceEventID)
	assert.Nil(t, occ[0].Recurrence)
	assert.Equal(t, "cal", occ[0].CalendarID)
}

func TestExpandSeries_RecurringWithExceptions(t *testing.T) {
	recurrenceID := utc(1, 10, 18, 0)
	events := []seriesEvent{
		{
			UID:     "gym",
			Title:   "Gym",
			Start:   utc(1, 1, 18, 0),
			End:     utc(1, 1, 19, 0),
			Rule:    "FREQ=WEEKLY;BYDAY=MO,WE;COUNT=6",
			ExDates: []time.Time{utc(1, 8, 18, 0)},
		},
		{
			UID:          "gym",
			Title:        "Gym (late)",
			Start:        utc(1, 10, 20, 0),
			End:          utc(1, 10, 21, 0),
			RecurrenceID: &recurrenceID,
		},
	}

	occ := expandSeries(context.Background(), "cal", events, utc(1, 1, 0, 0), utc(2, 1, 0, 0), discardLogger())

	require.Len(t, occ, 5)
	var starts []time.Time
	for _, o := range occ {
		starts = append(starts, o.Start)
		assert.Equal(t, "gym", o.SourceEventID)
		require.NotNil(t, o.Recurrence)
		assert.Equal(t, &model.RecurrenceDescriptor{Rule: "FREQ=WEEKLY;BYDAY=MO,WE;UNTIL=20240117T180000Z"}, o.Recurrence)
	}
	assert.Equal(t, []time.Time{
		utc(1, 1, 18, 0), utc(1, 3, 18, 0), utc(1, 10, 20, 0), utc(1, 15, 18, 0), utc(1, 17, 18, 0),
	}, starts)
	assert.Equal(t, "Gym (late)", occ[2].Title)
}

func TestExpandSeries_OverrideMovedIntoWindow(t *testing.T) {
	recurrenceID := utc(1, 8, 9, 0)
	events := []seriesEvent{
		{UID: "s", Start: utc(1, 1, 9, 0), End: utc(1, 1, 10, 0), Rule: "FREQ=WEEKLY"},
		{UID: "s", Start: utc(1, 20, 9, 0), End: utc(1, 20, 10, 0), RecurrenceID: &recurrenceID},
	}

	occ := expandSeries(context.Background(), "cal", events, utc(1, 16, 0, 0), utc(1, 21, 0, 0), discardLogger())

	require.Len(t, occ, 1)
	assert.Equal(t, utc(1, 20, 9, 0), occ[0].Start)
}

func TestExpandSeries_BadRuleFallsBackToFirstInstance(t *testing.T) {
	events := []seriesEvent{{UID: "odd", Start: utc(1, 2, 9, 0), End: utc(1, 2, 10, 0), Rule: "FREQ=SOMETIMES"}}

	occ := expandSeries(context.Background(), "cal", events, utc(1, 1, 0, 0), utc(2, 1, 0, 0), discardLogger())

	require.Len(t, occ, 1)
	assert.Equal(t, utc(1, 2, 9, 0), occ[0].Start)
}

func TestExpandSeries_CountSeriesStartedBeforeWindow(t *testing.T) {
	events := []seriesEvent{{
		UID:   "standup",
		Start: utc(1, 1, 9, 0),
		End:   utc(1, 1, 9, 15),
		Rule:  "FREQ=DAILY;COUNT=3",
	}}
	windowStart, windowEnd := utc(1, 3, 0, 0), utc(1, 10, 0, 0)

	occ := expandSeries(context.Background(), "cal", events, windowStart, windowEnd, discardLogger())

	require.Len(t, occ, 1)
	assert.Equal(t, utc(1, 3, 9, 0), occ[0].Start)
	assert.Equal(t, "FREQ=DAILY;UNTIL=20240103T090000Z", occ[0].Recurrence.Rule)

	// The series re-anchored at its last instance must still end there.
	canonical := occurrence.NewDeduplicator(nil).Deduplicate(occ)
	busy := availability.BusyIntervals(canonical, windowStart, windowEnd)
	assert.Equal(t, []model.Interval{{Start: utc(1, 3, 9, 0), End: utc(1, 3, 9, 15)}}, busy)
}

func TestBoundDescriptor_StructuredCount(t *testing.T) {
	count := 2
	desc := &model.RecurrenceDescriptor{Frequency: model.Weekly, OccurrenceCount: &count}

	got := boundDescriptor(context.Background(), desc, utc(1, 1, 9, 0), "review", discardLogger())
	assert.Equal(t, &model.RecurrenceDescriptor{Rule: "FREQ=WEEKLY;UNTIL=20240108T090000Z"}, got)

	untouched := &model.RecurrenceDescriptor{Rule: "FREQ=WEEKLY;UNTIL=20240301T000000Z"}
	assert.Same(t, untouched, boundDescriptor(context.Background(), untouched, utc(1, 1, 9, 0), "review", discardLogger()))

	assert.Nil(t, boundDescriptor(context.Background(), &model.RecurrenceDescriptor{Rule: "FREQ=DAILY;COUNT=0"}, utc(1, 1, 9, 0), "bad", discardLogger()))
}
