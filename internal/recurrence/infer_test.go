package recurrence

import (
	"testing"
	"time"

	"github.com/samber/mo"
	"github.com/stretchr/testify/assert"
)

// 2024-01-01 is a Monday.
var monday = time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC)

func TestInfer_UnchangedRules(t *testing.T) {
	last := mo.Some(monday.AddDate(0, 1, 0))

	rules := []string{
		"FREQ=DAILY",
		"FREQ=MONTHLY;BYMONTHDAY=1",
		"FREQ=WEEKLY;BYDAY=TU",
		"FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,TH;COUNT=4",
	}
	for _, rule := range rules {
		assert.Equal(t, rule, Infer(rule, monday, []string{"MO", "WE"}, last), rule)
	}
}

func TestInfer_UsesSuppliedTokens(t *testing.T) {
	last := time.Date(2024, 1, 24, 18, 0, 0, 0, time.UTC)

	got := Infer("FREQ=WEEKLY", monday, []string{"MO", "WE"}, mo.Some(last))

	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO,WE;UNTIL=20240124", got)
}

func TestInfer_FallsBackToFirstStartWeekday(t *testing.T) {
	tuesday := monday.AddDate(0, 0, 1)

	got := Infer("FREQ=WEEKLY;INTERVAL=2", tuesday, nil, mo.None[time.Time]())

	assert.Equal(t, "FREQ=WEEKLY;INTERVAL=2;BYDAY=TU", got)
}

func TestInfer_DoesNotAddUntilWhenBounded(t *testing.T) {
	last := mo.Some(monday.AddDate(0, 0, 21))

	assert.Equal(t, "FREQ=WEEKLY;COUNT=4;BYDAY=MO",
		Infer("FREQ=WEEKLY;COUNT=4", monday, []string{"MO"}, last))
	assert.Equal(t, "FREQ=WEEKLY;UNTIL=20240301;BYDAY=MO",
		Infer("FREQ=WEEKLY;UNTIL=20240301", monday, []string{"MO"}, last))
}

func TestInfer_UntilUsesUTCDate(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// Local Thursday morning is still Wednesday in UTC.
	last := time.Date(2024, 1, 25, 8, 0, 0, 0, loc)

	got := Infer("FREQ=WEEKLY", monday, []string{"MO"}, mo.Some(last))

	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO;UNTIL=20240124", got)
}

func TestInfer_WeeklyAlwaysGainsByDay(t *testing.T) {
	for offset := range 7 {
		start := monday.AddDate(0, 0, offset)
		got := Infer("FREQ=WEEKLY", start, nil, mo.None[time.Time]())
		assert.True(t, hasComponent(got, "BYDAY"), got)
		assert.Equal(t, WeekdayToken(start.Weekday()), mustLookup(t, got, "BYDAY"))
	}
}

func TestInfer_TrailingSeparator(t *testing.T) {
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO", Infer("FREQ=WEEKLY;", monday, nil, mo.None[time.Time]()))
}

func mustLookup(t *testing.T, rule, key string) string {
	t.Helper()
	v, ok := lookup(rule, key)
	if !ok {
		t.Fatalf("rule %q has no %s", rule, key)
	}
	return v
}
