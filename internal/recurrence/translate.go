package recurrence

import (
	"slices"
	"strconv"
	"strings"

	"github.com/samber/mo"

	"github.com/beekhof/calendar-availability/internal/model"
)

// Translate converts a recurrence descriptor into a rule string such as
// "FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE". A descriptor that already carries a
// rule containing FREQ= is returned unchanged. Missing frequency or any
// malformed field yields None; Translate never fails.
func Translate(d *model.RecurrenceDescriptor) mo.Option[string] {
	if d == nil {
		return mo.None[string]()
	}

	if d.Rule != "" {
		if strings.Contains(d.Rule, "FREQ=") {
			return mo.Some(d.Rule)
		}
		return mo.None[string]()
	}

	var freq string
	switch model.Frequency(strings.ToLower(string(d.Frequency))) {
	case model.Daily, model.Weekly, model.Monthly, model.Yearly:
		freq = strings.ToUpper(string(d.Frequency))
	default:
		return mo.None[string]()
	}

	if d.Interval < 0 {
		return mo.None[string]()
	}

	parts := []string{"FREQ=" + freq}

	// INTERVAL=1 is the implicit default.
	if d.Interval > 1 {
		parts = append(parts, "INTERVAL="+strconv.Itoa(d.Interval))
	}

	if d.OccurrenceCount != nil {
		if *d.OccurrenceCount < 1 {
			return mo.None[string]()
		}
		parts = append(parts, "COUNT="+strconv.Itoa(*d.OccurrenceCount))
	}

	if !d.EndDate.IsZero() {
		parts = append(parts, "UNTIL="+d.EndDate.UTC().Format(untilDateLayout))
	}

	if len(d.DaysOfWeek) > 0 {
		tokens := make([]string, 0, len(d.DaysOfWeek))
		for _, ordinal := range sortedSet(d.DaysOfWeek) {
			token, ok := ordinalToken(ordinal)
			if !ok {
				return mo.None[string]()
			}
			tokens = append(tokens, token)
		}
		parts = append(parts, "BYDAY="+strings.Join(tokens, ","))
	}

	lists := []struct {
		key      string
		values   []int
		min, max int
	}{
		{"BYMONTHDAY", d.DaysOfMonth, -31, 31},
		{"BYMONTH", d.MonthsOfYear, 1, 12},
		{"BYSETPOS", d.SetPositions, -366, 366},
	}
	for _, l := range lists {
		if len(l.values) == 0 {
			continue
		}
		values := sortedSet(l.values)
		for _, v := range values {
			if v == 0 || v < l.min || v > l.max {
				return mo.None[string]()
			}
		}
		parts = append(parts, l.key+"="+joinInts(values))
	}

	return mo.Some(strings.Join(parts, ";"))
}

func sortedSet(values []int) []int {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

func joinInts(values []int) string {
	strs := make([]string, len(values))
	for i, v := range values {
		strs[i] = strconv.Itoa(v)
	}
	return strings.Join(strs, ",")
}
