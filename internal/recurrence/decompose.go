package recurrence

import (
	"strconv"
	"time"
)

// Decomposition holds the recurrence fields the backend stores next to the
// rule string.
type Decomposition struct {
	Start *time.Time
	Until *time.Time
	Count *int
}

// Decompose extracts the recurrence start, end boundary and count from rule.
// A date-only UNTIL covers the whole day and becomes 23:59:59 UTC of that
// date. Absent or unparseable components are left nil.
func Decompose(rule string, start time.Time) Decomposition {
	var d Decomposition
	if rule == "" {
		return d
	}

	s := start
	d.Start = &s

	if value, ok := lookup(rule, "UNTIL"); ok {
		if until, ok := parseUntil(value); ok {
			d.Until = &until
		}
	}

	if value, ok := lookup(rule, "COUNT"); ok {
		if n, err := strconv.Atoi(value); err == nil {
			d.Count = &n
		}
	}

	return d
}

func parseUntil(value string) (time.Time, bool) {
	if len(value) == len(untilDateLayout) {
		day, err := time.Parse(untilDateLayout, value)
		if err != nil {
			return time.Time{}, false
		}
		return endOfDay(day), true
	}
	t, err := time.Parse(untilDateTimeLayout, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func endOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 0, time.UTC)
}
