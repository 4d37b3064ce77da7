package recurrence

import (
	"strings"
	"time"

	"github.com/samber/mo"
)

// Infer repairs a weekly rule that does not say which weekdays it repeats on.
//
// Rules that are not weekly, or that already carry BYDAY, are returned
// unchanged. Otherwise BYDAY is appended from days (canonical tokens, already
// ordered) or, when days is empty, from the weekday of firstStart. When the
// rule has neither UNTIL nor COUNT and lastStart is present, UNTIL is appended
// as the UTC date of lastStart. Existing components are never modified.
func Infer(rule string, firstStart time.Time, days []string, lastStart mo.Option[time.Time]) string {
	if !IsWeekly(rule) || hasComponent(rule, "BYDAY") {
		return rule
	}

	byDay := strings.Join(days, ",")
	if len(days) == 0 {
		byDay = WeekdayToken(firstStart.Weekday())
	}

	out := strings.TrimRight(rule, ";") + ";BYDAY=" + byDay

	if !hasComponent(rule, "UNTIL") && !hasComponent(rule, "COUNT") {
		if last, ok := lastStart.Get(); ok {
			out += ";UNTIL=" + last.UTC().Format(untilDateLayout)
		}
	}

	return out
}
