// Package recurrence converts recurrence descriptors into RRULE strings,
// repairs incomplete weekly rules and expands rules into concrete instants.
package recurrence

import (
	"errors"
	"strings"
	"time"
)

// ErrAmbiguous is returned when recurrence information cannot be interpreted.
// Callers treat it as "no recurrence" rather than failing a sync.
var ErrAmbiguous = errors.New("recurrence: ambiguous or malformed descriptor")

const (
	untilDateLayout     = "20060102"
	untilDateTimeLayout = "20060102T150405Z"
)

// dayTokens is indexed by time.Weekday (Sunday=0).
var dayTokens = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

// WeekdayToken returns the two-letter rule token for w.
func WeekdayToken(w time.Weekday) string {
	return dayTokens[w]
}

// ordinalToken maps a 1=Sunday..7=Saturday ordinal to its token.
func ordinalToken(ordinal int) (string, bool) {
	if ordinal < 1 || ordinal > 7 {
		return "", false
	}
	return dayTokens[ordinal-1], true
}

type component struct {
	key   string
	value string
}

// components splits a rule into its KEY=VALUE parts in order. Empty and
// malformed parts are skipped.
func components(rule string) []component {
	var out []component
	for _, part := range strings.Split(rule, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || key == "" {
			continue
		}
		out = append(out, component{key: strings.ToUpper(key), value: value})
	}
	return out
}

func lookup(rule, key string) (string, bool) {
	for _, c := range components(rule) {
		if c.key == key {
			return c.value, true
		}
	}
	return "", false
}

func hasComponent(rule, key string) bool {
	_, ok := lookup(rule, key)
	return ok
}

// IsWeekly reports whether rule repeats weekly.
func IsWeekly(rule string) bool {
	return strings.Contains(strings.ToUpper(rule), "FREQ=WEEKLY")
}
