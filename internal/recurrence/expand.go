package recurrence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// DefaultMaxOccurrences caps how many instants a single series may expand to.
const DefaultMaxOccurrences = 5000

// Occurrences expands rule, anchored at start, into the instants that begin
// within [windowStart, windowEnd]. A date-only UNTIL includes its whole day.
// At most limit instants are returned; limit <= 0 uses DefaultMaxOccurrences.
func Occurrences(rule string, start, windowStart, windowEnd time.Time, limit int) ([]time.Time, error) {
	if windowEnd.Before(windowStart) {
		return nil, errors.New("recurrence: window end is before window start")
	}
	if limit <= 0 {
		limit = DefaultMaxOccurrences
	}

	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rule %q: %w", rule, err)
	}
	opt.Dtstart = start
	if d := Decompose(rule, start); d.Until != nil {
		opt.Until = *d.Until
	}

	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule %q: %w", rule, err)
	}

	times := r.Between(windowStart, windowEnd, true)
	if len(times) > limit {
		times = times[:limit]
	}
	return times, nil
}

// BoundCount rewrites a COUNT-bounded rule into the equivalent UNTIL-bounded
// rule for a series that starts at start. The result stays correct when the
// series is later re-anchored at a later occurrence. Rules without COUNT are
// returned unchanged.
func BoundCount(rule string, start time.Time) (string, error) {
	if !hasComponent(rule, "COUNT") {
		return rule, nil
	}

	opt, err := rrule.StrToROption(rule)
	if err != nil {
		return "", fmt.Errorf("failed to parse rule %q: %w", rule, err)
	}
	if opt.Count <= 0 {
		return "", fmt.Errorf("rule %q has an invalid COUNT", rule)
	}
	opt.Dtstart = start
	r, err := rrule.NewRRule(*opt)
	if err != nil {
		return "", fmt.Errorf("failed to build rule %q: %w", rule, err)
	}
	all := r.All()
	if len(all) == 0 {
		return "", fmt.Errorf("rule %q has no occurrences", rule)
	}
	until := "UNTIL=" + all[len(all)-1].UTC().Format(untilDateTimeLayout)

	parts := make([]string, 0, len(components(rule)))
	for _, c := range components(rule) {
		switch c.key {
		case "COUNT":
			parts = append(parts, until)
		case "UNTIL":
		default:
			parts = append(parts, c.key+"="+c.value)
		}
	}
	return strings.Join(parts, ";"), nil
}
