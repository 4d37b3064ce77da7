package recurrence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/beekhof/calendar-availability/internal/model"
)

// wireDescriptor is the JSON shape some device providers report. endDate may
// be a full RFC 3339 timestamp or a plain date.
type wireDescriptor struct {
	Frequency       string `json:"frequency"`
	Interval        int    `json:"interval"`
	OccurrenceCount *int   `json:"occurrenceCount"`
	EndDate         string `json:"endDate"`
	DaysOfWeek      []int  `json:"daysOfWeek"`
	DaysOfMonth     []int  `json:"daysOfMonth"`
	MonthsOfYear    []int  `json:"monthsOfYear"`
	SetPositions    []int  `json:"setPositions"`
}

// ParseDescriptor normalizes a provider's raw recurrence value into a
// descriptor. It accepts a JSON object, a bare rule, an "RRULE:" line, or a
// multi-line recurrence block from which the RRULE line is taken. An empty
// value means "not recurring" and returns nil without error.
func ParseDescriptor(raw string) (*model.RecurrenceDescriptor, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	if strings.HasPrefix(raw, "{") {
		return parseJSONDescriptor(raw)
	}

	lines := strings.FieldsFunc(raw, func(r rune) bool { return r == '\n' || r == '\r' })
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if len(line) > len("RRULE:") && strings.EqualFold(line[:len("RRULE:")], "RRULE:") {
			return &model.RecurrenceDescriptor{Rule: line[len("RRULE:"):]}, nil
		}
	}

	if len(lines) == 1 && strings.Contains(raw, "=") && !strings.Contains(raw, ":") {
		return &model.RecurrenceDescriptor{Rule: raw}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrAmbiguous, raw)
}

// ParseDescriptorLines is ParseDescriptor for providers that report
// recurrence as a list of lines (RRULE, EXDATE, ...).
func ParseDescriptorLines(lines []string) (*model.RecurrenceDescriptor, error) {
	return ParseDescriptor(strings.Join(lines, "\n"))
}

func parseJSONDescriptor(raw string) (*model.RecurrenceDescriptor, error) {
	var w wireDescriptor
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAmbiguous, err)
	}

	d := &model.RecurrenceDescriptor{
		Frequency:       model.Frequency(strings.ToLower(w.Frequency)),
		Interval:        w.Interval,
		OccurrenceCount: w.OccurrenceCount,
		DaysOfWeek:      w.DaysOfWeek,
		DaysOfMonth:     w.DaysOfMonth,
		MonthsOfYear:    w.MonthsOfYear,
		SetPositions:    w.SetPositions,
	}

	if w.EndDate != "" {
		end, err := parseEndDate(w.EndDate)
		if err != nil {
			return nil, fmt.Errorf("%w: endDate %q", ErrAmbiguous, w.EndDate)
		}
		d.EndDate = end
	}

	return d, nil
}

func parseEndDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}
