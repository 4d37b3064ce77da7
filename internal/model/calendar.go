package model

import (
	"encoding/json"
	"time"
)

// CalendarSource identifies where a linked calendar lives.
type CalendarSource string

const (
	SourceGoogle  CalendarSource = "GOOGLE"
	SourceOutlook CalendarSource = "OUTLOOK"
	SourceLocal   CalendarSource = "LOCAL"
)

// PrivacyMode controls how much of a calendar's events a partner may see.
type PrivacyMode string

const (
	FullDetails PrivacyMode = "FULL_DETAILS"
	BusyOnly    PrivacyMode = "BUSY_ONLY"
)

// LinkedCalendarConfig is the backend's record of one device calendar linked
// by a user. ID is the backend's identifier for the link.
type LinkedCalendarConfig struct {
	ID               string         `json:"id"`
	DeviceCalendarID string         `json:"deviceCalendarId"`
	CalendarName     string         `json:"calendarName"`
	Source           CalendarSource `json:"source"`
	Color            string         `json:"color,omitempty"`
	SyncEnabled      bool           `json:"syncEnabled"`
	PrivacyMode      PrivacyMode    `json:"privacyMode"`
	LastSyncedAt     *time.Time     `json:"lastSyncedAt,omitempty"`
}

// CalendarSettings is a partial update of a LinkedCalendarConfig.
type CalendarSettings struct {
	CalendarName *string      `json:"calendarName,omitempty"`
	Color        *string      `json:"color,omitempty"`
	SyncEnabled  *bool        `json:"syncEnabled,omitempty"`
	PrivacyMode  *PrivacyMode `json:"privacyMode,omitempty"`
}

// Interval is a half-open time range. Start is never after End.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Minutes returns the length of the interval in whole and fractional minutes.
func (i Interval) Minutes() float64 {
	return i.End.Sub(i.Start).Minutes()
}

// Contains reports whether other lies entirely within i.
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// AvailabilitySlot is a free interval. Its duration is always derived from the
// interval and never stored separately.
type AvailabilitySlot struct {
	Interval
}

// DurationMinutes returns the slot length in whole minutes.
func (s AvailabilitySlot) DurationMinutes() int {
	return int(s.End.Sub(s.Start) / time.Minute)
}

type slotJSON struct {
	Start           time.Time `json:"start"`
	End             time.Time `json:"end"`
	DurationMinutes int       `json:"durationMinutes"`
}

// MarshalJSON emits the derived durationMinutes alongside the interval.
func (s AvailabilitySlot) MarshalJSON() ([]byte, error) {
	return json.Marshal(slotJSON{Start: s.Start, End: s.End, DurationMinutes: s.DurationMinutes()})
}

// UnmarshalJSON reads the interval and ignores any transmitted duration.
func (s *AvailabilitySlot) UnmarshalJSON(data []byte) error {
	var raw slotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Interval = Interval{Start: raw.Start, End: raw.End}
	return nil
}
