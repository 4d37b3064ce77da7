package calendar

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/beekhof/calendar-availability/internal/model"
)

// Mux routes device calendar IDs of the form "<provider>:<calendar id>" to
// registered providers. Occurrences it returns carry the full device ID.
type Mux struct {
	providers map[string]Provider
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{providers: make(map[string]Provider)}
}

// Register adds p under name, replacing any provider of the same name.
func (m *Mux) Register(name string, p Provider) {
	m.providers[name] = p
}

// Names returns the registered provider names in sorted order.
func (m *Mux) Names() []string {
	names := make([]string, 0, len(m.providers))
	for name := range m.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Mux) resolve(deviceCalendarID string) (Provider, string, error) {
	name, calendarID, ok := strings.Cut(deviceCalendarID, ":")
	if !ok || calendarID == "" {
		return nil, "", fmt.Errorf("invalid device calendar ID %q: expected <provider>:<calendar id>", deviceCalendarID)
	}
	p, ok := m.providers[name]
	if !ok {
		return nil, "", fmt.Errorf("no calendar provider named %q", name)
	}
	return p, calendarID, nil
}

// ListOccurrences implements Provider.
func (m *Mux) ListOccurrences(ctx context.Context, deviceCalendarID string, start, end time.Time) ([]model.RawOccurrence, error) {
	p, calendarID, err := m.resolve(deviceCalendarID)
	if err != nil {
		return nil, err
	}
	occurrences, err := p.ListOccurrences(ctx, calendarID, start, end)
	if err != nil {
		return nil, err
	}
	for i := range occurrences {
		occurrences[i].CalendarID = deviceCalendarID
	}
	return occurrences, nil
}

// CreateEvent implements Provider.
func (m *Mux) CreateEvent(ctx context.Context, deviceCalendarID string, draft model.EventDraft) (string, error) {
	p, calendarID, err := m.resolve(deviceCalendarID)
	if err != nil {
		return "", err
	}
	return p.CreateEvent(ctx, calendarID, draft)
}

// UpdateEvent implements Provider.
func (m *Mux) UpdateEvent(ctx context.Context, deviceCalendarID, eventID string, patch model.EventPatch) error {
	p, calendarID, err := m.resolve(deviceCalendarID)
	if err != nil {
		return err
	}
	return p.UpdateEvent(ctx, calendarID, eventID, patch)
}

// DeleteEvent implements Provider.
func (m *Mux) DeleteEvent(ctx context.Context, deviceCalendarID, eventID string) error {
	p, calendarID, err := m.resolve(deviceCalendarID)
	if err != nil {
		return err
	}
	return p.DeleteEvent(ctx, calendarID, eventID)
}
