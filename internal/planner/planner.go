// Package planner answers availability questions from the events stored in
// the backend.
package planner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/beekhof/calendar-availability/internal/availability"
	"github.com/beekhof/calendar-availability/internal/model"
	"github.com/beekhof/calendar-availability/internal/privacy"
)

// Backend is the read side of the backend store.
type Backend interface {
	ListLinkedCalendars(ctx context.Context, userID string) ([]model.LinkedCalendarConfig, error)
	FetchEvents(ctx context.Context, userID string, start, end time.Time) ([]model.CanonicalEvent, error)
}

// Planner computes visible events and free time for users.
type Planner struct {
	backend Backend
	logger  *slog.Logger
}

// New creates a Planner. A nil logger discards output.
func New(backend Backend, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Planner{backend: backend, logger: logger}
}

// VisibleEvents returns ownerID's events in [start, end] as a partner may see
// them: every event is redacted according to its calendar's privacy mode.
func (p *Planner) VisibleEvents(ctx context.Context, ownerID string, start, end time.Time) ([]model.CanonicalEvent, error) {
	configs, err := p.backend.ListLinkedCalendars(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list calendars of %s: %w", ownerID, err)
	}
	events, err := p.backend.FetchEvents(ctx, ownerID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events of %s: %w", ownerID, err)
	}

	modes := make(map[string]model.PrivacyMode, len(configs))
	for _, cfg := range configs {
		modes[cfg.ID] = cfg.PrivacyMode
	}
	return privacy.ApplyPerCalendar(events, modes), nil
}

// FreeSlots returns the gaps of at least minMinutes in userID's schedule
// within [start, end].
func (p *Planner) FreeSlots(ctx context.Context, userID string, start, end time.Time, minMinutes int) ([]model.Interval, error) {
	events, err := p.backend.FetchEvents(ctx, userID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch events of %s: %w", userID, err)
	}

	busy := availability.BusyIntervals(events, start, end)
	free := availability.FindFreeSlots(busy, start, end, minMinutes)
	p.logger.Debug("computed free slots", "user", userID, "events", len(events), "busy", len(busy), "free", len(free))
	return free, nil
}

// MutualFreeSlots returns the pairwise overlaps of at least minMinutes
// between the free time of userA and userB. Overlapping results are not
// merged.
func (p *Planner) MutualFreeSlots(ctx context.Context, userA, userB string, start, end time.Time, minMinutes int) ([]model.Interval, error) {
	freeA, err := p.FreeSlots(ctx, userA, start, end, minMinutes)
	if err != nil {
		return nil, err
	}
	freeB, err := p.FreeSlots(ctx, userB, start, end, minMinutes)
	if err != nil {
		return nil, err
	}
	return availability.FindMutualFreeSlots(freeA, freeB, minMinutes), nil
}
