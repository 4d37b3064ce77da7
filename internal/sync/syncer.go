// Package sync pushes the events of linked device calendars to the backend
// store, one calendar at a time.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/beekhof/calendar-availability/internal/backend"
	"github.com/beekhof/calendar-availability/internal/cache"
	"github.com/beekhof/calendar-availability/internal/calendar"
	"github.com/beekhof/calendar-availability/internal/model"
	"github.com/beekhof/calendar-availability/internal/occurrence"
)

// ErrStaleCalendar reports that the backend no longer knows a linked calendar.
var ErrStaleCalendar = errors.New("linked calendar is no longer known to the backend")

// Backend is the part of the backend store the engine writes to.
type Backend interface {
	ListLinkedCalendars(ctx context.Context, userID string) ([]model.LinkedCalendarConfig, error)
	SubmitSyncBatch(ctx context.Context, userID, calendarID string, events []model.EventPayload) (model.SyncSummary, error)
}

// Cache holds local per-calendar sync state.
type Cache interface {
	Get(userID, deviceCalendarID string) (*cache.Entry, error)
	Put(userID, deviceCalendarID string, entry cache.Entry) error
	Delete(userID, deviceCalendarID string) error
	SetLastPeriodicSync(t time.Time) error
}

// Config tunes an Engine. Zero values select the defaults.
type Config struct {
	// MonthsPast and MonthsAhead bound the periodic sync window around now.
	// When both are zero the window is one month back and two months ahead.
	MonthsPast  int
	MonthsAhead int

	Logger *slog.Logger
	// OnCalendarError is called for every calendar that fails during a
	// periodic pass.
	OnCalendarError func(cfg model.LinkedCalendarConfig, err error)
	Now             func() time.Time
}

// Engine handles the synchronization of device calendars to the backend.
type Engine struct {
	provider calendar.Provider
	backend  Backend
	cache    Cache
	dedupe   *occurrence.Deduplicator

	monthsPast  int
	monthsAhead int
	logger      *slog.Logger
	onError     func(model.LinkedCalendarConfig, error)
	now         func() time.Time
}

// NewEngine creates a new Engine instance.
func NewEngine(provider calendar.Provider, backend Backend, store Cache, cfg Config) *Engine {
	if cfg.MonthsPast == 0 && cfg.MonthsAhead == 0 {
		cfg.MonthsPast, cfg.MonthsAhead = 1, 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{
		provider:    provider,
		backend:     backend,
		cache:       store,
		dedupe:      occurrence.NewDeduplicator(cfg.Logger),
		monthsPast:  cfg.MonthsPast,
		monthsAhead: cfg.MonthsAhead,
		logger:      cfg.Logger,
		onError:     cfg.OnCalendarError,
		now:         cfg.Now,
	}
}

func emptySummary() model.SyncSummary {
	return model.SyncSummary{Conflicts: []string{}}
}

// SyncOneCalendar pushes the events of deviceCalendarID within
// [windowStart, windowEnd] to the backend calendar externalCalendarID.
//
// A backend that cannot be reached yields an empty summary and no error,
// unless ctx is done, in which case ctx's error is returned. A backend that no
// longer knows the calendar yields ErrStaleCalendar and the calendar's cache
// entry is dropped.
func (e *Engine) SyncOneCalendar(ctx context.Context, userID, externalCalendarID, deviceCalendarID string, windowStart, windowEnd time.Time) (model.SyncSummary, error) {
	return e.syncCalendar(ctx, userID, model.LinkedCalendarConfig{
		ID:               externalCalendarID,
		DeviceCalendarID: deviceCalendarID,
	}, windowStart, windowEnd)
}

func (e *Engine) syncCalendar(ctx context.Context, userID string, cfg model.LinkedCalendarConfig, windowStart, windowEnd time.Time) (model.SyncSummary, error) {
	logger := e.logger.With("user", userID, "calendar", cfg.ID, "deviceCalendar", cfg.DeviceCalendarID)

	occurrences, err := e.provider.ListOccurrences(ctx, cfg.DeviceCalendarID, windowStart, windowEnd)
	if err != nil {
		return emptySummary(), fmt.Errorf("failed to list occurrences of %s: %w", cfg.DeviceCalendarID, err)
	}
	if len(occurrences) == 0 {
		logger.Debug("no occurrences in window")
		return emptySummary(), nil
	}

	events := e.dedupe.Deduplicate(occurrences)
	payloads := make([]model.EventPayload, 0, len(events))
	for _, ev := range events {
		p := model.NewEventPayload(ev)
		p.CalendarID = cfg.ID
		payloads = append(payloads, p)
	}

	summary, err := e.backend.SubmitSyncBatch(ctx, userID, cfg.ID, payloads)
	switch {
	case err != nil && ctx.Err() != nil:
		return emptySummary(), fmt.Errorf("sync of %s interrupted: %w (%v)", cfg.DeviceCalendarID, ctx.Err(), err)
	case errors.Is(err, backend.ErrTransport):
		logger.Warn("backend unreachable, skipping calendar", "error", err)
		return emptySummary(), nil
	case backend.IsNotFound(err):
		if derr := e.cache.Delete(userID, cfg.DeviceCalendarID); derr != nil {
			logger.Warn("failed to drop stale calendar from cache", "error", derr)
		}
		return emptySummary(), fmt.Errorf("%w: %w", ErrStaleCalendar, err)
	case err != nil:
		return emptySummary(), err
	}

	e.recordSync(userID, cfg, logger)
	logger.Info("synced calendar",
		"occurrences", len(occurrences),
		"events", len(payloads),
		"created", summary.Created,
		"updated", summary.Updated,
		"conflicts", len(summary.Conflicts))
	return summary, nil
}

// recordSync stores the sync time, keeping cached metadata the caller does
// not know about.
func (e *Engine) recordSync(userID string, cfg model.LinkedCalendarConfig, logger *slog.Logger) {
	// A calendar that was just synced is enabled; new entries start redacted
	// until the backend reports a privacy mode.
	entry := cache.Entry{SyncEnabled: true, PrivacyMode: model.BusyOnly}
	if existing, err := e.cache.Get(userID, cfg.DeviceCalendarID); err != nil {
		logger.Warn("failed to read cache entry", "error", err)
	} else if existing != nil {
		entry = *existing
	}

	entry.CalendarID = cfg.ID
	if cfg.CalendarName != "" {
		entry.CalendarName = cfg.CalendarName
	}
	if cfg.PrivacyMode != "" {
		entry.PrivacyMode = cfg.PrivacyMode
		entry.SyncEnabled = cfg.SyncEnabled
	}
	now := e.now().UTC()
	entry.LastSync = &now

	if err := e.cache.Put(userID, cfg.DeviceCalendarID, entry); err != nil {
		logger.Warn("failed to update cache entry", "error", err)
	}
}

// Window returns the periodic sync window around now.
func (e *Engine) Window() (time.Time, time.Time) {
	now := e.now()
	return now.AddDate(0, -e.monthsPast, 0), now.AddDate(0, e.monthsAhead, 0)
}

// PerformPeriodicSync syncs every sync-enabled calendar linked by userID, one
// after another. A failing calendar is logged and does not stop the others;
// the only error returned is a failure to list the linked calendars.
func (e *Engine) PerformPeriodicSync(ctx context.Context, userID string) error {
	configs, err := e.backend.ListLinkedCalendars(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list linked calendars: %w", err)
	}

	var enabled []model.LinkedCalendarConfig
	for _, cfg := range configs {
		if cfg.SyncEnabled {
			enabled = append(enabled, cfg)
		}
	}
	if len(enabled) == 0 {
		e.logger.Debug("no sync-enabled calendars", "user", userID)
		return nil
	}

	windowStart, windowEnd := e.Window()
	e.logger.Info("starting periodic sync",
		"user", userID,
		"calendars", len(enabled),
		"from", windowStart.Format(time.DateOnly),
		"to", windowEnd.Format(time.DateOnly))

	failed := 0
	for _, cfg := range enabled {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, err := e.syncCalendar(ctx, userID, cfg, windowStart, windowEnd); err != nil {
			failed++
			if errors.Is(err, ErrStaleCalendar) {
				e.logger.Warn("dropped stale calendar", "calendar", cfg.ID, "error", err)
			} else {
				e.logger.Error("calendar sync failed", "calendar", cfg.ID, "name", cfg.CalendarName, "error", err)
			}
			if e.onError != nil {
				e.onError(cfg, err)
			}
		}
	}

	if err := e.cache.SetLastPeriodicSync(e.now().UTC()); err != nil {
		e.logger.Warn("failed to record periodic sync time", "error", err)
	}
	e.logger.Info("periodic sync finished", "user", userID, "calendars", len(enabled), "failed", failed)
	return nil
}
