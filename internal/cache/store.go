// Package cache persists per-calendar sync state on the local disk.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/beekhof/calendar-availability/internal/model"
)

// Entry is the cached state of one linked device calendar.
type Entry struct {
	CalendarID   string            `json:"calendarId"`
	CalendarName string            `json:"calendarName"`
	SyncEnabled  bool              `json:"syncEnabled"`
	PrivacyMode  model.PrivacyMode `json:"privacyMode"`
	LastSync     *time.Time        `json:"lastSync,omitempty"`
}

type fileContents struct {
	// Calendars is keyed by user ID, then device calendar ID.
	Calendars        map[string]map[string]Entry `json:"calendars"`
	LastPeriodicSync *time.Time                  `json:"lastPeriodicSync,omitempty"`
}

// FileStore is a JSON file implementation of the sync cache. It is safe for
// concurrent use within one process.
type FileStore struct {
	Path string

	mu sync.Mutex
}

// NewFileStore creates a FileStore backed by the file at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Get returns the entry for (userID, deviceCalendarID).
// Returns nil, nil if there is no entry.
func (s *FileStore) Get(userID, deviceCalendarID string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return nil, err
	}
	entry, ok := contents.Calendars[userID][deviceCalendarID]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Put stores the entry for (userID, deviceCalendarID).
func (s *FileStore) Put(userID, deviceCalendarID string, entry Entry) error {
	return s.update(func(c *fileContents) {
		if c.Calendars[userID] == nil {
			c.Calendars[userID] = make(map[string]Entry)
		}
		c.Calendars[userID][deviceCalendarID] = entry
	})
}

// Delete removes the entry for (userID, deviceCalendarID). Deleting a missing
// entry is not an error.
func (s *FileStore) Delete(userID, deviceCalendarID string) error {
	return s.update(func(c *fileContents) {
		delete(c.Calendars[userID], deviceCalendarID)
		if len(c.Calendars[userID]) == 0 {
			delete(c.Calendars, userID)
		}
	})
}

// LastPeriodicSync returns the time of the last completed periodic sync, or
// nil if none was recorded.
func (s *FileStore) LastPeriodicSync() (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return nil, err
	}
	return contents.LastPeriodicSync, nil
}

// SetLastPeriodicSync records the time of a completed periodic sync.
func (s *FileStore) SetLastPeriodicSync(t time.Time) error {
	return s.update(func(c *fileContents) {
		c.LastPeriodicSync = &t
	})
}

func (s *FileStore) update(mutate func(*fileContents)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := s.load()
	if err != nil {
		return err
	}
	mutate(contents)
	return s.save(contents)
}

// load reads the cache file. A missing file is an empty cache.
func (s *FileStore) load() (*fileContents, error) {
	contents := &fileContents{}
	data, err := os.ReadFile(s.Path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, contents); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cache file: %w", err)
		}
	}
	if contents.Calendars == nil {
		contents.Calendars = make(map[string]map[string]Entry)
	}
	return contents, nil
}

// save replaces the cache file atomically.
func (s *FileStore) save(contents *fileContents) error {
	data, err := json.MarshalIndent(contents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to set cache file mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}
	return nil
}
