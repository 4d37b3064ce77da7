// Package config loads the settings of the calendar sync daemon.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// GoogleCredentials represents the structure of Google OAuth credentials JSON file.
type GoogleCredentials struct {
	Installed struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"installed"`
	Web struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	} `json:"web"`
}

// LoadGoogleCredentials loads Google OAuth credentials from a JSON file.
func LoadGoogleCredentials(path string) (clientID, clientSecret string, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("failed to read credentials file: %w", err)
	}

	var creds GoogleCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return "", "", fmt.Errorf("failed to parse credentials file: %w", err)
	}

	// Try "installed" first (for desktop apps), then "web"
	if creds.Installed.ClientID != "" {
		return creds.Installed.ClientID, creds.Installed.ClientSecret, nil
	}
	if creds.Web.ClientID != "" {
		return creds.Web.ClientID, creds.Web.ClientSecret, nil
	}

	return "", "", fmt.Errorf("no client_id found in credentials file (expected 'installed' or 'web' section)")
}

// Provider types.
const (
	ProviderGoogle = "google"
	ProviderCalDAV = "caldav"
	ProviderICS    = "ics"
)

// Provider configures one calendar provider. Linked calendars address it as
// "<name>:<calendar id>".
type Provider struct {
	Name      string `json:"name" yaml:"name"`
	Type      string `json:"type" yaml:"type"`
	TokenPath string `json:"token_path,omitempty" yaml:"token_path,omitempty"` // Google: path to OAuth token file

	// CalDAV specific fields
	ServerURL string `json:"server_url,omitempty" yaml:"server_url,omitempty"` // e.g. "https://caldav.icloud.com"
	Username  string `json:"username,omitempty" yaml:"username,omitempty"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"` // App-specific password

	// ICS feed URL
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// Config holds the configuration for the calendar sync daemon.
type Config struct {
	UserID                string     `json:"user_id" yaml:"user_id"`
	BackendURL            string     `json:"backend_url" yaml:"backend_url"`
	BackendToken          string     `json:"backend_token,omitempty" yaml:"backend_token,omitempty"`
	CachePath             string     `json:"cache_path,omitempty" yaml:"cache_path,omitempty"`
	GoogleCredentialsPath string     `json:"google_credentials_path,omitempty" yaml:"google_credentials_path,omitempty"`
	Providers             []Provider `json:"providers" yaml:"providers"`

	// Cron expression for periodic sync
	SyncSchedule string `json:"sync_schedule,omitempty" yaml:"sync_schedule,omitempty"`
	// Sync window around now, in months
	SyncWindowMonthsPast  int `json:"sync_window_months_past,omitempty" yaml:"sync_window_months_past,omitempty"`
	SyncWindowMonthsAhead int `json:"sync_window_months_ahead,omitempty" yaml:"sync_window_months_ahead,omitempty"`
	MinSlotMinutes        int `json:"min_slot_minutes,omitempty" yaml:"min_slot_minutes,omitempty"`

	SentryDSN   string `json:"sentry_dsn,omitempty" yaml:"sentry_dsn,omitempty"`
	Environment string `json:"environment,omitempty" yaml:"environment,omitempty"`
}

// Overrides are values given on the command line. Empty fields are ignored.
type Overrides struct {
	UserID                string
	BackendURL            string
	CachePath             string
	GoogleCredentialsPath string
	SyncSchedule          string
}

// Defaults.
const (
	DefaultSyncSchedule          = "*/30 * * * *"
	DefaultSyncWindowMonthsPast  = 1
	DefaultSyncWindowMonthsAhead = 2
	DefaultMinSlotMinutes        = 30
	DefaultEnvironment           = "production"
)

// LoadConfigFromFile loads configuration from a YAML (.yaml, .yml) or JSON file.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &config)
	default:
		err = json.Unmarshal(data, &config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &config, nil
}

// LoadConfig loads configuration with the following precedence (highest to lowest):
// 1. Command-line flags
// 2. Environment variables
// 3. Config file
// 4. Defaults
// Returns an error if any required value is missing.
func LoadConfig(configFile string, flags Overrides) (*Config, error) {
	var config Config

	// Step 1: Load from config file if provided
	if configFile != "" {
		fileConfig, err := LoadConfigFromFile(configFile)
		if err != nil {
			return nil, err
		}
		config = *fileConfig
	}

	// Step 2: Override with environment variables
	for env, field := range map[string]*string{
		"CALSYNC_USER_ID":         &config.UserID,
		"BACKEND_URL":             &config.BackendURL,
		"BACKEND_TOKEN":           &config.BackendToken,
		"CACHE_PATH":              &config.CachePath,
		"GOOGLE_CREDENTIALS_PATH": &config.GoogleCredentialsPath,
		"SYNC_SCHEDULE":           &config.SyncSchedule,
		"SENTRY_DSN":              &config.SentryDSN,
		"ENVIRONMENT":             &config.Environment,
	} {
		if v := os.Getenv(env); v != "" {
			*field = v
		}
	}
	for env, field := range map[string]*int{
		"SYNC_WINDOW_MONTHS_PAST":  &config.SyncWindowMonthsPast,
		"SYNC_WINDOW_MONTHS_AHEAD": &config.SyncWindowMonthsAhead,
		"MIN_SLOT_MINUTES":         &config.MinSlotMinutes,
	} {
		if v := os.Getenv(env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value: %w", env, err)
			}
			*field = n
		}
	}

	// Step 3: Override with command-line flags (highest priority)
	if flags.UserID != "" {
		config.UserID = flags.UserID
	}
	if flags.BackendURL != "" {
		config.BackendURL = flags.BackendURL
	}
	if flags.CachePath != "" {
		config.CachePath = flags.CachePath
	}
	if flags.GoogleCredentialsPath != "" {
		config.GoogleCredentialsPath = flags.GoogleCredentialsPath
	}
	if flags.SyncSchedule != "" {
		config.SyncSchedule = flags.SyncSchedule
	}

	// Step 4: Apply defaults and validate required fields
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() error {
	if c.CachePath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("cache_path must be provided via --cache-path flag, CACHE_PATH environment variable, or config file: %w", err)
		}
		c.CachePath = filepath.Join(dir, "calsync", "cache.json")
	}
	if c.SyncSchedule == "" {
		c.SyncSchedule = DefaultSyncSchedule
	}
	if c.SyncWindowMonthsPast == 0 && c.SyncWindowMonthsAhead == 0 {
		c.SyncWindowMonthsPast = DefaultSyncWindowMonthsPast
		c.SyncWindowMonthsAhead = DefaultSyncWindowMonthsAhead
	}
	if c.MinSlotMinutes == 0 {
		c.MinSlotMinutes = DefaultMinSlotMinutes
	}
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}

	for i := range c.Providers {
		if c.Providers[i].Name == "" {
			c.Providers[i].Name = c.Providers[i].Type
		}
	}
	return nil
}

func (c *Config) validate() error {
	if c.UserID == "" {
		return fmt.Errorf("user_id must be provided via --user flag, CALSYNC_USER_ID environment variable, or config file")
	}
	if c.BackendURL == "" {
		return fmt.Errorf("backend_url must be provided via --backend-url flag, BACKEND_URL environment variable, or config file")
	}
	if c.SyncWindowMonthsPast < 0 || c.SyncWindowMonthsAhead < 0 {
		return fmt.Errorf("sync window months must not be negative")
	}
	if c.MinSlotMinutes < 0 {
		return fmt.Errorf("min_slot_minutes must not be negative")
	}

	// Validate that providers array is provided
	if len(c.Providers) == 0 {
		return fmt.Errorf("providers array must be provided in config file. At least one provider is required")
	}

	seen := make(map[string]bool)
	for i, p := range c.Providers {
		if seen[p.Name] {
			return fmt.Errorf("provider[%d]: duplicate name %q", i, p.Name)
		}
		seen[p.Name] = true
		if strings.Contains(p.Name, ":") {
			return fmt.Errorf("provider[%d]: name %q must not contain ':'", i, p.Name)
		}

		switch p.Type {
		case ProviderGoogle:
			if p.TokenPath == "" {
				return fmt.Errorf("provider[%d] (name: %s): token_path must be provided for Google Calendar provider", i, p.Name)
			}
			if c.GoogleCredentialsPath == "" {
				return fmt.Errorf("google_credentials_path must be provided via --google-credentials-path flag, GOOGLE_CREDENTIALS_PATH environment variable, or config file")
			}
		case ProviderCalDAV:
			if p.ServerURL == "" {
				return fmt.Errorf("provider[%d] (name: %s): server_url must be provided for CalDAV provider", i, p.Name)
			}
			if p.Username == "" {
				return fmt.Errorf("provider[%d] (name: %s): username must be provided for CalDAV provider", i, p.Name)
			}
			if p.Password == "" {
				return fmt.Errorf("provider[%d] (name: %s): password must be provided for CalDAV provider", i, p.Name)
			}
		case ProviderICS:
			if p.URL == "" {
				return fmt.Errorf("provider[%d] (name: %s): url must be provided for ICS feed provider", i, p.Name)
			}
		default:
			return fmt.Errorf("provider[%d].type must be 'google', 'caldav' or 'ics', got '%s'", i, p.Type)
		}
	}
	return nil
}
