package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/robfig/cron/v3"

	"github.com/beekhof/calendar-availability/internal/availability"
	"github.com/beekhof/calendar-availability/internal/auth"
	"github.com/beekhof/calendar-availability/internal/backend"
	"github.com/beekhof/calendar-availability/internal/cache"
	"github.com/beekhof/calendar-availability/internal/config"
	"github.com/beekhof/calendar-availability/internal/model"
	"github.com/beekhof/calendar-availability/internal/planner"
	"github.com/beekhof/calendar-availability/internal/sync"
)

// version is set at build time.
var version = "dev"

func printHelp() {
	fmt.Fprintf(os.Stderr, `Calendar Availability Sync

Pushes the events of linked device calendars (Google Calendar, CalDAV servers
such as iCloud, and read-only ICS feeds) to the availability backend, and
computes free time shared with a partner.

USAGE:
    %s [OPTIONS]

OPTIONS:
    -h, --help                     Show this help message and exit
    -v, --verbose                  Enable verbose output (show DEBUG logs)
    --config FILE                  Path to YAML or JSON config file (required)
    --once                         Run a single sync pass and exit
    --user ID                      Backend user ID (overrides CALSYNC_USER_ID)
    --backend-url URL              Backend base URL (overrides BACKEND_URL)
    --cache-path PATH              Local sync cache file (overrides CACHE_PATH)
    --google-credentials-path PATH Google OAuth credentials JSON file
                                   (overrides GOOGLE_CREDENTIALS_PATH)
    --schedule CRON                Sync schedule (overrides SYNC_SCHEDULE)
    --authorize NAME               Print the authorization URL for a Google provider
    --authorize-code CODE          With --authorize, store the token for CODE
    --mutual-with USER             Print free time shared with USER over the next
                                   --days days and exit
    --events-of USER               Print the events of USER over the next --days days,
                                   redacted per calendar privacy mode, and exit
    --days N                       Days covered by --mutual-with and --events-of
                                   (default: 7)

CONFIGURATION PRECEDENCE (highest to lowest):
    1. Command-line flags
    2. Environment variables (CALSYNC_USER_ID, BACKEND_URL, BACKEND_TOKEN, CACHE_PATH,
       GOOGLE_CREDENTIALS_PATH, SYNC_SCHEDULE, SYNC_WINDOW_MONTHS_PAST,
       SYNC_WINDOW_MONTHS_AHEAD, MIN_SLOT_MINUTES, SENTRY_DSN, ENVIRONMENT)
    3. Config file (--config)
    4. Defaults

CONFIG FILE:
    user_id: alice
    backend_url: https://api.example.com
    backend_token: ...
    google_credentials_path: /path/to/credentials.json
    sync_schedule: "*/30 * * * *"
    sync_window_months_past: 1
    sync_window_months_ahead: 2
    providers:
      - name: google
        type: google
        token_path: /path/to/google_token.json
      - name: icloud
        type: caldav
        server_url: https://caldav.icloud.com
        username: your-email@icloud.com
        password: app-specific-password
      - name: holidays
        type: ics
        url: https://example.com/holidays.ics

    Linked calendars refer to provider calendars as "<provider name>:<calendar id>",
    e.g. "google:primary" or "icloud:/123456/calendars/home/".

    For iCloud you need an app-specific password.
    Generate one at: https://appleid.apple.com/account/manage

EXAMPLES:
    # Authorize a Google provider
    %s --config config.yaml --authorize google
    %s --config config.yaml --authorize google --authorize-code 4/0Abc...

    # Sync once
    %s --config config.yaml --once

    # Show mutual free time with bob
    %s --config config.yaml --mutual-with bob

    # Show what bob's calendars reveal for the next two weeks
    %s --config config.yaml --events-of bob --days 14

`, os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0], os.Args[0])
}

func main() {
	// Parse command-line flags
	helpFlag := flag.Bool("help", false, "Show help message")
	helpFlagShort := flag.Bool("h", false, "Show help message (shorthand)")
	verboseFlag := flag.Bool("verbose", false, "Enable verbose output (show DEBUG logs)")
	verboseFlagShort := flag.Bool("v", false, "Enable verbose output (shorthand)")
	configFile := flag.String("config", "", "Path to YAML or JSON config file (required)")
	once := flag.Bool("once", false, "Run a single sync pass and exit")
	userID := flag.String("user", "", "Backend user ID")
	backendURL := flag.String("backend-url", "", "Backend base URL")
	cachePath := flag.String("cache-path", "", "Local sync cache file")
	googleCredentialsPath := flag.String("google-credentials-path", "", "Path to Google OAuth credentials JSON file")
	schedule := flag.String("schedule", "", "Cron expression for periodic sync")
	authorize := flag.String("authorize", "", "Google provider to authorize")
	authorizeCode := flag.String("authorize-code", "", "Authorization code to exchange")
	mutualWith := flag.String("mutual-with", "", "Print free time shared with this user")
	eventsOf := flag.String("events-of", "", "Print the redacted events of this user")
	days := flag.Int("days", 7, "Days covered by --mutual-with and --events-of")
	flag.Parse()

	if *helpFlag || *helpFlagShort {
		printHelp()
		os.Exit(0)
	}

	level := slog.LevelInfo
	if *verboseFlag || *verboseFlagShort {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if *configFile == "" {
		logger.Error("--config FILE is required. Use --help for more information.")
		os.Exit(2)
	}
	cfg, err := config.LoadConfig(*configFile, config.Overrides{
		UserID:                *userID,
		BackendURL:            *backendURL,
		CachePath:             *cachePath,
		GoogleCredentialsPath: *googleCredentialsPath,
		SyncSchedule:          *schedule,
	})
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *authorize != "" {
		if err := runAuthorize(ctx, cfg, *authorize, *authorizeCode); err != nil {
			logger.Error("authorization failed", "provider", *authorize, "error", err)
			os.Exit(1)
		}
		return
	}

	if err := initSentry(cfg); err != nil {
		logger.Warn("failed to initialize Sentry", "error", err)
	}
	defer sentry.Flush(2 * time.Second)

	backendHTTPClient := http.DefaultClient
	if cfg.BackendToken != "" {
		backendHTTPClient = auth.BackendHTTPClient(ctx, cfg.BackendToken)
	}
	backendClient, err := backend.NewClient(cfg.BackendURL, backendHTTPClient, logger)
	if err != nil {
		logger.Error("failed to create backend client", "error", err)
		os.Exit(1)
	}

	if *mutualWith != "" {
		start := time.Now().Truncate(time.Minute)
		if err := printMutualSlots(ctx, os.Stdout, planner.New(backendClient, logger), cfg, *mutualWith, start, *days); err != nil {
			logger.Error("failed to compute mutual availability", "error", err)
			os.Exit(1)
		}
		return
	}

	if *eventsOf != "" {
		start := time.Now().Truncate(time.Minute)
		if err := printVisibleEvents(ctx, os.Stdout, planner.New(backendClient, logger), *eventsOf, start, *days); err != nil {
			logger.Error("failed to read events", "user", *eventsOf, "error", err)
			os.Exit(1)
		}
		return
	}

	providers, err := buildProviders(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up calendar providers", "error", err)
		os.Exit(1)
	}
	logger.Info("calendar providers ready", "providers", providers.Names())

	engine := sync.NewEngine(providers, backendClient, cache.NewFileStore(cfg.CachePath), sync.Config{
		MonthsPast:  cfg.SyncWindowMonthsPast,
		MonthsAhead: cfg.SyncWindowMonthsAhead,
		Logger:      logger,
		OnCalendarError: func(linked model.LinkedCalendarConfig, err error) {
			sentry.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("calendar", linked.ID)
				scope.SetTag("device_calendar", linked.DeviceCalendarID)
				sentry.CaptureException(err)
			})
		},
	})

	runPass := func() error {
		if err := engine.PerformPeriodicSync(ctx, cfg.UserID); err != nil {
			sentry.CaptureException(err)
			return err
		}
		return nil
	}

	if *once {
		if err := runPass(); err != nil {
			logger.Error("sync failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := runScheduled(ctx, cfg.SyncSchedule, runPass, logger); err != nil {
		logger.Error("scheduler failed", "error", err)
		os.Exit(1)
	}
}

func initSentry(cfg *config.Config) error {
	if cfg.SentryDSN == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     version,
	})
}

// runScheduled runs pass now and then on every tick of schedule until ctx is
// cancelled. A tick is skipped while the previous pass is still running.
func runScheduled(ctx context.Context, schedule string, pass func() error, logger *slog.Logger) error {
	cronLogger := slogCronLogger{logger: logger}
	c := cron.New(cron.WithLogger(cronLogger), cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	job := cron.FuncJob(func() {
		if err := pass(); err != nil {
			logger.Error("sync failed", "error", err)
		}
	})
	if _, err := c.AddJob(schedule, job); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", schedule, err)
	}

	logger.Info("starting scheduler", "schedule", schedule)
	job.Run()
	c.Start()

	<-ctx.Done()
	logger.Info("shutting down, waiting for running sync")
	<-c.Stop().Done()
	return nil
}

func runAuthorize(ctx context.Context, cfg *config.Config, name, code string) error {
	var provider *config.Provider
	for i := range cfg.Providers {
		if cfg.Providers[i].Name == name {
			provider = &cfg.Providers[i]
		}
	}
	if provider == nil || provider.Type != config.ProviderGoogle {
		return fmt.Errorf("no Google provider named %q in config. Available providers: %v", name, providerNames(cfg.Providers))
	}

	oauthConfig, err := googleOAuthConfig(cfg)
	if err != nil {
		return err
	}
	if code == "" {
		fmt.Println("Please visit the following URL to authorize the application:")
		fmt.Println(auth.AuthCodeURL(oauthConfig))
		fmt.Printf("\nThen run again with --authorize %s --authorize-code CODE\n", name)
		return nil
	}

	if _, err := auth.Exchange(ctx, oauthConfig, auth.NewFileTokenStore(provider.TokenPath), code); err != nil {
		return err
	}
	fmt.Println("Authorization successful!")
	return nil
}

func printMutualSlots(ctx context.Context, w io.Writer, p *planner.Planner, cfg *config.Config, otherUser string, start time.Time, days int) error {
	if days <= 0 {
		return errors.New("--days must be positive")
	}
	mutual, err := p.MutualFreeSlots(ctx, cfg.UserID, otherUser, start, start.AddDate(0, 0, days), cfg.MinSlotMinutes)
	if err != nil {
		return err
	}
	return writeJSON(w, availability.Slots(availability.Merge(mutual)))
}

// printVisibleEvents prints the events of user as a partner sees them.
func printVisibleEvents(ctx context.Context, w io.Writer, p *planner.Planner, user string, start time.Time, days int) error {
	if days <= 0 {
		return errors.New("--days must be positive")
	}
	events, err := p.VisibleEvents(ctx, user, start, start.AddDate(0, 0, days))
	if err != nil {
		return err
	}
	if events == nil {
		events = []model.CanonicalEvent{}
	}
	return writeJSON(w, events)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// providerNames returns a slice of provider names.
func providerNames(providers []config.Provider) []string {
	names := make([]string, len(providers))
	for i, p := range providers {
		names[i] = p.Name
	}
	return names
}
