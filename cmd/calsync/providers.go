package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/beekhof/calendar-availability/internal/auth"
	"github.com/beekhof/calendar-availability/internal/calendar"
	"github.com/beekhof/calendar-availability/internal/config"
)

func googleOAuthConfig(cfg *config.Config) (*oauth2.Config, error) {
	clientID, clientSecret, err := config.LoadGoogleCredentials(cfg.GoogleCredentialsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load Google credentials: %w", err)
	}
	return auth.GoogleOAuthConfig(clientID, clientSecret), nil
}

// buildProviders registers one calendar provider per configured entry. A
// Google provider that has not been authorized yet is skipped with a warning.
func buildProviders(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*calendar.Mux, error) {
	mux := calendar.NewMux()

	var oauthConfig *oauth2.Config
	for _, p := range cfg.Providers {
		providerLogger := logger.With("provider", p.Name)

		switch p.Type {
		case config.ProviderGoogle:
			if oauthConfig == nil {
				var err error
				if oauthConfig, err = googleOAuthConfig(cfg); err != nil {
					return nil, err
				}
			}
			httpClient, err := auth.Client(ctx, oauthConfig, auth.NewFileTokenStore(p.TokenPath))
			if errors.Is(err, auth.ErrNoToken) {
				providerLogger.Warn("provider not authorized yet, skipping. Run with --authorize " + p.Name)
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.Name, err)
			}
			google, err := calendar.NewGoogle(ctx, httpClient, providerLogger)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", p.Name, err)
			}
			mux.Register(p.Name, google)

		case config.ProviderCalDAV:
			mux.Register(p.Name, calendar.NewCalDAV(p.ServerURL, p.Username, p.Password, nil, providerLogger))

		case config.ProviderICS:
			mux.Register(p.Name, calendar.NewICSFeed(p.URL, nil, providerLogger))

		default:
			return nil, fmt.Errorf("%s: unknown provider type %q", p.Name, p.Type)
		}
	}
	return mux, nil
}
