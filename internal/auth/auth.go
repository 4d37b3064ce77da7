// Package auth manages the OAuth tokens used to reach Google Calendar and the
// bearer token used to reach the backend store.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	gcal "google.golang.org/api/calendar/v3"
)

// ErrNoToken is returned when no token has been stored yet and the user has
// to authorize the application first.
var ErrNoToken = errors.New("no OAuth token stored")

// TokenStore is an interface for saving and loading OAuth tokens.
type TokenStore interface {
	SaveToken(token *oauth2.Token) error
	LoadToken() (*oauth2.Token, error)
}

// GoogleOAuthConfig returns the OAuth configuration for reading and writing
// Google calendars.
func GoogleOAuthConfig(clientID, clientSecret string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		Scopes: []string{
			gcal.CalendarScope,
			gcal.CalendarEventsScope,
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
	}
}

// autoSaveTokenSource wraps an oauth2.TokenSource and automatically saves refreshed tokens.
type autoSaveTokenSource struct {
	source     oauth2.TokenSource
	tokenStore TokenStore

	mu        sync.Mutex
	lastToken *oauth2.Token
}

// Token implements oauth2.TokenSource and saves the token if it was refreshed.
func (a *autoSaveTokenSource) Token() (*oauth2.Token, error) {
	token, err := a.source.Token()
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.lastToken == nil || a.lastToken.AccessToken != token.AccessToken {
		if err := a.tokenStore.SaveToken(token); err != nil {
			return nil, fmt.Errorf("failed to save refreshed token: %w", err)
		}
		a.lastToken = token
	}
	return token, nil
}

// AuthCodeURL returns the URL the user visits to authorize the application.
func AuthCodeURL(oauthConfig *oauth2.Config) string {
	return oauthConfig.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for a token and stores it.
func Exchange(ctx context.Context, oauthConfig *oauth2.Config, tokenStore TokenStore, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("no authorization code provided")
	}
	token, err := oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	if err := tokenStore.SaveToken(token); err != nil {
		return nil, fmt.Errorf("failed to save token: %w", err)
	}
	return token, nil
}

// Client returns an HTTP client authorized with the stored token. Refreshed
// tokens are written back to tokenStore. ErrNoToken is returned when nothing
// has been stored yet.
func Client(ctx context.Context, oauthConfig *oauth2.Config, tokenStore TokenStore) (*http.Client, error) {
	token, err := tokenStore.LoadToken()
	if err != nil {
		return nil, fmt.Errorf("failed to load token: %w", err)
	}
	if token == nil {
		return nil, ErrNoToken
	}

	source := &autoSaveTokenSource{
		source:     oauth2.ReuseTokenSource(token, oauthConfig.TokenSource(ctx, token)),
		tokenStore: tokenStore,
		lastToken:  token,
	}
	return oauth2.NewClient(ctx, source), nil
}

// BackendHTTPClient returns an HTTP client that sends token as a bearer token.
func BackendHTTPClient(ctx context.Context, token string) *http.Client {
	return oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
}
