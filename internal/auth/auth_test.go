package auth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// mockTokenStore is a mock implementation of TokenStore for testing.
type mockTokenStore struct {
	token       *oauth2.Token
	savedTokens []*oauth2.Token
}

func (m *mockTokenStore) SaveToken(token *oauth2.Token) error {
	m.savedTokens = append(m.savedTokens, token)
	m.token = token
	return nil
}

func (m *mockTokenStore) LoadToken() (*oauth2.Token, error) {
	return m.token, nil
}

// newTokenServer serves an OAuth token endpoint that always issues accessToken.
func newTokenServer(t *testing.T, accessToken string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"`+accessToken+`","token_type":"Bearer","refresh_token":"refresh","expires_in":3600}`)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testOAuthConfig(tokenURL string) *oauth2.Config {
	cfg := GoogleOAuthConfig("test-client-id", "test-client-secret")
	cfg.Endpoint.TokenURL = tokenURL
	return cfg
}

// echoAuthorization returns a server that echoes the Authorization header.
func echoAuthorization(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, r.Header.Get("Authorization"))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, client *http.Client, url string) string {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestClient_NoToken(t *testing.T) {
	_, err := Client(context.Background(), testOAuthConfig("http://unused"), &mockTokenStore{})
	assert.True(t, errors.Is(err, ErrNoToken))
}

func TestClient_ValidToken(t *testing.T) {
	store := &mockTokenStore{token: &oauth2.Token{
		AccessToken:  "test-access-token",
		RefreshToken: "test-refresh-token",
		Expiry:       time.Now().Add(time.Hour),
		TokenType:    "Bearer",
	}}

	client, err := Client(context.Background(), testOAuthConfig("http://unused"), store)
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-access-token", get(t, client, echoAuthorization(t).URL))
	assert.Empty(t, store.savedTokens, "an unchanged token must not be saved again")
}

func TestClient_SavesRefreshedToken(t *testing.T) {
	tokenServer := newTokenServer(t, "refreshed-token")
	store := &mockTokenStore{token: &oauth2.Token{
		AccessToken:  "expired-token",
		RefreshToken: "test-refresh-token",
		Expiry:       time.Now().Add(-time.Hour),
		TokenType:    "Bearer",
	}}

	client, err := Client(context.Background(), testOAuthConfig(tokenServer.URL), store)
	require.NoError(t, err)

	assert.Equal(t, "Bearer refreshed-token", get(t, client, echoAuthorization(t).URL))
	require.Len(t, store.savedTokens, 1)
	assert.Equal(t, "refreshed-token", store.savedTokens[0].AccessToken)
}

func TestExchange(t *testing.T) {
	tokenServer := newTokenServer(t, "fresh-token")
	store := &mockTokenStore{}

	token, err := Exchange(context.Background(), testOAuthConfig(tokenServer.URL), store, "auth-code")
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token.AccessToken)
	assert.Equal(t, "fresh-token", store.token.AccessToken)

	_, err = Exchange(context.Background(), testOAuthConfig(tokenServer.URL), store, "")
	assert.Error(t, err)
}

func TestAuthCodeURL(t *testing.T) {
	url := AuthCodeURL(GoogleOAuthConfig("id", "secret"))
	assert.Contains(t, url, "access_type=offline")
	assert.Contains(t, url, "client_id=id")
}

func TestBackendHTTPClient(t *testing.T) {
	client := BackendHTTPClient(context.Background(), "backend-secret")
	assert.Equal(t, "Bearer backend-secret", get(t, client, echoAuthorization(t).URL))
}

func TestFileTokenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens", "google.json")
	store := NewFileTokenStore(path)

	token, err := store.LoadToken()
	require.NoError(t, err)
	assert.Nil(t, token)

	expiry := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveToken(&oauth2.Token{AccessToken: "a", RefreshToken: "r", TokenType: "Bearer", Expiry: expiry}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := store.LoadToken()
	require.NoError(t, err)
	assert.Equal(t, "a", loaded.AccessToken)
	assert.Equal(t, "r", loaded.RefreshToken)
	assert.True(t, expiry.Equal(loaded.Expiry))
}

func TestFileTokenStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	_, err := NewFileTokenStore(path).LoadToken()
	assert.Error(t, err)
}
