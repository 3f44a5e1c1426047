package google

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"booksync/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func tokenServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestTokenRefresher_Refresh(t *testing.T) {
	server := tokenServer(t, http.StatusOK, `{"access_token":"access-2","token_type":"Bearer","expires_in":3600}`)
	conf := &oauth2.Config{
		ClientID:     "id",
		ClientSecret: "secret",
		Endpoint:     oauth2.Endpoint{TokenURL: server.URL, AuthStyle: oauth2.AuthStyleInParams},
	}

	tok, err := NewTokenRefresher(conf, time.Second).Refresh(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "access-2", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, time.Minute)
}

func TestTokenRefresher_Failures(t *testing.T) {
	server := tokenServer(t, http.StatusBadRequest, `{"error":"invalid_grant"}`)
	conf := &oauth2.Config{
		ClientID: "id",
		Endpoint: oauth2.Endpoint{TokenURL: server.URL, AuthStyle: oauth2.AuthStyleInParams},
	}
	r := NewTokenRefresher(conf, time.Second)

	_, err := r.Refresh(context.Background(), "refresh-1")
	assert.ErrorContains(t, err, "invalid_grant")

	_, err = r.Refresh(context.Background(), "")
	assert.Error(t, err)

	r.SetConfig(nil)
	_, err = r.Refresh(context.Background(), "refresh-1")
	assert.ErrorIs(t, err, ErrOAuthNotConfigured)
}

const clientSecretsJSON = `{"installed":{"client_id":"file-id.apps.googleusercontent.com","client_secret":"file-secret",
"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",
"redirect_uris":["http://localhost"]}}`

func TestLoadOAuthConfig(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		_, err := LoadOAuthConfig(config.GoogleConfig{})
		assert.ErrorIs(t, err, ErrOAuthNotConfigured)
	})

	t.Run("Inline", func(t *testing.T) {
		conf, err := LoadOAuthConfig(config.GoogleConfig{ClientID: "id", ClientSecret: "secret", TokenURL: "http://tok"})
		require.NoError(t, err)
		assert.Equal(t, "id", conf.ClientID)
		assert.Equal(t, "http://tok", conf.Endpoint.TokenURL)
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "client_secret.json")
		require.NoError(t, os.WriteFile(path, []byte(clientSecretsJSON), 0o600))
		conf, err := LoadOAuthConfig(config.GoogleConfig{CredentialsFile: path})
		require.NoError(t, err)
		assert.Equal(t, "file-id.apps.googleusercontent.com", conf.ClientID)
		assert.Equal(t, "https://oauth2.googleapis.com/token", conf.Endpoint.TokenURL)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadOAuthConfig(config.GoogleConfig{CredentialsFile: "/nonexistent/client.json"})
		assert.Error(t, err)
	})
}

func TestWatchCredentials_Reload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client_secret.json")
	require.NoError(t, os.WriteFile(path, []byte(clientSecretsJSON), 0o600))

	cfg := config.GoogleConfig{CredentialsFile: path}
	conf, err := LoadOAuthConfig(cfg)
	require.NoError(t, err)
	r := NewTokenRefresher(conf, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := zerolog.Nop()
	done := make(chan error, 1)
	go func() { done <- WatchCredentials(ctx, cfg, r, &logger) }()

	rotated := []byte(`{"installed":{"client_id":"rotated-id","client_secret":"s","auth_uri":"a","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`)
	assert.Eventually(t, func() bool {
		_ = os.WriteFile(path, rotated, 0o600)
		return r.config().ClientID == "rotated-id"
	}, 3*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
