package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"booksync/internal/config"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// ErrOAuthNotConfigured means no OAuth client is configured and calendar
// sync is disabled.
var ErrOAuthNotConfigured = errors.New("google oauth client not configured")

// defaultTokenLifetime applies when the token endpoint omits expires_in.
const defaultTokenLifetime = time.Hour

// LoadOAuthConfig builds the OAuth client config from the credentials file
// when set, otherwise from the inline client id and secret.
func LoadOAuthConfig(cfg config.GoogleConfig) (*oauth2.Config, error) {
	if !cfg.Enabled() {
		return nil, ErrOAuthNotConfigured
	}

	var conf *oauth2.Config
	if cfg.CredentialsFile != "" {
		data, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("unable to read credentials file: %w", err)
		}
		conf, err = google.ConfigFromJSON(data, calendar.CalendarScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse credentials: %w", err)
		}
	} else {
		conf = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{calendar.CalendarScope},
		}
	}

	if cfg.RedirectURL != "" {
		conf.RedirectURL = cfg.RedirectURL
	}
	if cfg.TokenURL != "" {
		conf.Endpoint.TokenURL = cfg.TokenURL
	}
	return conf, nil
}

// TokenRefresher exchanges refresh tokens for access tokens. The OAuth
// config can be swapped at runtime when the client secrets change.
type TokenRefresher struct {
	mu      sync.RWMutex
	conf    *oauth2.Config
	timeout time.Duration
}

func NewTokenRefresher(conf *oauth2.Config, timeout time.Duration) *TokenRefresher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TokenRefresher{conf: conf, timeout: timeout}
}

// SetConfig replaces the OAuth client config.
func (r *TokenRefresher) SetConfig(conf *oauth2.Config) {
	r.mu.Lock()
	r.conf = conf
	r.mu.Unlock()
}

func (r *TokenRefresher) config() *oauth2.Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conf
}

// Refresh performs the refresh_token grant. The returned token keeps the
// old refresh token when the endpoint does not rotate it.
func (r *TokenRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	conf := r.config()
	if conf == nil {
		return nil, ErrOAuthNotConfigured
	}
	if refreshToken == "" {
		return nil, errors.New("no refresh token")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: r.timeout})
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}
	if tok.AccessToken == "" {
		return nil, errors.New("token refresh returned no access token")
	}
	if tok.Expiry.IsZero() {
		tok.Expiry = time.Now().Add(defaultTokenLifetime)
	}
	return tok, nil
}
