package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("BOOKSYNC_CLIENT_SECRET", "s3cret")

	yamlContent := `
database:
  path: "test.db"
google:
  client_id: "client.apps.googleusercontent.com"
  client_secret: "${BOOKSYNC_CLIENT_SECRET}"
  request_timeout: 10s
sync:
  max_attempts: 3
  initial_delay: 1s
`
	require.NoError(t, os.WriteFile(configPath, []byte(yamlContent), 0o644))

	cfg, err := Load(configPath)
	require.NoError(t, err)

	assert.Equal(t, "test.db", cfg.Database.Path)
	assert.Equal(t, "s3cret", cfg.Google.ClientSecret)
	assert.True(t, cfg.Google.Enabled())
	assert.Equal(t, 10*time.Second, cfg.Google.RequestTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Google.RefreshSkew)
	assert.Equal(t, 3, cfg.Sync.MaxAttempts)
	assert.Equal(t, time.Second, cfg.Sync.InitialDelay)
	assert.Equal(t, float64(2), cfg.Sync.BackoffFactor)
	assert.Equal(t, time.Hour, cfg.Realtime.ListTTL)
	assert.Equal(t, 2*time.Second, cfg.Realtime.BroadcastTimeout)
	assert.Equal(t, 6*24*time.Hour, cfg.Retention.MaxAge)
	assert.Equal(t, "x-api-key", cfg.API.Auth.HeaderAPIKey)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := Config{Database: DatabaseConfig{Path: "path"}}
		c.applyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "negative attempts", mutate: func(c *Config) { c.Sync.MaxAttempts = -1 }, wantErr: true},
		{name: "shrinking backoff", mutate: func(c *Config) { c.Sync.BackoffFactor = 0.5 }, wantErr: true},
		{name: "client id without secret", mutate: func(c *Config) { c.Google.ClientID = "id" }, wantErr: true},
		{name: "relative broadcast url", mutate: func(c *Config) { c.Realtime.BroadcastURL = "/pub" }, wantErr: true},
		{name: "absolute broadcast url", mutate: func(c *Config) { c.Realtime.BroadcastURL = "http://nchan:80/pub" }},
		{name: "empty api key", mutate: func(c *Config) { c.API.Auth.APIKeys = []APIClientKey{{Name: "x"}} }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGoogleConfig_Enabled(t *testing.T) {
	assert.False(t, GoogleConfig{}.Enabled())
	assert.False(t, GoogleConfig{ClientID: "id"}.Enabled())
	assert.True(t, GoogleConfig{CredentialsFile: "client_secret.json"}.Enabled())
}
