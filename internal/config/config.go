package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Google     GoogleConfig     `yaml:"google"`
	Sync       SyncConfig       `yaml:"sync"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Retention  RetentionConfig  `yaml:"retention"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`

	// Operational sync log streams. Empty paths fall back to stdout/stderr.
	InfoFile  string `yaml:"info_file"`
	ErrorFile string `yaml:"error_file"`
}

// GoogleConfig configures the OAuth client used for every owner. The client
// can be given inline or as a downloaded client-secrets JSON file.
type GoogleConfig struct {
	CredentialsFile  string        `yaml:"credentials_file"`
	ClientID         string        `yaml:"client_id"`
	ClientSecret     string        `yaml:"client_secret"`
	RedirectURL      string        `yaml:"redirect_url"`
	TokenURL         string        `yaml:"token_url"`
	CalendarEndpoint string        `yaml:"calendar_endpoint"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	RefreshSkew      time.Duration `yaml:"refresh_skew"`
	WatchCredentials bool          `yaml:"watch_credentials"`
}

// Enabled reports whether an OAuth client is configured at all.
func (g GoogleConfig) Enabled() bool {
	return g.CredentialsFile != "" || (g.ClientID != "" && g.ClientSecret != "")
}

type SyncConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialDelay   time.Duration `yaml:"initial_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	BackoffFactor  float64       `yaml:"backoff_factor"`
	BatchSize      int           `yaml:"batch_size"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	SignalInterval time.Duration `yaml:"signal_interval"`
	RequestsPerSec float64       `yaml:"requests_per_second"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	WakeChannel    string        `yaml:"wake_channel"`
	DeadLetterKey  string        `yaml:"dead_letter_key"`
}

type RealtimeConfig struct {
	ListTTL          time.Duration `yaml:"list_ttl"`
	BroadcastURL     string        `yaml:"broadcast_url"`
	BroadcastTimeout time.Duration `yaml:"broadcast_timeout"`
	Heartbeat        time.Duration `yaml:"heartbeat"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

type RetentionConfig struct {
	Schedule     string        `yaml:"schedule"`
	MaxAge       time.Duration `yaml:"max_age"`
	ProcessedAge time.Duration `yaml:"processed_hint_age"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1, got %d", c.Sync.MaxAttempts)
	}
	if c.Sync.BackoffFactor < 1 {
		return fmt.Errorf("sync.backoff_factor must be >= 1, got %v", c.Sync.BackoffFactor)
	}
	if c.Google.ClientID != "" && c.Google.ClientSecret == "" {
		return errors.New("google.client_secret is required when client_id is set")
	}
	if c.Realtime.BroadcastURL != "" {
		u, err := url.Parse(c.Realtime.BroadcastURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid realtime.broadcast_url %q", c.Realtime.BroadcastURL)
		}
	}
	for i, k := range c.API.Auth.APIKeys {
		if k.Key == "" {
			return fmt.Errorf("api key #%d has empty key", i)
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "booksync"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}

	if c.Google.RequestTimeout == 0 {
		c.Google.RequestTimeout = 30 * time.Second
	}
	if c.Google.RefreshSkew == 0 {
		c.Google.RefreshSkew = 5 * time.Minute
	}

	// Sync defaults
	if c.Sync.MaxAttempts == 0 {
		c.Sync.MaxAttempts = 5
	}
	if c.Sync.InitialDelay == 0 {
		c.Sync.InitialDelay = 30 * time.Second
	}
	if c.Sync.MaxDelay == 0 {
		c.Sync.MaxDelay = 30 * time.Minute
	}
	if c.Sync.BackoffFactor == 0 {
		c.Sync.BackoffFactor = 2
	}
	if c.Sync.BatchSize == 0 {
		c.Sync.BatchSize = 50
	}
	if c.Sync.PollInterval == 0 {
		c.Sync.PollInterval = 2 * time.Minute
	}
	if c.Sync.SignalInterval == 0 {
		c.Sync.SignalInterval = 4 * time.Second
	}
	if c.Sync.RequestsPerSec == 0 {
		c.Sync.RequestsPerSec = 10
	}
	if c.Sync.StaleAfter == 0 {
		c.Sync.StaleAfter = 10 * time.Minute
	}
	if c.Sync.WakeChannel == "" {
		c.Sync.WakeChannel = "calendar:wake"
	}
	if c.Sync.DeadLetterKey == "" {
		c.Sync.DeadLetterKey = "calendar:deadletter"
	}

	if c.Realtime.ListTTL == 0 {
		c.Realtime.ListTTL = time.Hour
	}
	if c.Realtime.BroadcastTimeout == 0 {
		c.Realtime.BroadcastTimeout = 2 * time.Second
	}
	if c.Realtime.Heartbeat == 0 {
		c.Realtime.Heartbeat = 30 * time.Second
	}

	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "@daily"
	}
	if c.Retention.MaxAge == 0 {
		c.Retention.MaxAge = 6 * 24 * time.Hour
	}
	if c.Retention.ProcessedAge == 0 {
		c.Retention.ProcessedAge = 24 * time.Hour
	}
}
