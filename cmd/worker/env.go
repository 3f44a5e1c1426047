package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"booksync/internal/config"
	"booksync/internal/database"
	"booksync/internal/domain"
	"booksync/internal/google"
	"booksync/internal/logging"
	"booksync/internal/service"
	"booksync/internal/wake"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// env is everything a worker command needs, opened from one config file.
type env struct {
	cfg       *config.Config
	logger    zerolog.Logger
	oplog     *logging.Operational
	db        *database.DB
	redis     *redis.Client
	refresher *google.TokenRefresher
	closers   []io.Closer
}

func openEnv(opts *RootOptions) (*env, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	e := &env{cfg: cfg, logger: baseLogger.With().Str("component", "worker-main").Logger()}
	if closer != nil {
		e.closers = append(e.closers, closer)
	}

	e.oplog, err = logging.OpenOperational(cfg.Logging)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("open operational log: %w", err)
	}
	e.closers = append(e.closers, e.oplog)

	e.db, err = database.NewDB(cfg.Database.Path, &e.logger)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	e.closers = append(e.closers, e.db)

	if cfg.Redis.Address != "" {
		client := wake.NewRedisClient(cfg.Redis)
		if err := wake.Ping(context.Background(), client); err != nil {
			e.logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
			_ = client.Close()
		} else {
			e.redis = client
			e.closers = append(e.closers, client)
		}
	}

	conf, err := google.LoadOAuthConfig(cfg.Google)
	switch {
	case errors.Is(err, google.ErrOAuthNotConfigured):
		e.logger.Warn().Msg("google oauth not configured, tokens will not be refreshed")
	case err != nil:
		e.logger.Warn().Err(err).Msg("google oauth init failed, tokens will not be refreshed")
	default:
		e.refresher = google.NewTokenRefresher(conf, cfg.Google.RequestTimeout)
	}

	return e, nil
}

// Close releases resources in reverse order of opening.
func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		_ = e.closers[i].Close()
	}
}

func (e *env) credentials() *service.CredentialStore {
	var refresher domain.TokenRefresher
	if e.refresher != nil {
		refresher = e.refresher
	}
	return service.NewCredentialStore(e.db, refresher, e.cfg.Google.RefreshSkew, e.oplog, &e.logger)
}

func (e *env) manager() *service.SyncEventManager {
	var opts []google.CalendarOption
	if e.cfg.Google.CalendarEndpoint != "" {
		opts = append(opts, google.WithEndpoint(e.cfg.Google.CalendarEndpoint))
	}
	client := google.NewCalendarClient(e.cfg.Google.RequestTimeout, e.oplog, opts...)
	return service.NewSyncEventManager(client, e.db, e.credentials(), e.oplog, &e.logger)
}
