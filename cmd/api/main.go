package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booksync/internal/api"
	"booksync/internal/config"
	"booksync/internal/database"
	"booksync/internal/domain"
	"booksync/internal/events"
	"booksync/internal/google"
	"booksync/internal/logging"
	"booksync/internal/metrics"
	"booksync/internal/realtime"
	"booksync/internal/service"
	"booksync/internal/wake"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	oplog, err := logging.OpenOperational(cfg.Logging)
	if err != nil {
		return fmt.Errorf("open operational log: %w", err)
	}
	defer oplog.Close()

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	redisClient := initRedis(cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var refresher domain.TokenRefresher
	if r := initOAuth(ctx, cfg, &logger); r != nil {
		refresher = r
	}
	creds := service.NewCredentialStore(db, refresher, cfg.Google.RefreshSkew, oplog, &logger)

	producer := initProducer(cfg, db, creds, redisClient, refresher, oplog, &logger)
	defer producer.Wait()

	bus := events.NewBus()
	fanout := realtime.NewFanout(
		redisClient,
		initBroadcaster(cfg, redisClient, bus, &logger),
		cfg.Realtime.ListTTL,
		cfg.Realtime.BroadcastTimeout,
		&logger,
	)
	defer fanout.Wait()

	var stream realtime.Subscriber = realtime.NewBusSubscriber(bus)
	if redisClient != nil {
		stream = realtime.NewRedisSubscriber(redisClient)
	}

	httpServer := api.NewHTTPServer(cfg.API, cfg.Realtime, api.Deps{
		Store:       db,
		Notifier:    service.NewChangeNotifier(producer, fanout, &logger),
		Realtime:    fanout,
		Stream:      stream,
		Credentials: creds,
		Calendar:    initCalendar(cfg, oplog),
	}, &logger)

	startMetrics(ctx, cfg, &logger)

	return startServer(ctx, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := wake.NewRedisClient(cfg.Redis)
	if err := wake.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initOAuth returns nil when no OAuth client is configured; credentials are
// then used as stored and never refreshed.
func initOAuth(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *google.TokenRefresher {
	conf, err := google.LoadOAuthConfig(cfg.Google)
	if errors.Is(err, google.ErrOAuthNotConfigured) {
		logger.Warn().Msg("google oauth not configured, calendar sync disabled")
		return nil
	}
	if err != nil {
		logger.Warn().Err(err).Msg("google oauth init failed, calendar sync disabled")
		return nil
	}

	refresher := google.NewTokenRefresher(conf, cfg.Google.RequestTimeout)
	if cfg.Google.WatchCredentials {
		go func() {
			if err := google.WatchCredentials(ctx, cfg.Google, refresher, logger); err != nil {
				logger.Error().Err(err).Msg("credentials watcher stopped")
			}
		}()
	}
	logger.Info().Msg("google oauth configured")
	return refresher
}

// initProducer enables enqueueing only when tokens can be refreshed, so a
// failed OAuth setup does not fill the queue with tasks that cannot succeed.
func initProducer(
	cfg *config.Config,
	db *database.DB,
	creds *service.CredentialStore,
	redisClient *redis.Client,
	refresher domain.TokenRefresher,
	oplog *logging.Operational,
	logger *zerolog.Logger,
) *service.SyncProducer {
	return service.NewSyncProducer(
		db,
		creds,
		wake.NewTransport(redisClient, cfg.Sync.WakeChannel, logger),
		refresher != nil,
		oplog,
		logger,
	)
}

func initCalendar(cfg *config.Config, oplog *logging.Operational) *google.CalendarClient {
	var opts []google.CalendarOption
	if cfg.Google.CalendarEndpoint != "" {
		opts = append(opts, google.WithEndpoint(cfg.Google.CalendarEndpoint))
	}
	return google.NewCalendarClient(cfg.Google.RequestTimeout, oplog, opts...)
}

func initBroadcaster(cfg *config.Config, redisClient *redis.Client, bus *events.Bus, logger *zerolog.Logger) realtime.Broadcaster {
	switch {
	case cfg.Realtime.BroadcastURL != "":
		logger.Info().Str("url", cfg.Realtime.BroadcastURL).Msg("realtime broadcast over http")
		return realtime.NewHTTPBroadcaster(cfg.Realtime.BroadcastURL, &http.Client{Timeout: cfg.Realtime.BroadcastTimeout})
	case redisClient != nil:
		return realtime.NewRedisBroadcaster(redisClient)
	default:
		return realtime.NewBusBroadcaster(bus)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go metrics.Serve(ctx, fmt.Sprintf(":%d", port), logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}
