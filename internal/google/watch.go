package google

import (
	"context"
	"fmt"
	"path/filepath"

	"booksync/internal/config"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// WatchCredentials reloads the OAuth client into r whenever the credentials
// file is written or replaced. It blocks until ctx is done.
func WatchCredentials(ctx context.Context, cfg config.GoogleConfig, r *TokenRefresher, logger *zerolog.Logger) error {
	if cfg.CredentialsFile == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create credentials watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors and secret mounts replace files by rename.
	target := filepath.Clean(cfg.CredentialsFile)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			conf, err := LoadOAuthConfig(cfg)
			if err != nil {
				logger.Warn().Err(err).Str("file", target).Msg("Failed to reload oauth credentials, keeping previous")
				continue
			}
			r.SetConfig(conf)
			logger.Info().Str("file", target).Msg("Reloaded oauth credentials")
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("Credentials watcher error")
		}
	}
}
