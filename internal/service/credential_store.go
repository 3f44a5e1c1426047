package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"booksync/internal/domain"
	"booksync/internal/logging"
	"booksync/internal/models"

	"github.com/rs/zerolog"
)

// CredentialStore hands out per-owner calendar credentials, refreshing
// expired access tokens in place. Nothing is cached between calls.
type CredentialStore struct {
	repo      domain.CredentialRepository
	refresher domain.TokenRefresher
	skew      time.Duration
	now       func() time.Time
	oplog     *logging.Operational
	logger    *zerolog.Logger
}

// NewCredentialStore builds a store. A nil refresher means the OAuth client
// is not configured; expired tokens are then unusable.
func NewCredentialStore(repo domain.CredentialRepository, refresher domain.TokenRefresher, skew time.Duration, oplog *logging.Operational, logger *zerolog.Logger) *CredentialStore {
	if skew <= 0 {
		skew = 5 * time.Minute
	}
	return &CredentialStore{
		repo:      repo,
		refresher: refresher,
		skew:      skew,
		now:       time.Now,
		oplog:     oplog,
		logger:    logging.Component(logger, "credentials"),
	}
}

// Get returns the owner's credential ready for use, or nil, nil when the
// owner never connected a calendar. An unusable credential is returned with
// Usable=false and an error wrapping ErrCredentialUnusable.
func (s *CredentialStore) Get(ctx context.Context, ownerID int64) (*models.Credential, error) {
	cred, err := s.repo.GetCredential(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if cred == nil {
		return nil, nil
	}

	if !cred.Live() {
		return cred, fmt.Errorf("%w: owner %d status %q", ErrCredentialUnusable, ownerID, cred.Status)
	}

	if !cred.ExpiresWithin(s.now(), s.skew) {
		cred.Usable = true
		return cred, nil
	}

	if err := s.refresh(ctx, cred); err != nil {
		s.oplog.LogError("TOKEN_REFRESH", err, map[string]any{"owner_id": ownerID})
		if !errors.Is(err, ErrIntegrationDisabled) {
			if setErr := s.repo.SetCredentialStatus(ctx, ownerID, models.CredentialError); setErr != nil {
				s.logger.Error().Err(setErr).Int64("owner_id", ownerID).Msg("Failed to mark credential as errored")
			}
			cred.Status = models.CredentialError
		}
		return cred, fmt.Errorf("%w: owner %d: %w", ErrCredentialUnusable, ownerID, err)
	}

	cred.Usable = true
	return cred, nil
}

func (s *CredentialStore) refresh(ctx context.Context, cred *models.Credential) error {
	if s.refresher == nil {
		return ErrIntegrationDisabled
	}
	if cred.RefreshToken == "" {
		return errors.New("no refresh token stored")
	}

	tok, err := s.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		return err
	}

	newRefresh := ""
	if tok.RefreshToken != "" && tok.RefreshToken != cred.RefreshToken {
		newRefresh = tok.RefreshToken
	}
	if err := s.repo.UpdateCredentialToken(ctx, cred.ID, tok.AccessToken, newRefresh, tok.Expiry); err != nil {
		return fmt.Errorf("persist refreshed token: %w", err)
	}

	cred.AccessToken = tok.AccessToken
	if newRefresh != "" {
		cred.RefreshToken = newRefresh
	}
	expiry := tok.Expiry
	cred.Expiry = &expiry

	s.oplog.LogSuccess("TOKEN_REFRESH", map[string]any{
		"owner_id":     cred.OwnerID,
		"token_prefix": cred.TokenPrefix(),
		"expires_at":   expiry.Format(time.RFC3339),
	})
	return nil
}

// HasLive reports whether the owner has a credential in a live status. It
// never refreshes tokens.
func (s *CredentialStore) HasLive(ctx context.Context, ownerID int64) (bool, error) {
	cred, err := s.repo.GetCredential(ctx, ownerID)
	if err != nil {
		return false, err
	}
	return cred.Live(), nil
}

// Save stores a freshly connected credential.
func (s *CredentialStore) Save(ctx context.Context, cred *models.Credential) error {
	if cred.Status == "" {
		cred.Status = models.CredentialConnected
	}
	return s.repo.SaveCredential(ctx, cred)
}

// Disconnect clears the owner's tokens and disables sync.
func (s *CredentialStore) Disconnect(ctx context.Context, ownerID int64) error {
	if err := s.repo.DisconnectCredential(ctx, ownerID); err != nil {
		return err
	}
	s.oplog.LogOperation("DISCONNECT", 0, map[string]any{"owner_id": ownerID})
	return nil
}

func (s *CredentialStore) CountLive(ctx context.Context) (int, error) {
	return s.repo.CountLiveCredentials(ctx)
}
