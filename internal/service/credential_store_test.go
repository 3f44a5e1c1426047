package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"booksync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeRefresher struct {
	tok   *oauth2.Token
	err   error
	calls int
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.tok, nil
}

func seedCredential(t *testing.T, store *CredentialStore, status string, expiry time.Time) {
	t.Helper()
	require.NoError(t, store.Save(context.Background(), &models.Credential{
		OwnerID:      7,
		CalendarID:   "primary",
		AccessToken:  "old-access",
		RefreshToken: "refresh-1",
		Expiry:       &expiry,
		Status:       status,
	}))
}

func TestCredentialStore_Get(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()
	now := time.Now()

	t.Run("NoRow", func(t *testing.T) {
		store := NewCredentialStore(newTestDB(t), &fakeRefresher{}, 0, nil, &logger)
		cred, err := store.Get(ctx, 7)
		assert.NoError(t, err)
		assert.Nil(t, cred)
	})

	t.Run("FreshTokenNoRefresh", func(t *testing.T) {
		refresher := &fakeRefresher{}
		store := NewCredentialStore(newTestDB(t), refresher, 5*time.Minute, nil, &logger)
		seedCredential(t, store, models.CredentialConnected, now.Add(time.Hour))

		cred, err := store.Get(ctx, 7)
		require.NoError(t, err)
		assert.True(t, cred.Usable)
		assert.Equal(t, "old-access", cred.AccessToken)
		assert.Zero(t, refresher.calls)
	})

	t.Run("ExpiringTokenRefreshed", func(t *testing.T) {
		db := newTestDB(t)
		newExpiry := now.Add(time.Hour).UTC().Truncate(time.Second)
		refresher := &fakeRefresher{tok: &oauth2.Token{AccessToken: "new-access", RefreshToken: "refresh-1", Expiry: newExpiry}}
		store := NewCredentialStore(db, refresher, 5*time.Minute, nil, &logger)
		// Inside the skew window.
		seedCredential(t, store, models.CredentialActive, now.Add(2*time.Minute))

		cred, err := store.Get(ctx, 7)
		require.NoError(t, err)
		assert.True(t, cred.Usable)
		assert.Equal(t, "new-access", cred.AccessToken)
		assert.Equal(t, 1, refresher.calls)

		stored, err := db.GetCredential(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "new-access", stored.AccessToken)
		assert.Equal(t, "refresh-1", stored.RefreshToken)
		assert.True(t, newExpiry.Equal(*stored.Expiry))
	})

	t.Run("RefreshFailureMarksError", func(t *testing.T) {
		db := newTestDB(t)
		store := NewCredentialStore(db, &fakeRefresher{err: errors.New("invalid_grant")}, 0, nil, &logger)
		seedCredential(t, store, models.CredentialEnabled, now.Add(-time.Hour))

		cred, err := store.Get(ctx, 7)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCredentialUnusable)
		require.NotNil(t, cred)
		assert.False(t, cred.Usable)

		stored, err := db.GetCredential(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, models.CredentialError, stored.Status)

		live, err := store.HasLive(ctx, 7)
		require.NoError(t, err)
		assert.False(t, live)
	})

	t.Run("NoRefresherLeavesStatus", func(t *testing.T) {
		db := newTestDB(t)
		store := NewCredentialStore(db, nil, 0, nil, &logger)
		seedCredential(t, store, models.CredentialConnected, now.Add(-time.Hour))

		_, err := store.Get(ctx, 7)
		assert.ErrorIs(t, err, ErrCredentialUnusable)
		assert.ErrorIs(t, err, ErrIntegrationDisabled)

		stored, err := db.GetCredential(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, models.CredentialConnected, stored.Status)
	})

	t.Run("NotLive", func(t *testing.T) {
		refresher := &fakeRefresher{}
		store := NewCredentialStore(newTestDB(t), refresher, 0, nil, &logger)
		seedCredential(t, store, models.CredentialDisconnected, now.Add(time.Hour))

		cred, err := store.Get(ctx, 7)
		assert.ErrorIs(t, err, ErrCredentialUnusable)
		assert.False(t, cred.Usable)
		assert.Zero(t, refresher.calls)
	})
}

func TestCredentialStore_Disconnect(t *testing.T) {
	logger := zerolog.Nop()
	ctx := context.Background()
	store := NewCredentialStore(newTestDB(t), nil, 0, nil, &logger)
	seedCredential(t, store, models.CredentialConnected, time.Now().Add(time.Hour))

	n, err := store.CountLive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, store.Disconnect(ctx, 7))
	live, err := store.HasLive(ctx, 7)
	require.NoError(t, err)
	assert.False(t, live)

	n, err = store.CountLive(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}
