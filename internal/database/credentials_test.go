package database

import (
	"context"
	"testing"
	"time"

	"booksync/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentials(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	ctx := context.Background()

	got, err := db.GetCredential(ctx, 7)
	require.NoError(t, err)
	assert.Nil(t, got)

	expiry := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	cred := &models.Credential{
		OwnerID:      7,
		OwnerName:    "Dr. Smith",
		CalendarID:   "primary",
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		Expiry:       &expiry,
		Status:       models.CredentialConnected,
	}
	require.NoError(t, db.SaveCredential(ctx, cred))
	assert.NotZero(t, cred.ID)

	got, err = db.GetCredential(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "access-1", got.AccessToken)
	require.NotNil(t, got.Expiry)
	assert.True(t, expiry.Equal(*got.Expiry))

	n, err := db.CountLiveCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	t.Run("UpdateToken", func(t *testing.T) {
		newExpiry := expiry.Add(time.Hour)
		require.NoError(t, db.UpdateCredentialToken(ctx, cred.ID, "access-2", "", newExpiry))
		got, err := db.GetCredential(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "access-2", got.AccessToken)
		assert.Equal(t, "refresh-1", got.RefreshToken)
		assert.True(t, newExpiry.Equal(*got.Expiry))

		require.NoError(t, db.UpdateCredentialToken(ctx, cred.ID, "access-3", "refresh-2", newExpiry))
		got, err = db.GetCredential(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, "refresh-2", got.RefreshToken)

		assert.ErrorIs(t, db.UpdateCredentialToken(ctx, 999, "x", "", newExpiry), ErrCredentialNotFound)
	})

	t.Run("StatusAndDisconnect", func(t *testing.T) {
		require.NoError(t, db.SetCredentialStatus(ctx, 7, models.CredentialError))
		n, err := db.CountLiveCredentials(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, db.DisconnectCredential(ctx, 7))
		got, err := db.GetCredential(ctx, 7)
		require.NoError(t, err)
		assert.Equal(t, models.CredentialDisabled, got.Status)
		assert.Empty(t, got.AccessToken)
		assert.Empty(t, got.RefreshToken)
		assert.Empty(t, got.CalendarID)
		assert.Nil(t, got.Expiry)

		assert.ErrorIs(t, db.DisconnectCredential(ctx, 999), ErrCredentialNotFound)
		assert.ErrorIs(t, db.SetCredentialStatus(ctx, 999, models.CredentialActive), ErrCredentialNotFound)
	})
}
