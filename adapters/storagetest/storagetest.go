// Package storagetest holds the behaviour every core.AuthStorage adapter must
// share. Adapter packages run it from their own tests.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lborres/bhvr/core"
)

// Factory returns an empty storage for one subtest.
type Factory func(t *testing.T) core.AuthStorage

// Run exercises users, accounts and sessions against fresh storages from newStorage.
func Run(t *testing.T, newStorage Factory) {
	t.Helper()

	t.Run("Users", func(t *testing.T) { testUsers(t, newStorage) })
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStorage) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, newStorage) })
	t.Run("DeleteUserCascades", func(t *testing.T) { testDeleteUserCascades(t, newStorage) })
}

func createUser(t *testing.T, s core.AuthStorage, email string) *core.User {
	t.Helper()
	name := "Test User"
	u := &core.User{Email: email, Name: &name}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func newSession(userID string, expiresAt time.Time) *core.Session {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &core.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: uuid.NewString(),
		IPAddress: "127.0.0.1",
		UserAgent: "storagetest",
		ExpiresAt: expiresAt.UTC().Truncate(time.Millisecond),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testUsers(t *testing.T, newStorage Factory) {
	ctx := context.Background()
	s := newStorage(t)

	u := createUser(t, s, "ada@example.com")
	assert.NotEmpty(t, u.ID, "CreateUser should assign an id")
	assert.False(t, u.CreatedAt.IsZero(), "CreateUser should stamp CreatedAt")

	byID, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", byID.Email)
	require.NotNil(t, byID.Name)
	assert.Equal(t, "Test User", *byID.Name)
	assert.Nil(t, byID.Image)

	byEmail, err := s.GetUserByEmail(ctx, "ADA@example.com")
	require.NoError(t, err, "email lookup should ignore case")
	assert.Equal(t, u.ID, byEmail.ID)

	err = s.CreateUser(ctx, &core.User{Email: "Ada@Example.com"})
	assert.ErrorIs(t, err, core.ErrUserExists)

	_, err = s.GetUserByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, core.ErrUserNotFound)
	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, core.ErrUserNotFound)

	byID.EmailVerified = true
	byID.Name = nil
	require.NoError(t, s.UpdateUser(ctx, byID))
	updated, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, updated.EmailVerified)
	assert.Nil(t, updated.Name)

	err = s.UpdateUser(ctx, &core.User{ID: uuid.NewString(), Email: "ghost@example.com"})
	assert.ErrorIs(t, err, core.ErrUserNotFound)

	require.NoError(t, s.DeleteUser(ctx, u.ID))
	_, err = s.GetUserByID(ctx, u.ID)
	assert.ErrorIs(t, err, core.ErrUserNotFound)
	assert.ErrorIs(t, s.DeleteUser(ctx, u.ID), core.ErrUserNotFound)
}

func testAccounts(t *testing.T, newStorage Factory) {
	ctx := context.Background()
	s := newStorage(t)
	u := createUser(t, s, "grace@example.com")

	hash := "hashed-password"
	acc := &core.Account{UserID: u.ID, ProviderID: core.ProviderCredential, AccountID: u.ID, Password: &hash}
	require.NoError(t, s.CreateAccount(ctx, acc))
	assert.NotEmpty(t, acc.ID)

	got, err := s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Password)
	assert.Equal(t, hash, *got.Password)

	list, err := s.GetAccountByUserAndProvider(ctx, u.ID, core.ProviderCredential)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, acc.ID, list[0].ID)

	none, err := s.GetAccountByUserAndProvider(ctx, u.ID, "github")
	require.NoError(t, err)
	assert.Empty(t, none)

	newHash := "rehashed"
	got.Password = &newHash
	require.NoError(t, s.UpdateAccount(ctx, got))
	got, err = s.GetAccountByID(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, newHash, *got.Password)

	err = s.CreateAccount(ctx, &core.Account{UserID: uuid.NewString(), ProviderID: core.ProviderCredential, AccountID: "x"})
	assert.ErrorIs(t, err, core.ErrUserNotFound, "accounts need an existing user")

	_, err = s.GetAccountByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, core.ErrAccountNotFound)
	assert.ErrorIs(t, s.UpdateAccount(ctx, &core.Account{ID: uuid.NewString()}), core.ErrAccountNotFound)

	require.NoError(t, s.DeleteAccount(ctx, acc.ID))
	assert.ErrorIs(t, s.DeleteAccount(ctx, acc.ID), core.ErrAccountNotFound)
}

func testSessions(t *testing.T, newStorage Factory) {
	ctx := context.Background()
	s := newStorage(t)
	u := createUser(t, s, "linus@example.com")

	live := newSession(u.ID, time.Now().Add(time.Hour))
	require.NoError(t, s.CreateSession(ctx, live))
	other := newSession(u.ID, time.Now().Add(time.Hour))
	require.NoError(t, s.CreateSession(ctx, other))
	expired := newSession(u.ID, time.Now().Add(-time.Minute))
	require.NoError(t, s.CreateSession(ctx, expired))

	byHash, err := s.GetSessionByHash(ctx, live.TokenHash)
	require.NoError(t, err)
	assert.Equal(t, live.ID, byHash.ID)
	assert.Equal(t, live.IPAddress, byHash.IPAddress)
	assert.WithinDuration(t, live.ExpiresAt, byHash.ExpiresAt, time.Millisecond)

	byID, err := s.GetSessionByID(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, live.TokenHash, byID.TokenHash)

	_, err = s.GetSessionByHash(ctx, "missing")
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	_, err = s.GetSessionByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	all, err := s.GetUserSessions(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	extended := *byID
	extended.ExpiresAt = time.Now().Add(2 * time.Hour).UTC().Truncate(time.Millisecond)
	extended.UpdatedAt = time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, s.UpdateSession(ctx, &extended))
	reread, err := s.GetSessionByHash(ctx, live.TokenHash)
	require.NoError(t, err)
	assert.WithinDuration(t, extended.ExpiresAt, reread.ExpiresAt, time.Millisecond)

	missing := newSession(u.ID, time.Now().Add(time.Hour))
	assert.ErrorIs(t, s.UpdateSession(ctx, missing), core.ErrSessionNotFound)

	purged, err := s.DeleteExpiredSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)
	_, err = s.GetSessionByID(ctx, expired.ID)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)

	require.NoError(t, s.DeleteSessionByHash(ctx, live.TokenHash))
	assert.ErrorIs(t, s.DeleteSessionByHash(ctx, live.TokenHash), core.ErrSessionNotFound)
	assert.ErrorIs(t, s.DeleteSessionByID(ctx, live.ID), core.ErrSessionNotFound)

	require.NoError(t, s.CreateSession(ctx, newSession(u.ID, time.Now().Add(time.Hour))))
	n, err := s.DeleteUserSessions(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	all, err = s.GetUserSessions(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func testDeleteUserCascades(t *testing.T, newStorage Factory) {
	ctx := context.Background()
	s := newStorage(t)
	u := createUser(t, s, "barbara@example.com")

	acc := &core.Account{UserID: u.ID, ProviderID: core.ProviderCredential, AccountID: u.ID}
	require.NoError(t, s.CreateAccount(ctx, acc))
	sess := newSession(u.ID, time.Now().Add(time.Hour))
	require.NoError(t, s.CreateSession(ctx, sess))

	require.NoError(t, s.DeleteUser(ctx, u.ID))

	_, err := s.GetAccountByID(ctx, acc.ID)
	assert.ErrorIs(t, err, core.ErrAccountNotFound)
	_, err = s.GetSessionByHash(ctx, sess.TokenHash)
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
}
