package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/alumniverein/intranet-api/internal/domain/auth"
	"github.com/alumniverein/intranet-api/internal/domain/model"
	"github.com/alumniverein/intranet-api/internal/ports"
)

func TestMemorySessionStoreRotate(t *testing.T) {
	ctx := context.Background()
	store := NewMemorySessionStore()

	sess := domainauth.Session{ID: "s1", SubjectID: 7, Role: domainauth.RoleMember}
	require.NoError(t, store.Put(ctx, sess, time.Hour))

	newID, err := store.Rotate(ctx, "s1")
	require.NoError(t, err)
	assert.NotEqual(t, "s1", newID)
	assert.False(t, store.Has("s1"))

	rotated, err := store.Get(ctx, newID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), rotated.SubjectID)
	assert.Equal(t, newID, rotated.ID)
}

func TestMemorySessionStoreRotateMissing(t *testing.T) {
	store := NewMemorySessionStore()
	_, err := store.Rotate(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUserRepositoryLockout(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	id := repo.Seed(model.User{Email: "a@example.com", PasswordHash: "x", Role: domainauth.RoleMember})

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i := 1; i <= 2; i++ {
		attempts, lockedUntil, err := repo.RegisterFailedLogin(ctx, id, now)
		require.NoError(t, err)
		assert.Equal(t, i, attempts)
		assert.Nil(t, lockedUntil)
	}

	attempts, lockedUntil, err := repo.RegisterFailedLogin(ctx, id, now)
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	require.NotNil(t, lockedUntil)
	assert.Equal(t, now.Add(time.Minute), *lockedUntil)

	require.NoError(t, repo.ResetLockout(ctx, id))
	u, ok := repo.GetByID(id)
	require.True(t, ok)
	assert.Zero(t, u.FailedLogins)
	assert.Nil(t, u.LockedUntil)
}

func TestMemoryUserRepositoryFindByEmailNormalizes(t *testing.T) {
	repo := NewMemoryUserRepository()
	repo.Seed(model.User{Email: "Mixed@Example.com", PasswordHash: "x", Role: domainauth.RoleMember})

	u, err := repo.FindByEmail(context.Background(), "  mixed@example.com ")
	require.NoError(t, err)
	assert.Equal(t, "mixed@example.com", u.Email)

	_, err = repo.FindByEmail(context.Background(), "other@example.com")
	assert.ErrorIs(t, err, ports.ErrUserNotFound)
}

func TestStaticSecondFactor(t *testing.T) {
	sf := StaticSecondFactor{Accept: "123456"}
	assert.True(t, sf.Verify("secret", "123456", time.Now()))
	assert.False(t, sf.Verify("secret", "654321", time.Now()))
	assert.False(t, StaticSecondFactor{}.Verify("secret", "", time.Now()))
}
