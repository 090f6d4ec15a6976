package data

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alumniverein/intranet-api/internal/domain/auth"
	"github.com/alumniverein/intranet-api/internal/domain/model"
	apperrors "github.com/alumniverein/intranet-api/internal/errors"
	"github.com/alumniverein/intranet-api/internal/ports"
)

// setupTestDB connects to the database named by TEST_DATABASE_URL, applies
// migrations, and wipes the tables this package owns. Tests are skipped when
// no database is configured.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set; skipping database integration test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, RunMigrations(ctx, pool))
	_, err = pool.Exec(ctx, `TRUNCATE user_photos, audit_log, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	return pool
}

func testPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: 3, Schedule: []int64{60, 300, 900, 3600}}
}

func insertTestUser(t *testing.T, repo *UserRepo, email string) int64 {
	t.Helper()
	id, err := repo.Insert(context.Background(), &model.User{
		Email:        email,
		PasswordHash: "x",
		FirstName:    "Test",
		LastName:     "User",
		Role:         auth.RoleMember,
	})
	require.NoError(t, err)
	return id
}

func TestInsertAndFindByEmailNormalizes(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepo(pool, testPolicy())
	ctx := context.Background()

	id := insertTestUser(t, repo, "  Mia.Member@Example.COM ")

	user, err := repo.FindByEmail(ctx, "mia.member@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
	assert.Equal(t, "mia.member@example.com", user.Email)
	assert.Equal(t, auth.RoleMember, user.Role)

	// Lookup is case-insensitive too.
	user, err = repo.FindByEmail(ctx, "MIA.MEMBER@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, user.ID)
}

func TestFindByEmailUnknown(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepo(pool, testPolicy())

	_, err := repo.FindByEmail(context.Background(), "nobody@example.com")
	assert.ErrorIs(t, err, ports.ErrUserNotFound)
}

func TestInsertDuplicateEmailConflicts(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepo(pool, testPolicy())

	insertTestUser(t, repo, "dup@example.com")
	_, err := repo.Insert(context.Background(), &model.User{
		Email:        "DUP@example.com",
		PasswordHash: "x",
		Role:         auth.RoleMember,
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.GetCode(err))
}

func TestRegisterFailedLoginEscalation(t *testing.T) {
	pool := setupTestDB(t)
	clock := NewFixedTimeProvider(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := NewUserRepoWithTimeProvider(pool, testPolicy(), clock)
	ctx := context.Background()

	id := insertTestUser(t, repo, "locked@example.com")
	now := clock.Now()

	// Below the threshold no lockout is applied.
	for want := 1; want <= 2; want++ {
		attempts, lockedUntil, err := repo.RegisterFailedLogin(ctx, id, now)
		require.NoError(t, err)
		assert.Equal(t, want, attempts)
		assert.Nil(t, lockedUntil)
	}

	// Escalating windows from the threshold on, capped by the last entry.
	wantSeconds := []int64{60, 300, 900, 3600, 3600}
	for i, secs := range wantSeconds {
		attempts, lockedUntil, err := repo.RegisterFailedLogin(ctx, id, now)
		require.NoError(t, err)
		assert.Equal(t, 3+i, attempts)
		require.NotNil(t, lockedUntil, "attempt %d should lock", 3+i)
		assert.WithinDuration(t, now.Add(time.Duration(secs)*time.Second), *lockedUntil, time.Second,
			fmt.Sprintf("attempt %d", 3+i))
	}
}

func TestResetLockout(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepo(pool, testPolicy())
	ctx := context.Background()

	id := insertTestUser(t, repo, "reset@example.com")
	now := time.Now().UTC()
	for i := 0; i < 3; i++ {
		_, _, err := repo.RegisterFailedLogin(ctx, id, now)
		require.NoError(t, err)
	}

	require.NoError(t, repo.ResetLockout(ctx, id))

	user, err := repo.FindByEmail(ctx, "reset@example.com")
	require.NoError(t, err)
	assert.Zero(t, user.FailedLogins)
	assert.Nil(t, user.LockedUntil)

	assert.ErrorIs(t, repo.ResetLockout(ctx, 999999), ErrUserNotFound)
}

func TestUpdateAfterFederatedLoginKeepsProfileFlag(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepo(pool, testPolicy())
	ctx := context.Background()

	id, err := repo.Insert(ctx, &model.User{
		Email:             "fed@example.com",
		PasswordHash:      "x",
		Role:              auth.RoleCandidate,
		ProfileIncomplete: true,
	})
	require.NoError(t, err)

	require.NoError(t, repo.UpdateAfterFederatedLogin(ctx, id, ports.FederatedUpdate{
		Role:       auth.RoleBoardInternal,
		ExternalID: "ext-9",
	}))

	user, err := repo.FindByEmail(ctx, "fed@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleBoardInternal, user.Role)
	require.NotNil(t, user.ExternalID)
	assert.Equal(t, "ext-9", *user.ExternalID)
	assert.True(t, user.ProfileIncomplete)
}

func TestUpdateSyncedProfileSkipsEmptyFields(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepo(pool, testPolicy())
	ctx := context.Background()

	id := insertTestUser(t, repo, "sync@example.com")

	require.NoError(t, repo.UpdateSyncedProfile(ctx, id, ports.DirectoryProfile{FirstName: "Mira"}))

	user, err := repo.FindByEmail(ctx, "sync@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Mira", user.FirstName)
	assert.Equal(t, "User", user.LastName)
}

func TestSetRoleAndSetTOTP(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepo(pool, testPolicy())
	ctx := context.Background()

	id := insertTestUser(t, repo, "admin@example.com")

	require.Error(t, repo.SetRole(ctx, id, auth.Role("king")))
	require.NoError(t, repo.SetRole(ctx, id, auth.RoleBoardFinance))

	secret := "JBSWY3DPEHPK3PXP"
	require.NoError(t, repo.SetTOTP(ctx, id, &secret, true))

	user, err := repo.FindByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleBoardFinance, user.Role)
	assert.True(t, user.SecondFactorRequired())

	require.NoError(t, repo.SetTOTP(ctx, id, nil, true))
	user, err = repo.FindByEmail(ctx, "admin@example.com")
	require.NoError(t, err)
	assert.False(t, user.SecondFactorRequired())
}

func TestSavePhotoUpserts(t *testing.T) {
	pool := setupTestDB(t)
	repo := NewUserRepo(pool, testPolicy())
	ctx := context.Background()

	id := insertTestUser(t, repo, "photo@example.com")

	require.NoError(t, repo.SavePhoto(ctx, id, []byte{1, 2, 3}))
	require.NoError(t, repo.SavePhoto(ctx, id, []byte{4, 5}))

	var photo []byte
	require.NoError(t, pool.QueryRow(ctx, `SELECT photo FROM user_photos WHERE user_id = $1`, id).Scan(&photo))
	assert.Equal(t, []byte{4, 5}, photo)
}

func TestAuditRecordInserts(t *testing.T) {
	pool := setupTestDB(t)
	userRepo := NewUserRepo(pool, testPolicy())
	audit := NewAuditRepo(pool, slog.Default())
	ctx := context.Background()

	id := insertTestUser(t, userRepo, "audit@example.com")

	audit.Record(ctx, ports.AuditEvent{
		SubjectID: &id,
		Action:    "login.success",
		IP:        "10.0.0.1",
		UserAgent: "test-agent",
	})

	var count int
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT count(*) FROM audit_log WHERE subject_id = $1 AND action = 'login.success'`, id).Scan(&count))
	assert.Equal(t, 1, count)
}
