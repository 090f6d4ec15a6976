package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alumniverein/intranet-api/internal/domain/auth"
	"github.com/alumniverein/intranet-api/internal/domain/model"
	apperrors "github.com/alumniverein/intranet-api/internal/errors"
	"github.com/alumniverein/intranet-api/internal/ports"
)

// ErrUserNotFound is returned when no account exists for a lookup.
var ErrUserNotFound = ports.ErrUserNotFound

// LockoutPolicy configures the adaptive lockout applied by
// RegisterFailedLogin. Schedule entries are seconds, indexed by how far the
// counter has passed the threshold; the last entry caps further escalation.
// The schedule must be monotonically non-decreasing.
type LockoutPolicy struct {
	Threshold int
	Schedule  []int64
}

// Validate checks the policy invariants.
func (p LockoutPolicy) Validate() error {
	if p.Threshold < 1 {
		return errors.New("lockout threshold must be at least 1")
	}
	if len(p.Schedule) == 0 {
		return errors.New("lockout schedule cannot be empty")
	}
	for i := 1; i < len(p.Schedule); i++ {
		if p.Schedule[i] < p.Schedule[i-1] {
			return errors.New("lockout schedule must be monotonically non-decreasing")
		}
	}
	return nil
}

// UserRepo provides database operations for member accounts.
type UserRepo struct {
	Pool         *pgxpool.Pool
	Lockout      LockoutPolicy
	timeProvider TimeProvider
}

// NewUserRepo creates a UserRepo with the real time provider.
func NewUserRepo(pool *pgxpool.Pool, lockout LockoutPolicy) *UserRepo {
	return &UserRepo{Pool: pool, Lockout: lockout, timeProvider: &RealTimeProvider{}}
}

// NewUserRepoWithTimeProvider creates a UserRepo with a custom time provider (useful for tests).
func NewUserRepoWithTimeProvider(pool *pgxpool.Pool, lockout LockoutPolicy, tp TimeProvider) *UserRepo {
	return &UserRepo{Pool: pool, Lockout: lockout, timeProvider: tp}
}

var _ ports.UserRepository = (*UserRepo)(nil)

const userColumns = `
	id, email, password_hash, first_name, last_name, role,
	failed_logins, locked_until, totp_secret, totp_enabled,
	external_id, profile_incomplete, notify_news, notify_events,
	created_at, updated_at`

// FindByEmail looks up an account by its (case-insensitive) email address.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT`+userColumns+`
		FROM users
		WHERE email = $1`,
		model.NormalizeEmail(email),
	)
	if err != nil {
		return nil, apperrors.MapDBError(err)
	}

	user, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[model.User])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, apperrors.MapDBError(err)
	}
	return &user, nil
}

// RegisterFailedLogin bumps the failed-attempt counter and sets the lockout
// expiry once the threshold is reached, in a single UPDATE so that two
// concurrent failed attempts cannot both observe "not yet locked". The
// backoff index saturates at the end of the schedule, capping escalation.
func (r *UserRepo) RegisterFailedLogin(ctx context.Context, id int64, now time.Time) (int, *time.Time, error) {
	var (
		attempts    int
		lockedUntil *time.Time
	)
	err := r.Pool.QueryRow(ctx, `
		UPDATE users SET
			failed_logins = failed_logins + 1,
			locked_until = CASE
				WHEN failed_logins + 1 >= $2 THEN
					$3::timestamptz + make_interval(secs =>
						($4::bigint[])[LEAST(failed_logins + 2 - $2, $5)]::double precision)
				ELSE locked_until
			END,
			updated_at = $3
		WHERE id = $1
		RETURNING failed_logins, locked_until`,
		id, r.Lockout.Threshold, now.UTC(), r.Lockout.Schedule, len(r.Lockout.Schedule),
	).Scan(&attempts, &lockedUntil)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, ErrUserNotFound
		}
		return 0, nil, apperrors.MapDBError(err)
	}
	return attempts, lockedUntil, nil
}

// ResetLockout clears the failed-attempt counter and any lockout expiry.
func (r *UserRepo) ResetLockout(ctx context.Context, id int64) error {
	tag, err := r.Pool.Exec(ctx, `
		UPDATE users SET failed_logins = 0, locked_until = NULL, updated_at = $2
		WHERE id = $1`,
		id, r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateAfterFederatedLogin rewrites the fields every federated login owns:
// role and IdP linkage. The profile-completeness flag is deliberately left
// alone so a half-registered account keeps being routed to registration.
func (r *UserRepo) UpdateAfterFederatedLogin(ctx context.Context, id int64, upd ports.FederatedUpdate) error {
	tag, err := r.Pool.Exec(ctx, `
		UPDATE users SET role = $2, external_id = $3, updated_at = $4
		WHERE id = $1`,
		id, upd.Role, upd.ExternalID, r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetRole assigns a new role; used by the admin CLI, never by federated
// login, which goes through UpdateAfterFederatedLogin.
func (r *UserRepo) SetRole(ctx context.Context, id int64, role auth.Role) error {
	if !auth.Known(role) {
		return apperrors.New(apperrors.ErrCodeValidation, "role must be a known internal role")
	}
	tag, err := r.Pool.Exec(ctx, `
		UPDATE users SET role = $2, updated_at = $3
		WHERE id = $1`,
		id, role, r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetPassword replaces the stored password hash and clears any lockout.
func (r *UserRepo) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	if passwordHash == "" {
		return apperrors.New(apperrors.ErrCodeValidation, "password hash is required")
	}
	tag, err := r.Pool.Exec(ctx, `
		UPDATE users SET password_hash = $2, failed_logins = 0, locked_until = NULL, updated_at = $3
		WHERE id = $1`,
		id, passwordHash, r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetTOTP stores or clears the TOTP enrollment. A nil secret disables the
// second factor entirely.
func (r *UserRepo) SetTOTP(ctx context.Context, id int64, secret *string, enabled bool) error {
	if secret == nil {
		enabled = false
	}
	tag, err := r.Pool.Exec(ctx, `
		UPDATE users SET totp_secret = $2, totp_enabled = $3, updated_at = $4
		WHERE id = $1`,
		id, secret, enabled, r.timeProvider.Now().UTC(),
	)
	if err != nil {
		return apperrors.MapDBError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateSyncedProfile mirrors directory name fields onto the account.
func (r *UserRepo) UpdateSyncedProfile(ctx context.Context, id int64, profile ports.DirectoryProfile) error {
	if profile.FirstName == "" && profile.LastName == "" {
		return nil
	}
	_, err := r.Pool.Exec(ctx, `
		UPDATE users SET
			first_name = COALESCE(NULLIF($2, ''), first_name),
			last_name  = COALESCE(NULLIF($3, ''), last_name),
			updated_at = $4
		WHERE id = $1`,
		id, profile.FirstName, profile.LastName, r.timeProvider.Now().UTC(),
	)
	return apperrors.MapDBError(err)
}

// SavePhoto upserts the directory photo for an account.
func (r *UserRepo) SavePhoto(ctx context.Context, id int64, photo []byte) error {
	if len(photo) == 0 {
		return nil
	}
	_, err := r.Pool.Exec(ctx, `
		INSERT INTO user_photos (user_id, photo, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET photo = EXCLUDED.photo, updated_at = EXCLUDED.updated_at`,
		id, photo, r.timeProvider.Now().UTC(),
	)
	return apperrors.MapDBError(err)
}

// Insert creates a new account and returns its id. A duplicate email maps to
// a Conflict error via pgerrcode.
func (r *UserRepo) Insert(ctx context.Context, u *model.User) (int64, error) {
	if u == nil {
		return 0, errors.New("user is required")
	}
	if err := u.Validate(); err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid user")
	}

	now := r.timeProvider.Now().UTC()
	var id int64
	err := r.Pool.QueryRow(ctx, `
		INSERT INTO users (
			email, password_hash, first_name, last_name, role,
			totp_secret, totp_enabled, external_id, profile_incomplete,
			notify_news, notify_events, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12)
		RETURNING id`,
		model.NormalizeEmail(u.Email), u.PasswordHash, u.FirstName, u.LastName, u.Role,
		u.TOTPSecret, u.TOTPEnabled, u.ExternalID, u.ProfileIncomplete,
		u.NotifyNews, u.NotifyEvents, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert user: %w", apperrors.MapDBError(err))
	}
	return id, nil
}
