package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/alumniverein/intranet-api/internal/domain/model"
	"github.com/alumniverein/intranet-api/internal/observability/metrics"
	"github.com/alumniverein/intranet-api/internal/observability/statsd"
	"github.com/alumniverein/intranet-api/internal/ports"
)

// LoginStatus is the discriminator for LoginResult. Expected authentication
// outcomes are values here, not errors; errors are reserved for
// infrastructure failures.
type LoginStatus string

const (
	LoginSuccess              LoginStatus = "success"
	LoginInvalidCredentials   LoginStatus = "invalid_credentials"
	LoginLocked               LoginStatus = "locked"
	LoginSecondFactorRequired LoginStatus = "second_factor_required"
	LoginSecondFactorInvalid  LoginStatus = "second_factor_invalid"
)

// LoginInput groups parameters for a password login attempt.
type LoginInput struct {
	Email    string
	Password string
	OTP      string

	// Request metadata, recorded in the audit trail only.
	IP        string
	UserAgent string
}

// LoginResult is the outcome of a password login attempt. User is set only
// on success. RetryAfter is set when Status is LoginLocked.
type LoginResult struct {
	Status     LoginStatus
	User       *model.User
	RetryAfter time.Duration
}

// CredentialServiceOptions groups dependencies for CredentialService.
type CredentialServiceOptions struct {
	Users        ports.UserRepository
	SecondFactor ports.SecondFactor
	Audit        ports.AuditSink
	Metrics      statsd.Sink
	Logger       *slog.Logger
	Clock        func() time.Time
}

// CredentialService performs email/password authentication with adaptive
// lockout and an optional TOTP second factor. Failures are reported
// generically so callers cannot distinguish an unknown address from a wrong
// password.
type CredentialService struct {
	users        ports.UserRepository
	secondFactor ports.SecondFactor
	audit        ports.AuditSink
	metrics      statsd.Sink
	logger       *slog.Logger
	clock        func() time.Time
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(opts CredentialServiceOptions) *CredentialService {
	s := &CredentialService{
		users:        opts.Users,
		secondFactor: opts.SecondFactor,
		audit:        opts.Audit,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		clock:        opts.Clock,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	return s
}

// Precomputed hash of an unguessable value, compared against when the email
// is unknown so both branches pay the bcrypt cost.
var unknownUserHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Login runs one password login attempt. Audit events are recorded for every
// outcome; the wall clock is read once so all decisions within the attempt
// agree on "now".
func (s *CredentialService) Login(ctx context.Context, in LoginInput) (LoginResult, error) {
	now := s.clock()

	user, err := s.users.FindByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, ports.ErrUserNotFound) {
			// Equalize timing with the known-user path.
			_ = bcrypt.CompareHashAndPassword(unknownUserHash, []byte(in.Password))
			s.record(ctx, nil, "login.failure", "unknown email", in)
			s.emit(metrics.OutcomeInvalidCredentials)
			return LoginResult{Status: LoginInvalidCredentials}, nil
		}
		return LoginResult{}, fmt.Errorf("find user: %w", err)
	}

	if user.Locked(now) {
		s.record(ctx, &user.ID, "login.locked", "attempt during active lockout", in)
		s.emit(metrics.OutcomeLocked)
		return LoginResult{Status: LoginLocked, RetryAfter: user.LockedFor(now)}, nil
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.Password)) != nil {
		return s.registerFailure(ctx, user, now, "login.failure", "wrong password", in)
	}

	if user.SecondFactorRequired() {
		if in.OTP == "" {
			s.record(ctx, &user.ID, "login.second_factor_required", "", in)
			s.emit(metrics.OutcomeSecondFactorMissing)
			return LoginResult{Status: LoginSecondFactorRequired}, nil
		}
		if !s.secondFactor.Verify(*user.TOTPSecret, in.OTP, now) {
			res, failErr := s.registerFailure(ctx, user, now, "login.failure", "invalid one-time code", in)
			if failErr != nil {
				return LoginResult{}, failErr
			}
			if res.Status == LoginInvalidCredentials {
				res.Status = LoginSecondFactorInvalid
			}
			s.emit(metrics.OutcomeSecondFactorInvalid)
			return res, nil
		}
	}

	if user.FailedLogins > 0 || user.LockedUntil != nil {
		if resetErr := s.users.ResetLockout(ctx, user.ID); resetErr != nil {
			return LoginResult{}, fmt.Errorf("reset lockout: %w", resetErr)
		}
		user.FailedLogins = 0
		user.LockedUntil = nil
	}

	s.record(ctx, &user.ID, "login.success", "", in)
	s.emit(metrics.OutcomeSuccess)
	return LoginResult{Status: LoginSuccess, User: user}, nil
}

// registerFailure bumps the failure counter atomically and reports either a
// plain failure or, when the increment crossed the threshold, a lockout.
func (s *CredentialService) registerFailure(
	ctx context.Context,
	user *model.User,
	now time.Time,
	action, detail string,
	in LoginInput,
) (LoginResult, error) {
	attempts, lockedUntil, err := s.users.RegisterFailedLogin(ctx, user.ID, now)
	if err != nil {
		return LoginResult{}, fmt.Errorf("register failed login: %w", err)
	}

	s.record(ctx, &user.ID, action, detail, in)
	s.logger.InfoContext(ctx, "failed login attempt",
		"subject_id", user.ID, "attempts", attempts)

	if lockedUntil != nil && lockedUntil.After(now) {
		s.record(ctx, &user.ID, "login.lockout", "threshold reached", in)
		s.emit(metrics.OutcomeLocked)
		return LoginResult{Status: LoginLocked, RetryAfter: lockedUntil.Sub(now)}, nil
	}

	s.emit(metrics.OutcomeInvalidCredentials)
	return LoginResult{Status: LoginInvalidCredentials}, nil
}

func (s *CredentialService) record(ctx context.Context, subjectID *int64, action, detail string, in LoginInput) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, ports.AuditEvent{
		SubjectID: subjectID,
		Action:    action,
		Detail:    detail,
		IP:        in.IP,
		UserAgent: in.UserAgent,
	})
}

func (s *CredentialService) emit(outcome string) {
	metrics.EmitLogin(s.metrics, metrics.LoginMetric{
		Method:  metrics.MethodPassword,
		Outcome: outcome,
	})
}
