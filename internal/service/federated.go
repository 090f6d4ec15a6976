package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	domainauth "github.com/alumniverein/intranet-api/internal/domain/auth"
	"github.com/alumniverein/intranet-api/internal/domain/model"
	apperrors "github.com/alumniverein/intranet-api/internal/errors"
	"github.com/alumniverein/intranet-api/internal/observability/metrics"
	"github.com/alumniverein/intranet-api/internal/observability/statsd"
	"github.com/alumniverein/intranet-api/internal/ports"
)

// FederatedServiceOptions groups dependencies for FederatedService.
type FederatedServiceOptions struct {
	Sessions  *SessionManager
	Provider  ports.AuthProvider
	Directory ports.DirectoryClient
	Roles     ports.RoleResolver
	Users     ports.UserRepository
	Audit     ports.AuditSink
	Metrics   statsd.Sink
	Logger    *slog.Logger
}

// FederatedService runs the OIDC sign-in flow end to end: state handling,
// code exchange, claim-to-role resolution, account provisioning, and session
// establishment. A fatal callback failure never establishes a session.
type FederatedService struct {
	sessions  *SessionManager
	provider  ports.AuthProvider
	directory ports.DirectoryClient
	roles     ports.RoleResolver
	users     ports.UserRepository
	audit     ports.AuditSink
	metrics   statsd.Sink
	logger    *slog.Logger
}

// NewFederatedService constructs a FederatedService.
func NewFederatedService(opts FederatedServiceOptions) *FederatedService {
	s := &FederatedService{
		sessions:  opts.Sessions,
		provider:  opts.Provider,
		directory: opts.Directory,
		roles:     opts.Roles,
		users:     opts.Users,
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Begin starts the authorization-code flow. The anti-forgery state is bound
// to the caller's session and persisted before the redirect URL is handed
// out, so the callback can only be answered by the same browser session.
func (s *FederatedService) Begin(ctx context.Context, sess domainauth.Session) (string, domainauth.Session, error) {
	state, err := NewOAuthState()
	if err != nil {
		return "", domainauth.Session{}, fmt.Errorf("generate oauth state: %w", err)
	}

	sess.OAuthState = state
	if saveErr := s.sessions.Save(ctx, sess); saveErr != nil {
		return "", domainauth.Session{}, fmt.Errorf("persist oauth state: %w", saveErr)
	}
	return s.provider.AuthCodeURL(state), sess, nil
}

// CallbackInput groups the IdP callback parameters plus request metadata.
type CallbackInput struct {
	State            string
	Code             string
	ErrorParam       string
	ErrorDescription string

	IP        string
	UserAgent string
}

// Callback completes the flow. The session-bound state is consumed before
// anything else so it is single-use even when later steps fail; a replayed
// callback then fails the state check.
func (s *FederatedService) Callback(
	ctx context.Context,
	sess domainauth.Session,
	in CallbackInput,
) (domainauth.Session, *model.User, error) {
	expected := sess.OAuthState
	sess.OAuthState = ""
	if saveErr := s.sessions.Save(ctx, sess); saveErr != nil {
		return domainauth.Session{}, nil, fmt.Errorf("clear oauth state: %w", saveErr)
	}

	if expected == "" || in.State == "" ||
		subtle.ConstantTimeCompare([]byte(expected), []byte(in.State)) != 1 {
		s.recordFailure(ctx, "login.federated.state_mismatch", in)
		return domainauth.Session{}, nil, apperrors.New(apperrors.ErrCodeStateMismatch,
			"callback state does not match the pending sign-in")
	}

	if in.ErrorParam != "" {
		s.recordFailure(ctx, "login.federated.provider_error", in)
		return domainauth.Session{}, nil, apperrors.Newf(apperrors.ErrCodeProviderError,
			"identity provider returned %q", in.ErrorParam)
	}
	if in.Code == "" {
		s.recordFailure(ctx, "login.federated.missing_code", in)
		return domainauth.Session{}, nil, apperrors.New(apperrors.ErrCodeMissingCode,
			"callback is missing the authorization code")
	}

	identity, err := s.provider.Exchange(ctx, in.Code)
	if err != nil {
		s.recordFailure(ctx, "login.federated.exchange_failed", in)
		if apperrors.GetCode(err) != "" {
			return domainauth.Session{}, nil, err
		}
		return domainauth.Session{}, nil, apperrors.Wrap(err, apperrors.ErrCodeProviderError,
			"code exchange failed")
	}

	if identity.Email == "" {
		s.logger.WarnContext(ctx, "id token carried no usable email claim",
			"claim_keys", identity.ClaimKeys)
		s.recordFailure(ctx, "login.federated.unresolvable_claims", in)
		return domainauth.Session{}, nil, apperrors.Newf(apperrors.ErrCodeUnresolvableClaims,
			"no email claim present (saw: %s)", strings.Join(identity.ClaimKeys, ", "))
	}

	role := s.resolveRole(ctx, identity)

	user, err := s.provision(ctx, identity, role)
	if err != nil {
		return domainauth.Session{}, nil, err
	}

	s.syncProfile(ctx, user.ID, identity)

	newSess, err := s.sessions.Establish(ctx, sess, user.ID, role)
	if err != nil {
		return domainauth.Session{}, nil, fmt.Errorf("establish session: %w", err)
	}

	s.record(ctx, &user.ID, "login.federated.success", "", in)
	metrics.EmitLogin(s.metrics, metrics.LoginMetric{
		Method:  metrics.MethodFederated,
		Outcome: metrics.OutcomeSuccess,
	})
	return newSess, user, nil
}

// resolveRole combines token app-role claims with directory groups and maps
// them onto the highest-priority internal role. A failed group fetch only
// narrows the signals; the token claims still count.
func (s *FederatedService) resolveRole(ctx context.Context, identity domainauth.Identity) domainauth.Role {
	signals := make([]string, 0, len(identity.AppRoles))
	signals = append(signals, identity.AppRoles...)

	if s.directory != nil && identity.ExternalID != "" {
		groups, err := s.directory.FetchGroups(ctx, identity.ExternalID)
		if err != nil {
			s.logger.WarnContext(ctx, "directory group fetch failed, using token claims only",
				"err", err)
		} else {
			signals = append(signals, groups...)
		}
	}

	role, ok := s.roles.Resolve(signals)
	if !ok {
		return domainauth.RoleCandidate
	}
	return role
}

// provision updates the account matching the identity's email, or creates a
// new one. New accounts get a random placeholder password hash so password
// login stays impossible until one is set deliberately.
func (s *FederatedService) provision(
	ctx context.Context,
	identity domainauth.Identity,
	role domainauth.Role,
) (*model.User, error) {
	user, err := s.users.FindByEmail(ctx, identity.Email)
	if err == nil {
		upd := ports.FederatedUpdate{Role: role, ExternalID: identity.ExternalID}
		if updErr := s.users.UpdateAfterFederatedLogin(ctx, user.ID, upd); updErr != nil {
			return nil, fmt.Errorf("update federated account: %w", updErr)
		}
		user.Role = role
		user.ExternalID = &identity.ExternalID
		return user, nil
	}
	if !errors.Is(err, ports.ErrUserNotFound) {
		return nil, fmt.Errorf("find account: %w", err)
	}

	placeholder, err := randomToken()
	if err != nil {
		return nil, fmt.Errorf("generate placeholder password: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(placeholder), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash placeholder password: %w", err)
	}

	externalID := identity.ExternalID
	fresh := &model.User{
		Email:             identity.Email,
		PasswordHash:      string(hash),
		FirstName:         identity.FirstName,
		LastName:          identity.LastName,
		Role:              role,
		ExternalID:        &externalID,
		ProfileIncomplete: true,
		NotifyNews:        true,
		NotifyEvents:      true,
	}
	id, err := s.users.Insert(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("provision account: %w", err)
	}
	fresh.ID = id
	s.logger.InfoContext(ctx, "provisioned account from federated identity",
		"subject_id", id, "role", role)
	return fresh, nil
}

// syncProfile mirrors directory profile fields and photo onto the account.
// Strictly best effort: a directory hiccup must not fail the login.
func (s *FederatedService) syncProfile(ctx context.Context, userID int64, identity domainauth.Identity) {
	if s.directory == nil || identity.ExternalID == "" {
		return
	}

	profile, err := s.directory.FetchProfile(ctx, identity.ExternalID)
	if err != nil {
		s.logger.WarnContext(ctx, "directory profile fetch failed", "err", err)
	} else if syncErr := s.users.UpdateSyncedProfile(ctx, userID, profile); syncErr != nil {
		s.logger.WarnContext(ctx, "profile sync failed", "err", syncErr)
	}

	photo, err := s.directory.FetchPhoto(ctx, identity.ExternalID)
	if err != nil {
		s.logger.WarnContext(ctx, "directory photo fetch failed", "err", err)
	} else if len(photo) > 0 {
		if saveErr := s.users.SavePhoto(ctx, userID, photo); saveErr != nil {
			s.logger.WarnContext(ctx, "photo save failed", "err", saveErr)
		}
	}
}

func (s *FederatedService) record(ctx context.Context, subjectID *int64, action, detail string, in CallbackInput) {
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

func (s *FederatedService) recordFailure(ctx context.Context, action string, in CallbackInput) {
	s.record(ctx, nil, action, in.ErrorDescription, in)
	metrics.EmitLogin(s.metrics, metrics.LoginMetric{
		Method:  metrics.MethodFederated,
		Outcome: metrics.OutcomeError,
	})
}
