package service

import (
	"context"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alumniverein/intranet-api/internal/adapters/authroles"
	domainauth "github.com/alumniverein/intranet-api/internal/domain/auth"
	"github.com/alumniverein/intranet-api/internal/domain/model"
	apperrors "github.com/alumniverein/intranet-api/internal/errors"
	mockauth "github.com/alumniverein/intranet-api/internal/mocks/auth"
	"github.com/alumniverein/intranet-api/internal/ports"
)

type fedFixture struct {
	store     *mockauth.MemorySessionStore
	sessions  *SessionManager
	provider  *mockauth.MockAuthProvider
	directory *mockauth.MockDirectoryClient
	repo      *mockauth.MemoryUserRepository
	audit     *mockauth.RecordingAuditSink
	svc       *FederatedService
	now       time.Time
}

func newFedFixture(t *testing.T) *fedFixture {
	t.Helper()
	f := &fedFixture{
		store:     mockauth.NewMemorySessionStore(),
		provider:  mockauth.NewMockAuthProvider(),
		directory: &mockauth.MockDirectoryClient{},
		repo:      mockauth.NewMemoryUserRepository(),
		audit:     &mockauth.RecordingAuditSink{},
		now:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	f.sessions = NewSessionManager(SessionManagerOptions{
		Store: f.store,
		Clock: func() time.Time { return f.now },
	})
	f.svc = NewFederatedService(FederatedServiceOptions{
		Sessions:  f.sessions,
		Provider:  f.provider,
		Directory: f.directory,
		Roles:     authroles.PriorityResolver{},
		Users:     f.repo,
		Audit:     f.audit,
	})
	return f
}

// begin starts an anonymous session and the OAuth flow, returning the
// session (with state bound) and the state value the IdP would echo back.
func (f *fedFixture) begin(t *testing.T) (domainauth.Session, string) {
	t.Helper()
	sess, err := f.sessions.Start(context.Background())
	require.NoError(t, err)

	authURL, sess, err := f.svc.Begin(context.Background(), sess)
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return sess, state
}

func TestFederatedBeginBindsStateToSession(t *testing.T) {
	f := newFedFixture(t)
	sess, state := f.begin(t)

	assert.Equal(t, state, sess.OAuthState)

	stored, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, state, stored.OAuthState, "state must be persisted before the redirect is issued")
}

func TestFederatedCallbackProvisionsNewAccount(t *testing.T) {
	f := newFedFixture(t)
	sess, state := f.begin(t)

	newSess, user, err := f.svc.Callback(context.Background(), sess, CallbackInput{
		State: state,
		Code:  "auth-code",
	})
	require.NoError(t, err)

	require.NotNil(t, user)
	assert.Equal(t, "mock.user@example.com", user.Email)
	assert.Equal(t, domainauth.RoleMember, user.Role)
	assert.True(t, user.ProfileIncomplete)
	assert.True(t, user.NotifyNews)
	assert.True(t, user.NotifyEvents)
	assert.NotEmpty(t, user.PasswordHash)
	require.NotNil(t, user.ExternalID)
	assert.Equal(t, "mock-ext-1", *user.ExternalID)

	assert.True(t, newSess.Authenticated())
	assert.Equal(t, user.ID, newSess.SubjectID)
	assert.NotEqual(t, sess.ID, newSess.ID)
	assert.Contains(t, f.audit.Actions(), "login.federated.success")
}

func TestFederatedCallbackUpdatesExistingAccount(t *testing.T) {
	f := newFedFixture(t)
	id := f.repo.Seed(model.User{
		Email:        "mock.user@example.com",
		PasswordHash: "existing-hash",
		Role:         domainauth.RoleCandidate,
	})
	f.provider.DefaultIdentity.AppRoles = []string{"Vorstand_Intern"}

	sess, state := f.begin(t)
	newSess, user, err := f.svc.Callback(context.Background(), sess, CallbackInput{
		State: state,
		Code:  "auth-code",
	})
	require.NoError(t, err)

	assert.Equal(t, id, user.ID)
	assert.Equal(t, domainauth.RoleBoardInternal, user.Role)
	assert.Equal(t, "existing-hash", user.PasswordHash, "federated login never touches the password")
	assert.Equal(t, id, newSess.SubjectID)

	stored, _ := f.repo.GetByID(id)
	assert.False(t, stored.ProfileIncomplete, "re-login must not reset profile completeness")
	require.NotNil(t, stored.ExternalID)
	assert.Equal(t, "mock-ext-1", *stored.ExternalID)
}

func TestFederatedStateIsSingleUse(t *testing.T) {
	f := newFedFixture(t)
	sess, state := f.begin(t)

	newSess, _, err := f.svc.Callback(context.Background(), sess, CallbackInput{
		State: state,
		Code:  "auth-code",
	})
	require.NoError(t, err)

	// Replay against the established session: the state was consumed.
	_, _, err = f.svc.Callback(context.Background(), newSess, CallbackInput{
		State: state,
		Code:  "auth-code",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsStateMismatch(err))
}

func TestFederatedStateClearedEvenWhenCallbackFails(t *testing.T) {
	f := newFedFixture(t)
	sess, state := f.begin(t)

	_, _, err := f.svc.Callback(context.Background(), sess, CallbackInput{
		State:      state,
		ErrorParam: "access_denied",
	})
	require.Error(t, err)

	stored, err := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.OAuthState, "state is consumed before any other processing")
}

func TestFederatedCallbackStateMismatch(t *testing.T) {
	f := newFedFixture(t)
	sess, _ := f.begin(t)

	_, _, err := f.svc.Callback(context.Background(), sess, CallbackInput{
		State: "forged",
		Code:  "auth-code",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsStateMismatch(err))
}

func TestFederatedCallbackWithoutPendingState(t *testing.T) {
	f := newFedFixture(t)
	sess, err := f.sessions.Start(context.Background())
	require.NoError(t, err)

	_, _, err = f.svc.Callback(context.Background(), sess, CallbackInput{
		State: "anything",
		Code:  "auth-code",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsStateMismatch(err))
}

func TestFederatedCallbackProviderError(t *testing.T) {
	f := newFedFixture(t)
	sess, state := f.begin(t)

	_, _, err := f.svc.Callback(context.Background(), sess, CallbackInput{
		State:            state,
		ErrorParam:       "access_denied",
		ErrorDescription: "user cancelled",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsProviderError(err))

	stored, getErr := f.store.Get(context.Background(), sess.ID)
	require.NoError(t, getErr)
	assert.True(t, stored.Anonymous(), "a failed callback must never establish a session")
}

func TestFederatedCallbackMissingCode(t *testing.T) {
	f := newFedFixture(t)
	sess, state := f.begin(t)

	_, _, err := f.svc.Callback(context.Background(), sess, CallbackInput{State: state})
	require.Error(t, err)
	assert.True(t, apperrors.IsMissingCode(err))
}

func TestFederatedCallbackUnresolvableClaims(t *testing.T) {
	f := newFedFixture(t)
	f.provider.DefaultIdentity.Email = ""
	f.provider.DefaultIdentity.ClaimKeys = []string{"sub", "roles"}

	sess, state := f.begin(t)
	_, _, err := f.svc.Callback(context.Background(), sess, CallbackInput{
		State: state,
		Code:  "auth-code",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsUnresolvableClaims(err))
	assert.Contains(t, err.Error(), "sub", "diagnostics name the claims that were present")
	assert.NotContains(t, err.Error(), "mock-ext-1", "claim values never leak")
}

func TestFederatedRolePriorityPicksHighest(t *testing.T) {
	f := newFedFixture(t)
	// Auditor mapping must win over plain membership regardless of order.
	f.provider.DefaultIdentity.AppRoles = []string{"alumni", "Alumni_Finanz"}

	sess, state := f.begin(t)
	_, user, err := f.svc.Callback(context.Background(), sess, CallbackInput{
		State: state,
		Code:  "auth-code",
	})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleAlumniAuditor, user.Role)
}

func TestFederatedDirectoryGroupsJoinTokenRoles(t *testing.T) {
	f := newFedFixture(t)
	f.provider.DefaultIdentity.AppRoles = []string{"Mitglied"}
	f.directory.Groups = []string{"Vorstand_Finanzen"}

	sess, state := f.begin(t)
	_, user, err := f.svc.Callback(context.Background(), sess, CallbackInput{
		State: state,
		Code:  "auth-code",
	})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleBoardFinance, user.Role)
}

func TestFederatedGroupFetchFailureIsNonFatal(t *testing.T) {
	f := newFedFixture(t)
	f.provider.DefaultIdentity.AppRoles = []string{"Vorstand_Extern"}
	f.directory.GroupsErr = assert.AnError

	sess, state := f.begin(t)
	_, user, err := f.svc.Callback(context.Background(), sess, CallbackInput{
		State: state,
		Code:  "auth-code",
	})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleBoardExternal, user.Role, "token claims still count")
}

func TestFederatedUnknownSignalsDefaultToCandidate(t *testing.T) {
	f := newFedFixture(t)
	f.provider.DefaultIdentity.AppRoles = []string{"Some_Unknown_Group"}

	sess, state := f.begin(t)
	_, user, err := f.svc.Callback(context.Background(), sess, CallbackInput{
		State: state,
		Code:  "auth-code",
	})
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleCandidate, user.Role)
}

func TestFederatedProfileAndPhotoSyncBestEffort(t *testing.T) {
	f := newFedFixture(t)
	f.directory.Profile = ports.DirectoryProfile{FirstName: "Greta", LastName: "Larsen"}
	f.directory.Photo = []byte{0xFF, 0xD8, 0xFF}

	sess, state := f.begin(t)
	_, user, err := f.svc.Callback(context.Background(), sess, CallbackInput{
		State: state,
		Code:  "auth-code",
	})
	require.NoError(t, err)

	stored, _ := f.repo.GetByID(user.ID)
	assert.Equal(t, "Greta", stored.FirstName)
	assert.Equal(t, "Larsen", stored.LastName)
	photo, ok := f.repo.Photo(user.ID)
	assert.True(t, ok)
	assert.Equal(t, []byte{0xFF, 0xD8, 0xFF}, photo)
}

func TestFederatedProfileSyncFailureDoesNotFailLogin(t *testing.T) {
	f := newFedFixture(t)
	f.directory.ProfileErr = assert.AnError
	f.directory.PhotoErr = assert.AnError

	sess, state := f.begin(t)
	newSess, _, err := f.svc.Callback(context.Background(), sess, CallbackInput{
		State: state,
		Code:  "auth-code",
	})
	require.NoError(t, err)
	assert.True(t, newSess.Authenticated())
}

func TestFederatedExchangeFailure(t *testing.T) {
	f := newFedFixture(t)
	f.provider.ExchangeFunc = func(context.Context, string) (domainauth.Identity, error) {
		return domainauth.Identity{}, assert.AnError
	}

	sess, state := f.begin(t)
	_, _, err := f.svc.Callback(context.Background(), sess, CallbackInput{
		State: state,
		Code:  "auth-code",
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsProviderError(err))
	assert.False(t, strings.Contains(err.Error(), state), "state value never appears in errors")
}
