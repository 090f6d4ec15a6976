package httpx

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/alumniverein/intranet-api/internal/adapters/authroles"
	domainauth "github.com/alumniverein/intranet-api/internal/domain/auth"
	"github.com/alumniverein/intranet-api/internal/domain/model"
	mockauth "github.com/alumniverein/intranet-api/internal/mocks/auth"
	"github.com/alumniverein/intranet-api/internal/service"
)

const testPassword = "correct horse battery staple"

var testPasswordHash = func() string {
	h, err := bcrypt.GenerateFromPassword([]byte(testPassword), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}()

type routerFixture struct {
	handler  http.Handler
	store    *mockauth.MemorySessionStore
	repo     *mockauth.MemoryUserRepository
	provider *mockauth.MockAuthProvider
	now      time.Time
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{
		store:    mockauth.NewMemorySessionStore(),
		repo:     mockauth.NewMemoryUserRepository(),
		provider: mockauth.NewMockAuthProvider(),
		now:      time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	sessions := service.NewSessionManager(service.SessionManagerOptions{
		Store: f.store,
		Clock: func() time.Time { return f.now },
	})
	credentials := service.NewCredentialService(service.CredentialServiceOptions{
		Users:        f.repo,
		SecondFactor: mockauth.StaticSecondFactor{Accept: "123456"},
		Audit:        &mockauth.RecordingAuditSink{},
		Clock:        func() time.Time { return f.now },
	})
	federated := service.NewFederatedService(service.FederatedServiceOptions{
		Sessions:  sessions,
		Provider:  f.provider,
		Directory: &mockauth.MockDirectoryClient{},
		Roles:     authroles.PriorityResolver{},
		Users:     f.repo,
		Audit:     &mockauth.RecordingAuditSink{},
	})

	f.handler = NewRouter(RouterServices{
		Sessions:    sessions,
		Credentials: credentials,
		Federated:   federated,
	})
	return f
}

func (f *routerFixture) seedMember(t *testing.T) int64 {
	t.Helper()
	return f.repo.Seed(model.User{
		Email:        "member@example.com",
		PasswordHash: testPasswordHash,
		Role:         domainauth.RoleMember,
	})
}

// bootstrap performs the initial GET /auth/status to obtain a session cookie
// and the CSRF token bound to it.
func (f *routerFixture) bootstrap(t *testing.T) (*http.Cookie, string) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	cookie := sessionCookieFrom(t, rec)
	var body struct {
		Authenticated bool   `json:"authenticated"`
		CSRFToken     string `json:"csrf_token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Authenticated)
	require.NotEmpty(t, body.CSRFToken)
	return cookie, body.CSRFToken
}

func sessionCookieFrom(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName && c.Value != "" {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

func (f *routerFixture) loginRequest(cookie *http.Cookie, csrf, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	if csrf != "" {
		req.Header.Set(DefaultCSRFHeaderName, csrf)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	f := newRouterFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","service":"intranet-api"}`, rec.Body.String())
}

func TestStatusStartsAnonymousSession(t *testing.T) {
	f := newRouterFixture(t)
	cookie, csrf := f.bootstrap(t)
	assert.NotEmpty(t, cookie.Value)
	assert.NotEmpty(t, csrf)
	assert.True(t, f.store.Has(cookie.Value))
}

func TestPasswordLoginFlow(t *testing.T) {
	f := newRouterFixture(t)
	f.seedMember(t)
	cookie, csrf := f.bootstrap(t)

	rec := f.loginRequest(cookie, csrf,
		`{"email":"member@example.com","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	newCookie := sessionCookieFrom(t, rec)
	assert.NotEqual(t, cookie.Value, newCookie.Value,
		"login must issue a fresh session identifier")

	// The new session is signed in.
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(newCookie)
	meRec := httptest.NewRecorder()
	f.handler.ServeHTTP(meRec, req)
	require.Equal(t, http.StatusOK, meRec.Code)
	assert.Contains(t, meRec.Body.String(), `"role":"member"`)
}

func TestPasswordLoginRejectedWithoutCSRFToken(t *testing.T) {
	f := newRouterFixture(t)
	f.seedMember(t)
	cookie, _ := f.bootstrap(t)

	rec := f.loginRequest(cookie, "",
		`{"email":"member@example.com","password":"`+testPassword+`"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "csrf_validation_failed")
}

func TestPasswordLoginWrongPasswordIsGeneric(t *testing.T) {
	f := newRouterFixture(t)
	f.seedMember(t)
	cookie, csrf := f.bootstrap(t)

	rec := f.loginRequest(cookie, csrf,
		`{"email":"member@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_credentials")

	rec = f.loginRequest(cookie, csrf,
		`{"email":"ghost@example.com","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_credentials")
}

func TestPasswordLoginLockoutSurfacesRetryAfter(t *testing.T) {
	f := newRouterFixture(t)
	f.seedMember(t)
	cookie, csrf := f.bootstrap(t)

	body := `{"email":"member@example.com","password":"nope"}`
	for i := 0; i < 2; i++ {
		rec := f.loginRequest(cookie, csrf, body)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := f.loginRequest(cookie, csrf, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestSSOLoginAndCallback(t *testing.T) {
	f := newRouterFixture(t)
	cookie, _ := f.bootstrap(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/sso/login", nil)
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)

	authURL, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := authURL.Query().Get("state")
	require.NotEmpty(t, state)

	cbReq := httptest.NewRequest(http.MethodGet,
		"/auth/callback?code=dev&state="+url.QueryEscape(state), nil)
	cbReq.AddCookie(cookie)
	cbRec := httptest.NewRecorder()
	f.handler.ServeHTTP(cbRec, cbReq)
	require.Equal(t, http.StatusFound, cbRec.Code, cbRec.Body.String())
	assert.Equal(t, "/", cbRec.Header().Get("Location"))

	newCookie := sessionCookieFrom(t, cbRec)
	assert.NotEqual(t, cookie.Value, newCookie.Value)

	meReq := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	meReq.AddCookie(newCookie)
	meRec := httptest.NewRecorder()
	f.handler.ServeHTTP(meRec, meReq)
	assert.Equal(t, http.StatusOK, meRec.Code)
}

func TestCallbackStateMismatch(t *testing.T) {
	f := newRouterFixture(t)
	cookie, _ := f.bootstrap(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/sso/login", nil)
	req.AddCookie(cookie)
	f.handler.ServeHTTP(httptest.NewRecorder(), req)

	cbReq := httptest.NewRequest(http.MethodGet, "/auth/callback?code=dev&state=forged", nil)
	cbReq.AddCookie(cookie)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, cbReq)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "oauth_state_mismatch")
}

func TestLogoutDestroysSession(t *testing.T) {
	f := newRouterFixture(t)
	f.seedMember(t)
	cookie, csrf := f.bootstrap(t)

	loginRec := f.loginRequest(cookie, csrf,
		`{"email":"member@example.com","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, loginRec.Code)
	authedCookie := sessionCookieFrom(t, loginRec)

	// The CSRF token survives establish; reuse it for logout.
	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(authedCookie)
	req.Header.Set(DefaultCSRFHeaderName, csrf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, f.store.Has(authedCookie.Value))
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	f := newRouterFixture(t)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication_required")
}

func TestIdleSessionTimesOutAndSignalsClient(t *testing.T) {
	f := newRouterFixture(t)
	f.seedMember(t)
	cookie, csrf := f.bootstrap(t)

	loginRec := f.loginRequest(cookie, csrf,
		`{"email":"member@example.com","password":"`+testPassword+`"}`)
	require.Equal(t, http.StatusOK, loginRec.Code)
	authedCookie := sessionCookieFrom(t, loginRec)

	f.now = f.now.Add(31 * time.Minute)

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.AddCookie(authedCookie)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "true", rec.Header().Get("X-Session-Expired"))
	assert.Contains(t, rec.Body.String(), "session_timeout")
	assert.False(t, f.store.Has(authedCookie.Value), "the timed-out session is gone for good")
}

func TestStaleSessionIsRotatedTransparently(t *testing.T) {
	f := newRouterFixture(t)
	cookie, _ := f.bootstrap(t)

	// Keep the session warm past the rotation age without idling out.
	for i := 0; i < 3; i++ {
		f.now = f.now.Add(15 * time.Minute)
		req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
		req.AddCookie(cookie)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		for _, c := range rec.Result().Cookies() {
			if c.Name == SessionCookieName && c.Value != "" {
				cookie = c
			}
		}
	}

	assert.True(t, strings.HasPrefix(cookie.Value, "rotated-"),
		"identifier must have been re-keyed")
	assert.True(t, f.store.Has(cookie.Value))
}
