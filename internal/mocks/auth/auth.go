package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainauth "github.com/alumniverein/intranet-api/internal/domain/auth"
	"github.com/alumniverein/intranet-api/internal/domain/model"
	"github.com/alumniverein/intranet-api/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.SessionStore    = (*MemorySessionStore)(nil)
	_ ports.AuthProvider    = (*MockAuthProvider)(nil)
	_ ports.DirectoryClient = (*MockDirectoryClient)(nil)
	_ ports.UserRepository  = (*MemoryUserRepository)(nil)
	_ ports.AuditSink       = (*RecordingAuditSink)(nil)
	_ ports.SecondFactor    = (*StaticSecondFactor)(nil)
	_ ports.RoleResolver    = (*StaticRoleResolver)(nil)
)

// ErrNotFound is returned by mocks when an entity is not present.
var ErrNotFound = ports.ErrSessionNotFound

// MemorySessionStore is an in-memory session store for unit tests. Rotation
// produces deterministic "rotated-N" identifiers so tests can assert on them.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]domainauth.Session
	rotated  int

	// FailNext, when set, makes the next store call return this error.
	FailNext error
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]domainauth.Session)}
}

func (m *MemorySessionStore) failNext() error {
	err := m.FailNext
	m.FailNext = nil
	return err
}

func (m *MemorySessionStore) Get(_ context.Context, id string) (domainauth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext(); err != nil {
		return domainauth.Session{}, err
	}
	sess, ok := m.sessions[id]
	if !ok {
		return domainauth.Session{}, ErrNotFound
	}
	return sess, nil
}

func (m *MemorySessionStore) Put(_ context.Context, sess domainauth.Session, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext(); err != nil {
		return err
	}
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	m.sessions[sess.ID] = sess
	return nil
}

func (m *MemorySessionStore) Rotate(_ context.Context, oldID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext(); err != nil {
		return "", err
	}
	sess, ok := m.sessions[oldID]
	if !ok {
		return "", ErrNotFound
	}
	m.rotated++
	newID := fmt.Sprintf("rotated-%d", m.rotated)
	sess.ID = newID
	m.sessions[newID] = sess
	delete(m.sessions, oldID)
	return newID, nil
}

func (m *MemorySessionStore) Destroy(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failNext(); err != nil {
		return err
	}
	delete(m.sessions, id)
	return nil
}

// Len reports how many sessions the store currently holds.
func (m *MemorySessionStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Has reports whether a session exists under the given identifier.
func (m *MemorySessionStore) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

// MockAuthProvider simulates an IdP for tests.
type MockAuthProvider struct {
	AuthCodeURLFunc func(state string) string
	ExchangeFunc    func(ctx context.Context, code string) (domainauth.Identity, error)

	DefaultIdentity domainauth.Identity
}

// NewMockAuthProvider creates a MockAuthProvider with a sensible default identity.
func NewMockAuthProvider() *MockAuthProvider {
	return &MockAuthProvider{
		DefaultIdentity: domainauth.Identity{
			ExternalID: "mock-ext-1",
			Email:      "mock.user@example.com",
			FirstName:  "Mock",
			LastName:   "User",
			AppRoles:   []string{"Mitglied"},
			ClaimKeys:  []string{"sub", "email", "roles"},
		},
	}
}

func (m *MockAuthProvider) AuthCodeURL(state string) string {
	if m.AuthCodeURLFunc != nil {
		return m.AuthCodeURLFunc(state)
	}
	return "https://mock-idp/authorize?state=" + state
}

func (m *MockAuthProvider) Exchange(ctx context.Context, code string) (domainauth.Identity, error) {
	if m.ExchangeFunc != nil {
		return m.ExchangeFunc(ctx, code)
	}
	return m.DefaultIdentity, nil
}

// MockDirectoryClient simulates the external user directory.
type MockDirectoryClient struct {
	Groups  []string
	Profile ports.DirectoryProfile
	Photo   []byte

	GroupsErr  error
	ProfileErr error
	PhotoErr   error
}

func (m *MockDirectoryClient) FetchGroups(context.Context, string) ([]string, error) {
	return m.Groups, m.GroupsErr
}

func (m *MockDirectoryClient) FetchProfile(context.Context, string) (ports.DirectoryProfile, error) {
	return m.Profile, m.ProfileErr
}

func (m *MockDirectoryClient) FetchPhoto(context.Context, string) ([]byte, error) {
	return m.Photo, m.PhotoErr
}

// MemoryUserRepository is an in-memory user store with the same lockout
// semantics as the real repository.
type MemoryUserRepository struct {
	mu          sync.Mutex
	nextID      int64
	users       map[int64]*model.User
	savedPhotos map[int64][]byte

	LockoutThreshold int
	LockoutSchedule  []time.Duration
}

// NewMemoryUserRepository creates a repository with the default lockout
// policy (threshold 3, backoff 1m/5m/15m/1h).
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:            make(map[int64]*model.User),
		LockoutThreshold: 3,
		LockoutSchedule: []time.Duration{
			time.Minute, 5 * time.Minute, 15 * time.Minute, time.Hour,
		},
	}
}

// Seed inserts a user directly, bypassing validation. Returns the assigned id.
func (m *MemoryUserRepository) Seed(u model.User) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	u.ID = m.nextID
	u.Email = model.NormalizeEmail(u.Email)
	m.users[u.ID] = &u
	return u.ID
}

// GetByID returns a copy of the stored user for assertions.
func (m *MemoryUserRepository) GetByID(id int64) (model.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, false
	}
	return *u, true
}

func (m *MemoryUserRepository) FindByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	norm := model.NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == norm {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ports.ErrUserNotFound
}

func (m *MemoryUserRepository) RegisterFailedLogin(_ context.Context, id int64, now time.Time) (int, *time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return 0, nil, ports.ErrUserNotFound
	}
	u.FailedLogins++
	if u.FailedLogins >= m.LockoutThreshold {
		idx := u.FailedLogins - m.LockoutThreshold
		if idx >= len(m.LockoutSchedule) {
			idx = len(m.LockoutSchedule) - 1
		}
		until := now.Add(m.LockoutSchedule[idx])
		u.LockedUntil = &until
	}
	var lockedUntil *time.Time
	if u.LockedUntil != nil {
		cp := *u.LockedUntil
		lockedUntil = &cp
	}
	return u.FailedLogins, lockedUntil, nil
}

func (m *MemoryUserRepository) ResetLockout(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ports.ErrUserNotFound
	}
	u.FailedLogins = 0
	u.LockedUntil = nil
	return nil
}

func (m *MemoryUserRepository) UpdateAfterFederatedLogin(_ context.Context, id int64, upd ports.FederatedUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ports.ErrUserNotFound
	}
	u.Role = upd.Role
	ext := upd.ExternalID
	u.ExternalID = &ext
	return nil
}

func (m *MemoryUserRepository) UpdateSyncedProfile(_ context.Context, id int64, profile ports.DirectoryProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ports.ErrUserNotFound
	}
	if profile.FirstName != "" {
		u.FirstName = profile.FirstName
	}
	if profile.LastName != "" {
		u.LastName = profile.LastName
	}
	return nil
}

func (m *MemoryUserRepository) SavePhoto(_ context.Context, id int64, photo []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return ports.ErrUserNotFound
	}
	if m.savedPhotos == nil {
		m.savedPhotos = make(map[int64][]byte)
	}
	m.savedPhotos[id] = photo
	return nil
}

// Photo returns the photo saved for an account, if any.
func (m *MemoryUserRepository) Photo(id int64) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	photo, ok := m.savedPhotos[id]
	return photo, ok
}

func (m *MemoryUserRepository) Insert(_ context.Context, u *model.User) (int64, error) {
	if u == nil {
		return 0, errors.New("user is required")
	}
	if err := u.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	norm := model.NormalizeEmail(u.Email)
	for _, existing := range m.users {
		if existing.Email == norm {
			return 0, errors.New("email already exists")
		}
	}
	m.nextID++
	cp := *u
	cp.ID = m.nextID
	cp.Email = norm
	m.users[cp.ID] = &cp
	return cp.ID, nil
}

// RecordingAuditSink collects audit events for assertions.
type RecordingAuditSink struct {
	mu     sync.Mutex
	Events []ports.AuditEvent
}

func (r *RecordingAuditSink) Record(_ context.Context, e ports.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, e)
}

// Actions returns the recorded action names in order.
func (r *RecordingAuditSink) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Events))
	for i, e := range r.Events {
		out[i] = e.Action
	}
	return out
}

// StaticSecondFactor accepts exactly one code value.
type StaticSecondFactor struct {
	Accept string
}

func (s StaticSecondFactor) Verify(_ string, code string, _ time.Time) bool {
	return s.Accept != "" && code == s.Accept
}

// StaticRoleResolver resolves from a fixed signal-to-role table.
type StaticRoleResolver struct {
	Table map[string]domainauth.Role
}

func (s StaticRoleResolver) Resolve(signals []string) (domainauth.Role, bool) {
	for _, sig := range signals {
		if role, ok := s.Table[sig]; ok {
			return role, true
		}
	}
	return "", false
}
