package auth

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gatehouse/internal/infrastructure/database"
	_ "github.com/nerrad567/gatehouse/migrations"
)

const testPassword = "test-password"

// testDB creates a temporary SQLite database with the access schema applied.
// The file lives in t.TempDir and is removed with it.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "auth-test.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return db.DB
}

// testClock is a settable clock shared by the components under test.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() Config {
	return Config{
		SessionSecret: []byte("test-secret-key-that-is-32-bytes"),
		SessionTTL:    60 * time.Minute,
		Issuer:        "gatehouse-test",
		ResetWindow:   30 * time.Minute,
		StoreTimeout:  2 * time.Second,
	}
}

// defineAdminRole creates the ADMIN role so it can be assigned.
func defineAdminRole(t *testing.T, store *SQLiteCredentialStore) {
	t.Helper()

	err := store.DefineRole(context.Background(), Role{ID: RoleAdmin, Tags: []PermissionTag{TagAdmin}})
	if err != nil {
		t.Fatalf("DefineRole(ADMIN) error = %v", err)
	}
}

// seedTestUser inserts an active account with testPassword and returns it.
func seedTestUser(t *testing.T, store *SQLiteCredentialStore, username string, roles ...RoleID) *User {
	t.Helper()

	hash, err := HashPassword(testPassword)
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}

	user := &User{
		Username:     username,
		FirstName:    username,
		LastName:     "Test",
		Email:        username + "@example.com",
		PasswordHash: hash,
		Roles:        roles,
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", username, err)
	}
	return user
}

// fixture bundles the real SQLite stores with components on a shared clock.
type fixture struct {
	users    *SQLiteCredentialStore
	resets   *SQLiteResetStore
	clock    *testClock
	sessions *SessionAuthenticator
	gate     *PermissionGate
	reset    *ResetManager
	events   *captureRecorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := testDB(t)
	f := &fixture{
		users:  NewCredentialStore(db),
		resets: NewResetStore(db),
		clock:  newTestClock(),
		events: &captureRecorder{},
	}
	defineAdminRole(t, f.users)

	cfg := testConfig()
	opts := []Option{WithClock(f.clock.Now), WithRecorder(f.events)}

	sessions, err := NewSessionAuthenticator(cfg, f.users, opts...)
	if err != nil {
		t.Fatalf("NewSessionAuthenticator() error = %v", err)
	}
	f.sessions = sessions
	f.gate = NewPermissionGate(cfg, sessions, NewRoleResolver(f.users, cfg.StoreTimeout), f.users, opts...)
	f.reset = NewResetManager(cfg, f.users, f.resets, opts...)
	return f
}

// login issues a session for username with testPassword and verifies it.
func (f *fixture) login(t *testing.T, username string) (Session, Identity) {
	t.Helper()

	session, err := f.sessions.IssueSession(context.Background(), username, testPassword)
	if err != nil {
		t.Fatalf("IssueSession(%s) error = %v", username, err)
	}
	id, err := f.sessions.VerifySession(session.Token)
	if err != nil {
		t.Fatalf("VerifySession() error = %v", err)
	}
	return session, id
}

// captureRecorder keeps every event for assertions.
type captureRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *captureRecorder) RecordAuthEvent(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *captureRecorder) last() Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}
	}
	return r.events[len(r.events)-1]
}

// fakeStore is an in-memory CredentialStore for resolver and outage tests.
type fakeStore struct {
	mu    sync.Mutex
	users map[string]*User
	roles map[RoleID][]PermissionTag
	err   error
	block bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*User{}, roles: map[RoleID][]PermissionTag{}}
}

func (s *fakeStore) fail(ctx context.Context) error {
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return s.err
}

func (s *fakeStore) GetByIdentity(ctx context.Context, username string) (*User, error) {
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeStore) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	if err := s.fail(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (s *fakeStore) GetRolesOf(ctx context.Context, username string) ([]RoleID, error) {
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	return append([]RoleID{}, u.Roles...), nil
}

func (s *fakeStore) GetRoleDefinition(ctx context.Context, role RoleID) ([]PermissionTag, error) {
	if err := s.fail(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tags, ok := s.roles[role]
	if !ok {
		return nil, ErrRoleNotFound
	}
	return tags, nil
}

func (s *fakeStore) SetStatus(ctx context.Context, username string, status Status) error {
	if err := s.fail(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[username]
	if !ok {
		return ErrUserNotFound
	}
	u.Status = status
	return nil
}
