package auth_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	auth "github.com/felapi/fel-auth"
	"github.com/felapi/fel-auth/persistence"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

const testSigningKey = "test-signing-key"

// testConfig implements auth.Config
type testConfig struct {
	expiry int
	alg    string
}

func (c testConfig) GetSigningKey() string      { return testSigningKey }
func (c testConfig) GetSigningMethod() string   { return c.alg }
func (c testConfig) GetTokenExpiration() int    { return c.expiry }
func (c testConfig) GetContextKey() string      { return "user_id" }
func (c testConfig) GetAuthScheme() string      { return "Bearer" }
func (c testConfig) GetVerificationTTL() int    { return 86400 }
func (c testConfig) GetDeterministicUUID() bool { return false }

// MockUsers implements auth.Users
type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUsers) FindByID(ctx context.Context, id int64, includeDeleted bool) (*auth.User, error) {
	args := m.Called(ctx, id, includeDeleted)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUsers) Save(ctx context.Context, user *auth.User, columns ...string) error {
	args := m.Called(ctx, user, columns)
	return args.Error(0)
}

func (m *MockUsers) SoftDelete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUsers) Restore(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUsers) HardDelete(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUsers) ListAll(ctx context.Context, includeDeleted bool) ([]*auth.User, error) {
	args := m.Called(ctx, includeDeleted)
	users, _ := args.Get(0).([]*auth.User)
	return users, args.Error(1)
}

func (m *MockUsers) ListDeleted(ctx context.Context) ([]*auth.User, error) {
	args := m.Called(ctx)
	users, _ := args.Get(0).([]*auth.User)
	return users, args.Error(1)
}

func (m *MockUsers) Count(ctx context.Context, filter auth.UserCountFilter) (int, error) {
	args := m.Called(ctx, filter)
	return args.Int(0), args.Error(1)
}

func (m *MockUsers) CountByRole(ctx context.Context) (map[string]int, error) {
	args := m.Called(ctx)
	counts, _ := args.Get(0).(map[string]int)
	return counts, args.Error(1)
}

// MockMailer implements auth.Mailer
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendVerificationEmail(ctx context.Context, to, code string) error {
	return m.Called(ctx, to, code).Error(0)
}

func (m *MockMailer) SendWelcomeEmail(ctx context.Context, to, name string) error {
	return m.Called(ctx, to, name).Error(0)
}

// outbox records every email and is safe for concurrent use
type outbox struct {
	mu       sync.Mutex
	codes    map[string]string
	welcomes []string
	fail     error
}

func newOutbox() *outbox {
	return &outbox{codes: map[string]string{}}
}

func (o *outbox) SendVerificationEmail(_ context.Context, to, code string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fail != nil {
		return o.fail
	}
	o.codes[to] = code
	return nil
}

func (o *outbox) SendWelcomeEmail(_ context.Context, to, _ string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.welcomes = append(o.welcomes, to)
	return nil
}

func (o *outbox) code(to string) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.codes[to]
}

// captureLogger keeps messages per level
type captureLogger struct {
	mu   sync.Mutex
	msgs map[string][]string
}

func newCaptureLogger() *captureLogger {
	return &captureLogger{msgs: map[string][]string{}}
}

func (l *captureLogger) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs[level] = append(l.msgs[level], msg)
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.add("error", msg) }

func (l *captureLogger) messages(level string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.msgs[level]...)
}

// fixedClock is a movable clock for tests
type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fixedClock {
	return &fixedClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// newTestDB returns a migrated in-memory SQLite database private to t
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()
	ctx := context.Background()

	db, err := persistence.Open(ctx, persistence.Options{
		Driver: persistence.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_")),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, persistence.Migrate(ctx, db))
	return db
}

func mustHash(t *testing.T, password string) *string {
	t.Helper()
	hash, err := auth.NewBcryptHasher(4).HashPassword(password)
	require.NoError(t, err)
	return &hash
}

// testEnv wires the account flows against a private SQLite database
type testEnv struct {
	svc    auth.Services
	users  auth.Users
	mail   *outbox
	clock  *fixedClock
	feed   *auth.ActivityFeed
	logger *captureLogger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newClock()

	tokens, err := auth.NewTokenService([]byte(testSigningKey), "HS256", time.Hour, auth.WithTokenClock(clock.Now))
	require.NoError(t, err)

	env := &testEnv{
		users:  auth.NewUsersRepository(newTestDB(t), auth.WithUsersClock(clock.Now)),
		mail:   newOutbox(),
		clock:  clock,
		feed:   auth.NewActivityFeed(50),
		logger: newCaptureLogger(),
	}
	env.svc = auth.Services{
		Users:      env.users,
		Machine:    auth.NewAccountStateMachine(auth.WithStateMachineClock(clock.Now)),
		Tokens:     tokens,
		Mailer:     env.mail,
		Passwords:  auth.NewBcryptHasher(4),
		Authorizer: auth.NewAuthorizer(nil),
		Activity:   env.feed,
		Logger:     env.logger,
	}
	return env
}

// activeUser registers, verifies and completes the profile of email
func (e *testEnv) activeUser(t *testing.T, email, password string, roles ...string) *auth.User {
	t.Helper()
	ctx := context.Background()

	_, err := auth.NewRegisterUserHandler(e.svc).Handle(ctx, auth.RegisterUserMessage{Email: email})
	require.NoError(t, err)

	res, err := auth.NewVerifyAccountHandler(e.svc).Handle(ctx, auth.VerifyAccountMessage{Email: email, Code: e.mail.code(email)})
	require.NoError(t, err)

	user, err := auth.NewCompleteProfileHandler(e.svc).Handle(ctx, auth.CompleteProfileMessage{
		UserID: res.User.ID,
		CompleteProfilePayload: auth.CompleteProfilePayload{
			FirstName: "Ana",
			LastName:  "Pérez",
			Password:  password,
		},
	})
	require.NoError(t, err)

	if len(roles) > 0 {
		user.Roles = roles
		require.NoError(t, e.users.Save(ctx, user, auth.ColumnRoles))
	}
	return user
}

func (e *testEnv) eventTypes() []auth.ActivityEventType {
	var out []auth.ActivityEventType
	for _, ev := range e.feed.Recent(0) {
		out = append(out, ev.EventType)
	}
	return out
}
