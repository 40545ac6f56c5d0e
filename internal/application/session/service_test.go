package session

import (
	"context"
	"testing"
	"time"

	"github.com/go-auth-otp/internal/domain"
	jwtinfra "github.com/go-auth-otp/internal/infrastructure/jwt"
	"github.com/go-auth-otp/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// memUserStore is an in-memory UserStore; the lifecycle tests need writes to
// be visible to later reads, which mock expectations cannot express.
type memUserStore struct {
	users map[string]*domain.User
}

func newMemUserStore(users ...*domain.User) *memUserStore {
	m := &memUserStore{users: map[string]*domain.User{}}
	for _, u := range users {
		m.users[u.UserID] = u
	}
	return m
}

func (m *memUserStore) Get(_ context.Context, userID string) (*domain.User, error) {
	if u, ok := m.users[userID]; ok {
		return u, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memUserStore) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Phone != nil && *u.Phone == phone {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email != nil && *u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memUserStore) Update(_ context.Context, userID string, updates map[string]interface{}) error {
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	if rt, ok := updates["refresh_token"].(string); ok {
		u.RefreshToken = &rt
	}
	if v, ok := updates["verified"].(bool); ok {
		u.Verified = v
	}
	return nil
}

func (m *memUserStore) UnsetRefreshToken(_ context.Context, userID string) error {
	u, ok := m.users[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.RefreshToken = nil
	return nil
}

// --- helpers ---

func testCodec(t *testing.T) *jwtinfra.Codec {
	t.Helper()
	codec, err := jwtinfra.NewCodec("test-secret", 30*time.Minute, 30*24*time.Hour)
	require.NoError(t, err)
	return codec
}

func testUser(t *testing.T, password string) *domain.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	phone := "01712345678"
	email := "alice@example.com"
	return &domain.User{
		UserID:       "u-1",
		Phone:        &phone,
		Email:        &email,
		PasswordHash: string(hash),
		Verified:     true,
	}
}

func newSvc(store UserStore, codec TokenCodec) Service {
	return NewService(ServiceDeps{
		UserRepo: store,
		Codec:    codec,
		Metrics:  metrics.NewCollector(prometheus.NewRegistry()),
	})
}

// --- tests ---

func TestLogin_Success(t *testing.T) {
	u := testUser(t, "secret1")
	svc := newSvc(newMemUserStore(u), testCodec(t))

	result, err := svc.Login(context.Background(), LoginRequest{Identifier: "alice@example.com", Password: "secret1"})

	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	// The refresh token is persisted against the user record.
	require.NotNil(t, u.RefreshToken)
	assert.Equal(t, result.RefreshToken, *u.RefreshToken)
}

func TestLogin_ByPhone(t *testing.T) {
	u := testUser(t, "secret1")
	svc := newSvc(newMemUserStore(u), testCodec(t))

	result, err := svc.Login(context.Background(), LoginRequest{Identifier: "+8801712345678", Password: "secret1"})

	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
}

func TestLogin_WrongPasswordAndUnknownUserLookAlike(t *testing.T) {
	u := testUser(t, "secret1")
	svc := newSvc(newMemUserStore(u), testCodec(t))

	_, errWrongPw := svc.Login(context.Background(), LoginRequest{Identifier: "alice@example.com", Password: "nope"})
	_, errNoUser := svc.Login(context.Background(), LoginRequest{Identifier: "bob@example.com", Password: "secret1"})

	assert.ErrorIs(t, errWrongPw, domain.ErrAuthenticationFailed)
	assert.ErrorIs(t, errNoUser, domain.ErrAuthenticationFailed)
	// Same sentinel, same message — nothing to enumerate accounts with.
	assert.Equal(t, errWrongPw.Error(), errNoUser.Error())
}

func TestExchange_Success(t *testing.T) {
	u := testUser(t, "secret1")
	svc := newSvc(newMemUserStore(u), testCodec(t))

	result, err := svc.Login(context.Background(), LoginRequest{Identifier: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)

	access, err := svc.Exchange(context.Background(), result.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, access)
	assert.NotEqual(t, result.AccessToken, access)
	// Exchange does not rotate: the stored refresh token is unchanged.
	assert.Equal(t, result.RefreshToken, *u.RefreshToken)
}

func TestExchange_SecondLoginRevokesFirstSession(t *testing.T) {
	u := testUser(t, "secret1")
	codec := testCodec(t)
	svc := newSvc(newMemUserStore(u), codec)

	first, err := svc.Login(context.Background(), LoginRequest{Identifier: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)

	second, err := svc.Login(context.Background(), LoginRequest{Identifier: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = svc.Exchange(context.Background(), first.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrSessionRevoked)

	_, err = svc.Exchange(context.Background(), second.RefreshToken)
	assert.NoError(t, err)
}

func TestExchange_AfterLogout(t *testing.T) {
	u := testUser(t, "secret1")
	svc := newSvc(newMemUserStore(u), testCodec(t))

	result, err := svc.Login(context.Background(), LoginRequest{Identifier: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), result.AccessToken))
	assert.Nil(t, u.RefreshToken)

	_, err = svc.Exchange(context.Background(), result.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrSessionRevoked)
}

func TestExchange_GarbageToken(t *testing.T) {
	svc := newSvc(newMemUserStore(testUser(t, "secret1")), testCodec(t))

	_, err := svc.Exchange(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestExchange_ExpiredRefreshToken(t *testing.T) {
	u := testUser(t, "secret1")
	expiredCodec, err := jwtinfra.NewCodec("test-secret", 30*time.Minute, -time.Minute)
	require.NoError(t, err)
	svc := newSvc(newMemUserStore(u), expiredCodec)

	result, err := svc.Login(context.Background(), LoginRequest{Identifier: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = svc.Exchange(context.Background(), result.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
	assert.NotErrorIs(t, err, domain.ErrSessionRevoked)
}

func TestLogout_UndecodableTokenIsFatal(t *testing.T) {
	u := testUser(t, "secret1")
	svc := newSvc(newMemUserStore(u), testCodec(t))

	_, err := svc.Login(context.Background(), LoginRequest{Identifier: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)

	err = svc.Logout(context.Background(), "garbage")
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
	// The session must survive: there was no way to tell whose it is.
	assert.NotNil(t, u.RefreshToken)
}

func TestAuthorize(t *testing.T) {
	u := testUser(t, "secret1")
	svc := newSvc(newMemUserStore(u), testCodec(t))

	result, err := svc.Login(context.Background(), LoginRequest{Identifier: "alice@example.com", Password: "secret1"})
	require.NoError(t, err)

	claims, err := svc.Authorize("Bearer " + result.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)

	_, err = svc.Authorize(result.AccessToken)
	assert.ErrorIs(t, err, domain.ErrMalformedHeader)

	_, err = svc.Authorize("Basic dXNlcjpwYXNz")
	assert.ErrorIs(t, err, domain.ErrMalformedHeader)
}

func TestCurrent(t *testing.T) {
	u := testUser(t, "secret1")
	svc := newSvc(newMemUserStore(u), testCodec(t))

	got, err := svc.Current(context.Background(), "u-1")
	require.NoError(t, err)
	assert.Equal(t, u.UserID, got.UserID)

	_, err = svc.Current(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
