package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"github.com/go-auth-otp/internal/domain"
	jwtinfra "github.com/go-auth-otp/internal/infrastructure/jwt"
	"golang.org/x/crypto/bcrypt"
)

const bearerPrefix = "Bearer "

// UserStore is the slice of user persistence the token service needs. The
// service reads identities and owns exactly two writes: setting and unsetting
// the persisted refresh token.
type UserStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	UnsetRefreshToken(ctx context.Context, userID string) error
}

// TokenCodec signs and verifies the access/refresh token pair.
type TokenCodec interface {
	SignAccess(u *domain.User) (string, error)
	SignRefresh(u *domain.User) (string, error)
	Decode(token string) (*jwtinfra.Claims, error)
}

// Metrics records login outcomes.
type Metrics interface {
	RecordLogin(success bool)
}

type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         *domain.User
}

type Service interface {
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Exchange(ctx context.Context, refreshToken string) (string, error)
	Logout(ctx context.Context, token string) error
	Authorize(bearerHeader string) (*jwtinfra.Claims, error)
	Current(ctx context.Context, userID string) (*domain.User, error)
}

type ServiceDeps struct {
	UserRepo UserStore
	Codec    TokenCodec
	Metrics  Metrics
}

type service struct {
	userRepo UserStore
	codec    TokenCodec
	metrics  Metrics
}

func NewService(deps ServiceDeps) Service {
	return &service{userRepo: deps.UserRepo, codec: deps.Codec, metrics: deps.Metrics}
}

// Login authenticates an identifier/password pair and opens a session.
// The freshly minted refresh token replaces whatever was persisted before,
// which is the server-side revocation of any prior session for this user.
// Unknown identifier and wrong password are indistinguishable to the caller.
func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	u, err := s.lookup(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.RecordLogin(false)
			return nil, fmt.Errorf("login: %w", domain.ErrAuthenticationFailed)
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		s.metrics.RecordLogin(false)
		return nil, fmt.Errorf("login: %w", domain.ErrAuthenticationFailed)
	}

	refreshToken, err := s.codec.SignRefresh(u)
	if err != nil {
		return nil, err
	}
	if err := s.userRepo.Update(ctx, u.UserID, map[string]interface{}{"refresh_token": refreshToken}); err != nil {
		return nil, err
	}
	accessToken, err := s.codec.SignAccess(u)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordLogin(true)
	return &LoginResult{AccessToken: accessToken, RefreshToken: refreshToken, User: u}, nil
}

// Exchange trades a valid refresh token for a new access token. The token
// must both decode and exactly equal the one persisted against the user
// record; logout and superseding logins clear or replace that value, which
// revokes older tokens regardless of their embedded expiry. The refresh
// token itself is not rotated here.
func (s *service) Exchange(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		return "", err
	}
	u, err := s.userRepo.Get(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", fmt.Errorf("exchange: %w", domain.ErrSessionRevoked)
		}
		return "", err
	}
	if u.RefreshToken == nil || subtle.ConstantTimeCompare([]byte(*u.RefreshToken), []byte(refreshToken)) != 1 {
		return "", fmt.Errorf("exchange: %w", domain.ErrSessionRevoked)
	}
	return s.codec.SignAccess(u)
}

// Logout ends the session identified by the presented token, even one close
// to expiry. A token that fails to decode is fatal here: there is no way to
// know whose session to end.
func (s *service) Logout(ctx context.Context, token string) error {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return err
	}
	return s.userRepo.UnsetRefreshToken(ctx, claims.UserID)
}

// Authorize extracts and decodes the token from a Bearer header.
func (s *service) Authorize(bearerHeader string) (*jwtinfra.Claims, error) {
	if !strings.HasPrefix(bearerHeader, bearerPrefix) {
		return nil, fmt.Errorf("authorize: %w", domain.ErrMalformedHeader)
	}
	return s.codec.Decode(strings.TrimPrefix(bearerHeader, bearerPrefix))
}

// Current returns the fresh user record behind an authenticated request.
func (s *service) Current(ctx context.Context, userID string) (*domain.User, error) {
	return s.userRepo.Get(ctx, userID)
}

// lookup resolves an identifier that may be a phone number or an email address.
func (s *service) lookup(ctx context.Context, identifier string) (*domain.User, error) {
	if strings.Contains(identifier, "@") {
		return s.userRepo.GetByEmail(ctx, identifier)
	}
	phone := domain.NormalizePhone(identifier)
	if err := domain.ValidatePhone(phone); err == nil {
		return s.userRepo.GetByPhone(ctx, phone)
	}
	return s.userRepo.GetByEmail(ctx, identifier)
}
