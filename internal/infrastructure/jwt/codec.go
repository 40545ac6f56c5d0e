package jwtinfra

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-auth-otp/internal/domain"
	"github.com/go-auth-otp/internal/pkg/id"
	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the JWT payload fields: the user identity plus its public
// profile attributes. The password digest is never embedded.
type Claims struct {
	UserID   string  `json:"user_id"`
	Phone    *string `json:"phone,omitempty"`
	Email    *string `json:"email,omitempty"`
	Verified bool    `json:"verified"`
	jwt.RegisteredClaims
}

// Codec signs and verifies HS256 JWTs with a single static secret.
// Signing never accepts a caller-chosen algorithm; decoding rejects any
// method other than HMAC.
type Codec struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewCodec(secret string, accessTTL, refreshTTL time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("jwt secret must not be empty")
	}
	return &Codec{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}, nil
}

// AccessTTL returns the configured access-token lifespan.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// SignAccess mints a short-lived access token for the user.
func (c *Codec) SignAccess(u *domain.User) (string, error) {
	return c.sign(u, c.accessTTL)
}

// SignRefresh mints a long-lived refresh token for the user.
func (c *Codec) SignRefresh(u *domain.User) (string, error) {
	return c.sign(u, c.refreshTTL)
}

func (c *Codec) sign(u *domain.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:   u.UserID,
		Phone:    u.Phone,
		Email:    u.Email,
		Verified: u.Verified,
		RegisteredClaims: jwt.RegisteredClaims{
			// A unique ID makes every minted token distinct, so replacing the
			// persisted refresh token always revokes the previous session.
			ID:        id.New(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and the embedded expiry. Expiry of a
// well-signed token and a bad signature are distinct failures so callers can
// tell "log in again" apart from "tampered token".
func (c *Codec) Decode(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%v: %w", err, domain.ErrTokenExpired)
		}
		return nil, fmt.Errorf("%v: %w", err, domain.ErrTokenInvalid)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims: %w", domain.ErrTokenInvalid)
	}
	return claims, nil
}
