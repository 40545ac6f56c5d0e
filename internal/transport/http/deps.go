package http

import (
	"context"
	"net/http"

	"github.com/go-auth-otp/internal/application/otp"
	"github.com/go-auth-otp/internal/domain"
	jwtinfra "github.com/go-auth-otp/internal/infrastructure/jwt"
	"github.com/go-auth-otp/internal/infrastructure/smtp"
	"github.com/go-auth-otp/internal/infrastructure/sns"
	"github.com/go-auth-otp/internal/metrics"
)

// UserRepository is the full slice of user persistence the router wires into
// the application services. Each service narrows it to what it needs.
type UserRepository interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	UnsetRefreshToken(ctx context.Context, userID string) error
}

// Deps holds all infrastructure dependencies for the router.
type Deps struct {
	UserRepo  UserRepository
	CredStore otp.CredentialStore
	SMSSender sns.SMSSender
	Mailer    smtp.Mailer
	Codec     *jwtinfra.Codec
	Collector *metrics.Collector
	// MetricsHandler serves the Prometheus scrape endpoint.
	MetricsHandler http.Handler
}
