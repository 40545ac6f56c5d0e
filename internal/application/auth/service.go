package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-auth-otp/internal/application/otp"
	"github.com/go-auth-otp/internal/domain"
	jwtinfra "github.com/go-auth-otp/internal/infrastructure/jwt"
	"github.com/go-auth-otp/internal/pkg/id"
	"github.com/go-auth-otp/internal/pkg/validate"
	"golang.org/x/crypto/bcrypt"
)

// UserStore is the slice of user persistence the registration and recovery
// flows need.
type UserStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	UnsetRefreshToken(ctx context.Context, userID string) error
}

// TokenCodec mints and verifies the short-lived reset token embedded in
// password recovery links.
type TokenCodec interface {
	SignAccess(u *domain.User) (string, error)
	Decode(token string) (*jwtinfra.Claims, error)
}

// Mailer delivers recovery links and confirmation codes.
type Mailer interface {
	SendEmail(to, subject, body string) error
}

type ForgotPasswordRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	Phone    *string `json:"phone"`
	Callback *string `json:"callback"` // reset form URL supplied by the client
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type Service interface {
	Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error)
	ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, req ResetPasswordRequest) error
	RequestEmailConfirmation(ctx context.Context, userID string) error
	ConfirmEmail(ctx context.Context, userID, code string) error
}

type ServiceDeps struct {
	UserRepo     UserStore
	Store        otp.CredentialStore
	Codec        TokenCodec
	Mailer       Mailer
	ResetURLBase string
}

type service struct {
	userRepo     UserStore
	store        otp.CredentialStore
	codec        TokenCodec
	mailer       Mailer
	resetURLBase string
}

func NewService(deps ServiceDeps) Service {
	return &service{
		userRepo:     deps.UserRepo,
		store:        deps.Store,
		codec:        deps.Codec,
		mailer:       deps.Mailer,
		resetURLBase: deps.ResetURLBase,
	}
}

// Register creates a new unverified account. Phone and email are both
// optional but at least one is required, and each must be unused.
func (s *service) Register(ctx context.Context, req domain.RegisterRequest) (*domain.User, error) {
	if err := validate.Struct(&req); err != nil {
		return nil, fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}
	if req.Phone == nil && req.Email == nil {
		return nil, fmt.Errorf("phone or email required: %w", domain.ErrValidation)
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}

	var phone *string
	if req.Phone != nil {
		p := domain.NormalizePhone(*req.Phone)
		if err := domain.ValidatePhone(p); err != nil {
			return nil, err
		}
		phone = &p
		if _, err := s.userRepo.GetByPhone(ctx, p); err == nil {
			return nil, fmt.Errorf("phone already registered: %w", domain.ErrConflict)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}
	if req.Email != nil {
		if _, err := s.userRepo.GetByEmail(ctx, *req.Email); err == nil {
			return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Phone:        phone,
		Email:        req.Email,
		PasswordHash: string(hash),
		Verified:     false,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.userRepo.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ForgotPassword emails a reset link carrying a short-lived signed token.
// The account must have an email address on file; recovery over SMS is the
// OTP challenge flow's job.
func (s *service) ForgotPassword(ctx context.Context, req ForgotPasswordRequest) error {
	u, err := s.findByIdentifiers(ctx, req.Email, req.Phone)
	if err != nil {
		return err
	}
	if u.Email == nil {
		return fmt.Errorf("no email on account, use phone verification: %w", domain.ErrValidation)
	}

	resetToken, err := s.codec.SignAccess(u)
	if err != nil {
		return err
	}
	base := s.resetURLBase
	if req.Callback != nil && *req.Callback != "" {
		base = *req.Callback
	}
	link := fmt.Sprintf("%s?token=%s", base, url.QueryEscape(resetToken))
	return s.mailer.SendEmail(*u.Email, "Password Reset Request", "Reset your password: "+link)
}

// ResetPassword sets a new password for the identity inside a valid reset
// token, and ends any active session so stolen refresh tokens die with the
// old password.
func (s *service) ResetPassword(ctx context.Context, req ResetPasswordRequest) error {
	if err := validate.Struct(&req); err != nil {
		return fmt.Errorf("%v: %w", err, domain.ErrValidation)
	}
	if err := validatePassword(req.Password); err != nil {
		return err
	}
	claims, err := s.codec.Decode(req.Token)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.userRepo.Update(ctx, claims.UserID, map[string]interface{}{"password_hash": string(hash)}); err != nil {
		return err
	}
	if err := s.userRepo.UnsetRefreshToken(ctx, claims.UserID); err != nil {
		slog.Warn("failed to end sessions after password reset", "user_id", claims.UserID, "err", err)
	}
	return nil
}

// RequestEmailConfirmation stores a 6-digit code against the email subject
// and mails it. Re-requesting supersedes the prior code.
func (s *service) RequestEmailConfirmation(ctx context.Context, userID string) error {
	u, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.Email == nil {
		return fmt.Errorf("no email on account: %w", domain.ErrValidation)
	}
	code, err := s.store.Create(ctx, emailSubject(*u.Email))
	if err != nil {
		return err
	}
	return s.mailer.SendEmail(*u.Email, "Confirm your email", "Your confirmation code is: "+code)
}

// ConfirmEmail consumes the emailed code and marks the account verified.
// The same single-use rules apply as for phone challenges.
func (s *service) ConfirmEmail(ctx context.Context, userID, code string) error {
	u, err := s.userRepo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.Email == nil {
		return fmt.Errorf("no email on account: %w", domain.ErrValidation)
	}
	subject := emailSubject(*u.Email)

	rec, err := s.store.Read(ctx, subject)
	if err != nil {
		return err
	}
	if !rec.Matches(code) {
		return fmt.Errorf("confirmation code: %w", domain.ErrMismatch)
	}
	if rec.ExpiredAt(time.Now()) {
		if _, err := s.store.Delete(ctx, subject); err != nil {
			slog.Warn("failed to delete expired confirmation code", "subject", subject, "err", err)
		}
		return fmt.Errorf("confirmation code: %w", domain.ErrExpired)
	}
	ok, err := s.store.CompareAndDelete(ctx, subject, code)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("confirmation code already consumed: %w", domain.ErrNotFound)
	}
	return s.userRepo.Update(ctx, userID, map[string]interface{}{"verified": true})
}

func (s *service) findByIdentifiers(ctx context.Context, email, phone *string) (*domain.User, error) {
	if email != nil {
		return s.userRepo.GetByEmail(ctx, *email)
	}
	if phone != nil {
		p := domain.NormalizePhone(*phone)
		if err := domain.ValidatePhone(p); err != nil {
			return nil, err
		}
		return s.userRepo.GetByPhone(ctx, p)
	}
	return nil, fmt.Errorf("email or phone required: %w", domain.ErrValidation)
}

// emailSubject namespaces confirmation codes so they can never collide with
// phone-number subjects in the shared credential store.
func emailSubject(email string) string {
	return "email:" + email
}

// validatePassword enforces the password policy: at least 6 characters with
// at least one letter and one digit.
func validatePassword(pw string) error {
	if len(pw) < 6 {
		return fmt.Errorf("password must be at least 6 characters: %w", domain.ErrValidation)
	}
	var hasLetter, hasDigit bool
	for _, c := range pw {
		switch {
		case c >= '0' && c <= '9':
			hasDigit = true
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			hasLetter = true
		}
	}
	if !hasLetter || !hasDigit {
		return fmt.Errorf("password must contain at least one letter and one number: %w", domain.ErrValidation)
	}
	return nil
}
