package otp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-otp/internal/domain"
)

// CredentialStore is the TTL-keyed store holding one OTP record per subject.
// Implementations must make CompareAndDelete atomic on the store side so a
// code cannot be consumed twice under concurrent verifications.
type CredentialStore interface {
	Create(ctx context.Context, subject string) (string, error)
	Read(ctx context.Context, subject string) (*domain.OTPRecord, error)
	Delete(ctx context.Context, subject string) (bool, error)
	CompareAndDelete(ctx context.Context, subject, expected string) (bool, error)
}

// SMSSender delivers the generated code out-of-band.
type SMSSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

// UserStore is the slice of user persistence the challenge flow needs: on a
// successful verification the owning account, if any, is marked verified.
type UserStore interface {
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
}

// Metrics records challenge outcomes.
type Metrics interface {
	RecordOTPIssued()
	RecordOTPVerified()
	RecordOTPVerifyFail(reason string)
}

type Service interface {
	RequestChallenge(ctx context.Context, phone string) error
	VerifyChallenge(ctx context.Context, phone, code string) error
}

type ServiceDeps struct {
	Store    CredentialStore
	Sender   SMSSender
	UserRepo UserStore
	Metrics  Metrics
}

type service struct {
	store    CredentialStore
	sender   SMSSender
	userRepo UserStore
	metrics  Metrics
}

func NewService(deps ServiceDeps) Service {
	return &service{
		store:    deps.Store,
		sender:   deps.Sender,
		userRepo: deps.UserRepo,
		metrics:  deps.Metrics,
	}
}

// RequestChallenge issues a fresh code for the phone number and hands it to
// the SMS sender. A re-request supersedes the prior code and resets its TTL.
// If delivery fails the record is left in place: the user may still verify
// once the code reaches them through a resend.
func (s *service) RequestChallenge(ctx context.Context, phone string) error {
	subject := domain.NormalizePhone(phone)
	if err := domain.ValidatePhone(subject); err != nil {
		return err
	}
	code, err := s.store.Create(ctx, subject)
	if err != nil {
		return err
	}
	s.metrics.RecordOTPIssued()

	if err := s.sender.SendSMS(ctx, subject, fmt.Sprintf("Your verification code is: %s.", code)); err != nil {
		return err
	}
	return nil
}

// VerifyChallenge checks the candidate against the stored code and consumes
// the record on success. Failure kinds stay distinct so the client can decide
// between prompting a resend (not found, expired) and a re-entry (mismatch).
func (s *service) VerifyChallenge(ctx context.Context, phone, code string) error {
	subject := domain.NormalizePhone(phone)
	if err := domain.ValidatePhone(subject); err != nil {
		return err
	}

	rec, err := s.store.Read(ctx, subject)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.metrics.RecordOTPVerifyFail("not_found")
			return err
		}
		s.metrics.RecordOTPVerifyFail("store_error")
		return err
	}

	if !rec.Matches(code) {
		s.metrics.RecordOTPVerifyFail("mismatch")
		return fmt.Errorf("otp for %s: %w", subject, domain.ErrMismatch)
	}

	if rec.ExpiredAt(time.Now()) {
		// Best-effort cleanup: failure to delete never masks the expiry result.
		if _, err := s.store.Delete(ctx, subject); err != nil {
			slog.Warn("failed to delete expired otp record", "subject", subject, "err", err)
		}
		s.metrics.RecordOTPVerifyFail("expired")
		return fmt.Errorf("otp for %s: %w", subject, domain.ErrExpired)
	}

	// Single-use: the conditional delete is atomic, so a concurrent identical
	// verification that won the race leaves nothing for this one to consume.
	ok, err := s.store.CompareAndDelete(ctx, subject, code)
	if err != nil {
		s.metrics.RecordOTPVerifyFail("store_error")
		return err
	}
	if !ok {
		s.metrics.RecordOTPVerifyFail("not_found")
		return fmt.Errorf("otp for %s already consumed: %w", subject, domain.ErrNotFound)
	}
	s.metrics.RecordOTPVerified()

	s.markVerified(ctx, subject)
	return nil
}

// markVerified flags the account owning the phone number, when one exists.
// Proving control of the number succeeds regardless of this write.
func (s *service) markVerified(ctx context.Context, phone string) {
	u, err := s.userRepo.GetByPhone(ctx, phone)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			slog.Warn("failed to look up user for verified flag", "phone", phone, "err", err)
		}
		return
	}
	if u.Verified {
		return
	}
	if err := s.userRepo.Update(ctx, u.UserID, map[string]interface{}{"verified": true}); err != nil {
		slog.Warn("failed to mark user verified", "user_id", u.UserID, "err", err)
	}
}
