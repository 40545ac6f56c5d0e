package domain

import "errors"

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	// ErrValidation marks malformed input rejected before any store call.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers missing users and missing OTP records alike.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a uniqueness violation (phone or email already registered).
	ErrConflict = errors.New("conflict")

	// ErrMismatch is returned when a record exists but the presented code does not match.
	ErrMismatch = errors.New("code mismatch")

	// ErrExpired is returned when an OTP record has outlived its TTL.
	ErrExpired = errors.New("code expired")

	// ErrTokenInvalid covers malformed tokens and signature failures.
	ErrTokenInvalid = errors.New("invalid token")

	// ErrTokenExpired is returned when a token's signature verifies but its expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrSessionRevoked is returned when a refresh token no longer matches the one
	// persisted against the user record (logout or a superseding login).
	ErrSessionRevoked = errors.New("session revoked")

	// ErrMalformedHeader is returned when an Authorization header lacks the Bearer scheme.
	ErrMalformedHeader = errors.New("malformed authorization header")

	// ErrAuthenticationFailed is the enumeration-safe login failure: unknown
	// identifier and wrong password are indistinguishable to the caller.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrStoreUnavailable marks an unreachable or timed-out backing store.
	// A timed-out store call is never reported as not-found.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrDeliveryFailed marks an SMS or email delivery failure, kept distinct
	// from store failures so clients can decide whether a resend makes sense.
	ErrDeliveryFailed = errors.New("delivery failed")
)
