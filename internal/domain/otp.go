package domain

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"time"
)

// OTPTTL is the lifespan of a one-time code. The backing store also enforces
// this as its native expiry, but the record carries it so expiry checks stay
// deterministic even when store-level eviction lags.
const OTPTTL = 300 * time.Second

// OTPRecord is a one-time code stored under a subject (phone number or
// email-confirmation key). At most one live record exists per subject;
// creating a new one overwrites the prior record and resets the TTL.
type OTPRecord struct {
	Subject  string
	Code     string
	IssuedAt time.Time
	TTL      time.Duration
}

// ExpiredAt reports whether the record has outlived its TTL at the given
// instant. A record aged exactly TTL is still live; expiry begins strictly
// after the TTL has elapsed.
func (r *OTPRecord) ExpiredAt(now time.Time) bool {
	ttl := r.TTL
	if ttl == 0 {
		ttl = OTPTTL
	}
	return now.Sub(r.IssuedAt) > ttl
}

// Matches compares a candidate against the stored code with exact-length,
// exact-content equality in constant time.
func (r *OTPRecord) Matches(candidate string) bool {
	if len(candidate) != len(r.Code) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(r.Code), []byte(candidate)) == 1
}

// NewOTPCode generates a uniformly random 6-digit code.
func NewOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
