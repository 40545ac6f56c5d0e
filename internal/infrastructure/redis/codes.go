package redisinfra

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-auth-otp/internal/domain"
	"github.com/redis/go-redis/v9"
)

// opTimeout bounds every Redis call. A timed-out call surfaces as
// ErrStoreUnavailable, never as not-found.
const opTimeout = 5 * time.Second

// CodeStore is the Redis-backed credential store for one-time codes.
// One hash per subject plus a key-level EXPIRE; single-use is enforced with a
// server-side compare-and-delete script.
type CodeStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCodeStore(client *redis.Client, ttl time.Duration) *CodeStore {
	if ttl <= 0 {
		ttl = domain.OTPTTL
	}
	return &CodeStore{client: client, ttl: ttl}
}

// compareAndDelete deletes the key only when its stored code equals ARGV[1].
// Runs atomically on the server, so concurrent identical verifications cannot
// both consume the same code.
var compareAndDelete = redis.NewScript(`
if redis.call("HGET", KEYS[1], "code") == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0
`)

// Create generates a random 6-digit code and stores it under subject,
// overwriting any existing record and resetting the TTL (last writer wins).
func (s *CodeStore) Create(ctx context.Context, subject string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	code, err := domain.NewOTPCode()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, subject, "code", code, "issued_at", now.Unix())
	pipe.Expire(ctx, subject, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", storeErr("put otp record", err)
	}
	return code, nil
}

// Read returns the current record for subject. A record already evicted by
// the store's TTL is indistinguishable from one that never existed.
func (s *CodeStore) Read(ctx context.Context, subject string) (*domain.OTPRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	data, err := s.client.HGetAll(ctx, subject).Result()
	if err != nil {
		return nil, storeErr("get otp record", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("otp record for %s: %w", subject, domain.ErrNotFound)
	}
	issued, err := strconv.ParseInt(data["issued_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse issued_at: %w", err)
	}
	return &domain.OTPRecord{
		Subject:  subject,
		Code:     data["code"],
		IssuedAt: time.Unix(issued, 0).UTC(),
		TTL:      s.ttl,
	}, nil
}

// Verify reports whether candidate matches the stored code. A missing record
// is a plain false, not an error.
func (s *CodeStore) Verify(ctx context.Context, subject, candidate string) (bool, error) {
	rec, err := s.Read(ctx, subject)
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return rec.Matches(candidate), nil
}

// IsExpired reports whether the record for subject has outlived its TTL.
// An absent record counts as expired, not as unknown.
func (s *CodeStore) IsExpired(ctx context.Context, subject string) (bool, error) {
	rec, err := s.Read(ctx, subject)
	if errors.Is(err, domain.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return rec.ExpiredAt(time.Now()), nil
}

// Delete removes the record and reports whether one was present. Deleting an
// absent record is not an error.
func (s *CodeStore) Delete(ctx context.Context, subject string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := s.client.Del(ctx, subject).Result()
	if err != nil {
		return false, storeErr("delete otp record", err)
	}
	return n > 0, nil
}

// CompareAndDelete atomically removes the record only if its stored code
// equals expected.
func (s *CodeStore) CompareAndDelete(ctx context.Context, subject, expected string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := compareAndDelete.Run(ctx, s.client, []string{subject}, expected).Int64()
	if err != nil {
		return false, storeErr("compare-and-delete otp record", err)
	}
	return n > 0, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, domain.ErrStoreUnavailable)
}
