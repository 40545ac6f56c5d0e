package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-auth-otp/internal/domain"
	"github.com/go-auth-otp/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockStore struct{ mock.Mock }

func (m *mockStore) Create(ctx context.Context, subject string) (string, error) {
	args := m.Called(ctx, subject)
	return args.String(0), args.Error(1)
}
func (m *mockStore) Read(ctx context.Context, subject string) (*domain.OTPRecord, error) {
	args := m.Called(ctx, subject)
	if r, _ := args.Get(0).(*domain.OTPRecord); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockStore) Delete(ctx context.Context, subject string) (bool, error) {
	args := m.Called(ctx, subject)
	return args.Bool(0), args.Error(1)
}
func (m *mockStore) CompareAndDelete(ctx context.Context, subject, expected string) (bool, error) {
	args := m.Called(ctx, subject, expected)
	return args.Bool(0), args.Error(1)
}

type mockSender struct{ mock.Mock }

func (m *mockSender) SendSMS(ctx context.Context, to, message string) error {
	return m.Called(ctx, to, message).Error(0)
}

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	args := m.Called(ctx, phone)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}

// --- helpers ---

const phone = "01712345678"

func newSvc(store *mockStore, sender *mockSender, users *mockUserStore) Service {
	return NewService(ServiceDeps{
		Store:    store,
		Sender:   sender,
		UserRepo: users,
		Metrics:  metrics.NewCollector(prometheus.NewRegistry()),
	})
}

func liveRecord(code string) *domain.OTPRecord {
	return &domain.OTPRecord{Subject: phone, Code: code, IssuedAt: time.Now(), TTL: domain.OTPTTL}
}

// --- RequestChallenge ---

func TestRequestChallenge_Success(t *testing.T) {
	store, sender, users := &mockStore{}, &mockSender{}, &mockUserStore{}
	store.On("Create", mock.Anything, phone).Return("123456", nil)
	sender.On("SendSMS", mock.Anything, phone, "Your verification code is: 123456.").Return(nil)

	err := newSvc(store, sender, users).RequestChallenge(context.Background(), phone)

	require.NoError(t, err)
	store.AssertExpectations(t)
	sender.AssertExpectations(t)
}

func TestRequestChallenge_NormalizesInternationalFormat(t *testing.T) {
	store, sender, users := &mockStore{}, &mockSender{}, &mockUserStore{}
	store.On("Create", mock.Anything, phone).Return("654321", nil)
	sender.On("SendSMS", mock.Anything, phone, mock.Anything).Return(nil)

	err := newSvc(store, sender, users).RequestChallenge(context.Background(), "+88"+phone)

	require.NoError(t, err)
	store.AssertExpectations(t)
}

func TestRequestChallenge_InvalidPhone(t *testing.T) {
	store, sender, users := &mockStore{}, &mockSender{}, &mockUserStore{}

	for _, p := range []string{"0123456789", "01212345678", "abc"} {
		err := newSvc(store, sender, users).RequestChallenge(context.Background(), p)
		assert.ErrorIs(t, err, domain.ErrValidation, p)
	}
	// Validation rejects before any store call.
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRequestChallenge_StoreUnavailable(t *testing.T) {
	store, sender, users := &mockStore{}, &mockSender{}, &mockUserStore{}
	store.On("Create", mock.Anything, phone).Return("", domain.ErrStoreUnavailable)

	err := newSvc(store, sender, users).RequestChallenge(context.Background(), phone)

	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	sender.AssertNotCalled(t, "SendSMS", mock.Anything, mock.Anything, mock.Anything)
}

func TestRequestChallenge_DeliveryFailureLeavesRecord(t *testing.T) {
	store, sender, users := &mockStore{}, &mockSender{}, &mockUserStore{}
	store.On("Create", mock.Anything, phone).Return("123456", nil)
	sender.On("SendSMS", mock.Anything, phone, mock.Anything).Return(domain.ErrDeliveryFailed)

	err := newSvc(store, sender, users).RequestChallenge(context.Background(), phone)

	assert.ErrorIs(t, err, domain.ErrDeliveryFailed)
	assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)
	// The record must survive a delivery failure so the user can still verify.
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

// --- VerifyChallenge ---

func TestVerifyChallenge_Success(t *testing.T) {
	store, sender, users := &mockStore{}, &mockSender{}, &mockUserStore{}
	store.On("Read", mock.Anything, phone).Return(liveRecord("123456"), nil)
	store.On("CompareAndDelete", mock.Anything, phone, "123456").Return(true, nil)
	users.On("GetByPhone", mock.Anything, phone).Return(&domain.User{UserID: "u-1"}, nil)
	users.On("Update", mock.Anything, "u-1", map[string]interface{}{"verified": true}).Return(nil)

	err := newSvc(store, sender, users).VerifyChallenge(context.Background(), phone, "123456")

	require.NoError(t, err)
	store.AssertExpectations(t)
	users.AssertExpectations(t)
}

func TestVerifyChallenge_NotFound(t *testing.T) {
	store, sender, users := &mockStore{}, &mockSender{}, &mockUserStore{}
	store.On("Read", mock.Anything, phone).Return(nil, domain.ErrNotFound)

	err := newSvc(store, sender, users).VerifyChallenge(context.Background(), phone, "123456")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyChallenge_Mismatch(t *testing.T) {
	store, sender, users := &mockStore{}, &mockSender{}, &mockUserStore{}
	store.On("Read", mock.Anything, phone).Return(liveRecord("123456"), nil)

	err := newSvc(store, sender, users).VerifyChallenge(context.Background(), phone, "000000")

	assert.ErrorIs(t, err, domain.ErrMismatch)
	store.AssertNotCalled(t, "CompareAndDelete", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestVerifyChallenge_ExpiredDeletesRecord(t *testing.T) {
	store, sender, users := &mockStore{}, &mockSender{}, &mockUserStore{}
	expired := &domain.OTPRecord{
		Subject:  phone,
		Code:     "123456",
		IssuedAt: time.Now().Add(-10 * time.Minute),
		TTL:      domain.OTPTTL,
	}
	store.On("Read", mock.Anything, phone).Return(expired, nil)
	store.On("Delete", mock.Anything, phone).Return(true, nil)

	err := newSvc(store, sender, users).VerifyChallenge(context.Background(), phone, "123456")

	assert.ErrorIs(t, err, domain.ErrExpired)
	store.AssertExpectations(t)
}

func TestVerifyChallenge_ExpiredCleanupFailureStillExpired(t *testing.T) {
	store, sender, users := &mockStore{}, &mockSender{}, &mockUserStore{}
	expired := &domain.OTPRecord{
		Subject:  phone,
		Code:     "123456",
		IssuedAt: time.Now().Add(-10 * time.Minute),
		TTL:      domain.OTPTTL,
	}
	store.On("Read", mock.Anything, phone).Return(expired, nil)
	store.On("Delete", mock.Anything, phone).Return(false, errors.New("boom"))

	err := newSvc(store, sender, users).VerifyChallenge(context.Background(), phone, "123456")

	assert.ErrorIs(t, err, domain.ErrExpired)
}

func TestVerifyChallenge_LostRaceReportsNotFound(t *testing.T) {
	store, sender, users := &mockStore{}, &mockSender{}, &mockUserStore{}
	store.On("Read", mock.Anything, phone).Return(liveRecord("123456"), nil)
	// A concurrent identical verification consumed the record first.
	store.On("CompareAndDelete", mock.Anything, phone, "123456").Return(false, nil)

	err := newSvc(store, sender, users).VerifyChallenge(context.Background(), phone, "123456")

	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyChallenge_StoreErrorIsNotNotFound(t *testing.T) {
	store, sender, users := &mockStore{}, &mockSender{}, &mockUserStore{}
	store.On("Read", mock.Anything, phone).Return(nil, domain.ErrStoreUnavailable)

	err := newSvc(store, sender, users).VerifyChallenge(context.Background(), phone, "123456")

	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestVerifyChallenge_NoAccountStillSucceeds(t *testing.T) {
	store, sender, users := &mockStore{}, &mockSender{}, &mockUserStore{}
	store.On("Read", mock.Anything, phone).Return(liveRecord("123456"), nil)
	store.On("CompareAndDelete", mock.Anything, phone, "123456").Return(true, nil)
	users.On("GetByPhone", mock.Anything, phone).Return(nil, domain.ErrNotFound)

	err := newSvc(store, sender, users).VerifyChallenge(context.Background(), phone, "123456")

	require.NoError(t, err)
	users.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}
