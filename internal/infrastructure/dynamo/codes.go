package dynamo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/go-auth-otp/internal/domain"
)

// CodeRepo is the DynamoDB-backed credential store for one-time codes.
// PK: subject. The table has native TTL on expires_at, and the record keeps
// its own issued_at so expiry checks do not depend on eviction timing.
type CodeRepo struct {
	client    *dynamodb.Client
	tableName string
	ttl       time.Duration
}

func NewCodeRepo(client *dynamodb.Client, tableName string, ttl time.Duration) *CodeRepo {
	if ttl <= 0 {
		ttl = domain.OTPTTL
	}
	return &CodeRepo{client: client, tableName: tableName, ttl: ttl}
}

type codeItem struct {
	Subject   string    `dynamodbav:"subject"`
	Code      string    `dynamodbav:"code"`
	IssuedAt  time.Time `dynamodbav:"issued_at,unixtime"`
	ExpiresAt int64     `dynamodbav:"expires_at"` // native TTL (Unix seconds)
}

// Create generates a random 6-digit code and stores it under subject,
// overwriting any existing record and resetting the TTL (last writer wins).
func (r *CodeRepo) Create(ctx context.Context, subject string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	code, err := domain.NewOTPCode()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	item, err := attributevalue.MarshalMap(codeItem{
		Subject:   subject,
		Code:      code,
		IssuedAt:  now,
		ExpiresAt: now.Add(r.ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal otp record: %w", err)
	}
	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.tableName),
		Item:      item,
	}); err != nil {
		return "", storeErr("put otp record", err)
	}
	return code, nil
}

// Read returns the current record for subject. A record already evicted by
// the store's TTL is indistinguishable from one that never existed.
func (r *CodeRepo) Read(ctx context.Context, subject string) (*domain.OTPRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.tableName),
		Key:       strKey("subject", subject),
	})
	if err != nil {
		return nil, storeErr("get otp record", err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("otp record for %s: %w", subject, domain.ErrNotFound)
	}
	var item codeItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, err
	}
	return &domain.OTPRecord{
		Subject:  item.Subject,
		Code:     item.Code,
		IssuedAt: item.IssuedAt,
		TTL:      r.ttl,
	}, nil
}

// Verify reports whether candidate matches the stored code. A missing record
// is a plain false, not an error.
func (r *CodeRepo) Verify(ctx context.Context, subject, candidate string) (bool, error) {
	rec, err := r.Read(ctx, subject)
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
func (r *CodeRepo) IsExpired(ctx context.Context, subject string) (bool, error) {
	rec, err := r.Read(ctx, subject)
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
func (r *CodeRepo) Delete(ctx context.Context, subject string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	out, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(r.tableName),
		Key:          strKey("subject", subject),
		ReturnValues: types.ReturnValueAllOld,
	})
	if err != nil {
		return false, storeErr("delete otp record", err)
	}
	return out.Attributes != nil, nil
}

// CompareAndDelete atomically removes the record only if its stored code
// equals expected. Single-use is guaranteed by the store, not by the caller:
// of two concurrent verifications with the correct code, exactly one wins.
func (r *CodeRepo) CompareAndDelete(ctx context.Context, subject, expected string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(r.tableName),
		Key:                 strKey("subject", subject),
		ConditionExpression: aws.String("code = :c"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":c": &types.AttributeValueMemberS{Value: expected},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return false, nil
		}
		return false, storeErr("compare-and-delete otp record", err)
	}
	return true, nil
}
