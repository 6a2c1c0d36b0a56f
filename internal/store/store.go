package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/questline/core/internal/pkg/kind"
	"go.uber.org/zap"
)

// DynamoAPI is the slice of the DynamoDB client the store consumes. The
// storetest fake satisfies the same interface.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

// Sentinel errors callers translate at their own boundary.
var (
	// ErrNotFound is returned by Get when no item matches the key.
	ErrNotFound = kind.New(kind.NotFound, "item not found")
	// ErrConditionFailed is returned when a conditional put or a
	// transaction condition does not hold.
	ErrConditionFailed = errors.New("store: condition failed")
	// ErrVersionConflict is returned when an optimistic-concurrency check
	// loses.
	ErrVersionConflict = kind.New(kind.ConflictVersion, "version check failed")
)

const (
	transientRetries  = 3
	transientInitial  = 50 * time.Millisecond
	transientMaxDelay = 1 * time.Second
)

// Store exposes typed operations over one table.
type Store struct {
	client DynamoAPI
	table  string
	logger *zap.Logger
}

func New(client DynamoAPI, table string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, table: table, logger: logger.Named("Store")}
}

// Table returns the backing table name.
func (s *Store) Table() string { return s.table }

// Put writes item unconditionally.
func (s *Store) Put(ctx context.Context, item interface{}) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return kind.Wrap(kind.Internal, "marshal item", err)
	}
	return s.retry(ctx, func() error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(s.table),
			Item:      av,
		})
		return err
	})
}

// PutIfAbsent writes item only when no row exists under its key. An
// existing row surfaces as ErrConditionFailed.
func (s *Store) PutIfAbsent(ctx context.Context, item interface{}) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return kind.Wrap(kind.Internal, "marshal item", err)
	}
	err = s.retry(ctx, func() error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.table),
			Item:                av,
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		})
		return err
	})
	if isConditionFailed(err) {
		return ErrConditionFailed
	}
	return err
}

// Get reads the item at (pk, sk) with eventual consistency into out.
func (s *Store) Get(ctx context.Context, pk, sk string, out interface{}) error {
	return s.get(ctx, pk, sk, out, false)
}

// GetConsistent is Get with a strongly consistent read. Reserved for the
// login-attempt window, credential reads, ownership transfer and version
// retry re-reads.
func (s *Store) GetConsistent(ctx context.Context, pk, sk string, out interface{}) error {
	return s.get(ctx, pk, sk, out, true)
}

func (s *Store) get(ctx context.Context, pk, sk string, out interface{}, consistent bool) error {
	var item map[string]types.AttributeValue
	err := s.retry(ctx, func() error {
		resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(s.table),
			Key:            keyAttrs(pk, sk),
			ConsistentRead: aws.Bool(consistent),
		})
		if err != nil {
			return err
		}
		item = resp.Item
		return nil
	})
	if err != nil {
		return err
	}
	if len(item) == 0 {
		return ErrNotFound
	}
	if err := attributevalue.UnmarshalMap(item, out); err != nil {
		return kind.Wrap(kind.Internal, "unmarshal item", err)
	}
	return nil
}

// Delete removes the item at (pk, sk). Deleting a missing item is not an
// error.
func (s *Store) Delete(ctx context.Context, pk, sk string) error {
	return s.retry(ctx, func() error {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.table),
			Key:       keyAttrs(pk, sk),
		})
		return err
	})
}

// UpdateWithVersion persists item only while the stored version still
// equals expected; the written row carries expected+1. The caller reflects
// the bump on its in-memory copy after success.
func (s *Store) UpdateWithVersion(ctx context.Context, item interface{}, expected int64) error {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return kind.Wrap(kind.Internal, "marshal item", err)
	}
	av["version"] = &types.AttributeValueMemberN{Value: formatInt(expected + 1)}
	err = s.retry(ctx, func() error {
		_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName:           aws.String(s.table),
			Item:                av,
			ConditionExpression: aws.String("version = :expected"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":expected": &types.AttributeValueMemberN{Value: formatInt(expected)},
			},
		})
		return err
	})
	if isConditionFailed(err) {
		return ErrVersionConflict
	}
	return err
}

// RetryVersioned runs fn, retrying up to 3 times with exponential backoff
// when it loses the version check. fn must re-read the entity each attempt.
func RetryVersioned(ctx context.Context, fn func(ctx context.Context) error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 20 * time.Millisecond
	policy.MaxInterval = 500 * time.Millisecond

	var lastConflict error
	err := backoff.Retry(func() error {
		err := fn(ctx)
		switch {
		case err == nil:
			return nil
		case kind.Is(err, kind.ConflictVersion):
			lastConflict = err
			return err
		default:
			return backoff.Permanent(err)
		}
	}, backoff.WithContext(backoff.WithMaxRetries(policy, transientRetries), ctx))
	if err != nil && lastConflict != nil && kind.Is(err, kind.ConflictVersion) {
		return lastConflict
	}
	return err
}

// retry runs op, retrying transient store failures with jittered
// exponential backoff and wrapping persistent ones as
// dependency.unavailable. Conditional failures pass through untouched.
func (s *Store) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = transientInitial
	policy.MaxInterval = transientMaxDelay

	err := backoff.Retry(func() error {
		err := op()
		switch {
		case err == nil:
			return nil
		case isConditionFailed(err):
			return backoff.Permanent(err)
		case isTransient(err):
			return err
		default:
			return backoff.Permanent(err)
		}
	}, backoff.WithContext(backoff.WithMaxRetries(policy, transientRetries), ctx))
	if err == nil || isConditionFailed(err) {
		return err
	}
	var ke *kind.Error
	if errors.As(err, &ke) {
		return err
	}
	s.logger.Warn("store call failed", zap.String("table", s.table), zap.Error(err))
	return kind.Wrap(kind.DependencyDown, "store unavailable", err)
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var tc *types.TransactionCanceledException
	if errors.As(err, &tc) {
		for _, reason := range tc.CancellationReasons {
			if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
				return true
			}
		}
	}
	return false
}

func isTransient(err error) bool {
	var (
		throughput *types.ProvisionedThroughputExceededException
		limit      *types.RequestLimitExceeded
		internal   *types.InternalServerError
	)
	if errors.As(err, &throughput) || errors.As(err, &limit) || errors.As(err, &internal) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func keyAttrs(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
