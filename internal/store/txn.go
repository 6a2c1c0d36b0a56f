package store

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/questline/core/internal/pkg/kind"
)

// MaxTxnItems is the DynamoDB transaction batch ceiling.
const MaxTxnItems = 25

// Txn accumulates writes committed atomically by Run. A failed condition
// anywhere cancels the whole batch and surfaces as ErrConditionFailed.
type Txn struct {
	s     *Store
	items []types.TransactWriteItem
	err   error
}

// Txn starts an empty transaction against the store's table.
func (s *Store) Txn() *Txn {
	return &Txn{s: s}
}

// Len returns the number of accumulated writes.
func (t *Txn) Len() int { return len(t.items) }

// Put adds an unconditional write.
func (t *Txn) Put(item interface{}) *Txn {
	return t.put(item, "", nil)
}

// PutIfAbsent adds a write conditioned on no row existing under the key.
func (t *Txn) PutIfAbsent(item interface{}) *Txn {
	return t.put(item, "attribute_not_exists(PK)", nil)
}

// PutIfVersion adds a write conditioned on the stored version equalling
// expected; the written row carries expected+1.
func (t *Txn) PutIfVersion(item interface{}, expected int64) *Txn {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		t.fail(kind.Wrap(kind.Internal, "marshal txn item", err))
		return t
	}
	av["version"] = &types.AttributeValueMemberN{Value: formatInt(expected + 1)}
	t.items = append(t.items, types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(t.s.table),
			Item:                av,
			ConditionExpression: aws.String("version = :expected"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":expected": &types.AttributeValueMemberN{Value: formatInt(expected)},
			},
		},
	})
	return t
}

// Delete adds an unconditional delete.
func (t *Txn) Delete(pk, sk string) *Txn {
	t.items = append(t.items, types.TransactWriteItem{
		Delete: &types.Delete{
			TableName: aws.String(t.s.table),
			Key:       keyAttrs(pk, sk),
		},
	})
	return t
}

// DeleteIfExists adds a delete conditioned on the row being present.
func (t *Txn) DeleteIfExists(pk, sk string) *Txn {
	t.items = append(t.items, types.TransactWriteItem{
		Delete: &types.Delete{
			TableName:           aws.String(t.s.table),
			Key:                 keyAttrs(pk, sk),
			ConditionExpression: aws.String("attribute_exists(PK)"),
		},
	})
	return t
}

// CheckExists conditions the transaction on (pk, sk) being present.
func (t *Txn) CheckExists(pk, sk string) *Txn {
	t.items = append(t.items, types.TransactWriteItem{
		ConditionCheck: &types.ConditionCheck{
			TableName:           aws.String(t.s.table),
			Key:                 keyAttrs(pk, sk),
			ConditionExpression: aws.String("attribute_exists(PK)"),
		},
	})
	return t
}

// CheckAbsent conditions the transaction on (pk, sk) being absent.
func (t *Txn) CheckAbsent(pk, sk string) *Txn {
	t.items = append(t.items, types.TransactWriteItem{
		ConditionCheck: &types.ConditionCheck{
			TableName:           aws.String(t.s.table),
			Key:                 keyAttrs(pk, sk),
			ConditionExpression: aws.String("attribute_not_exists(PK)"),
		},
	})
	return t
}

func (t *Txn) put(item interface{}, condition string, values map[string]types.AttributeValue) *Txn {
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		t.fail(kind.Wrap(kind.Internal, "marshal txn item", err))
		return t
	}
	putItem := &types.Put{
		TableName: aws.String(t.s.table),
		Item:      av,
	}
	if condition != "" {
		putItem.ConditionExpression = aws.String(condition)
		putItem.ExpressionAttributeValues = values
	}
	t.items = append(t.items, types.TransactWriteItem{Put: putItem})
	return t
}

func (t *Txn) fail(err error) {
	if t.err == nil {
		t.err = err
	}
}

// Run commits the accumulated writes atomically.
func (t *Txn) Run(ctx context.Context) error {
	if t.err != nil {
		return t.err
	}
	if len(t.items) == 0 {
		return nil
	}
	if len(t.items) > MaxTxnItems {
		return kind.Newf(kind.Internal, "transaction of %d items exceeds the %d-item limit", len(t.items), MaxTxnItems)
	}
	err := t.s.retry(ctx, func() error {
		_, err := t.s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
			TransactItems: t.items,
		})
		return err
	})
	if isConditionFailed(err) {
		return ErrConditionFailed
	}
	return err
}
