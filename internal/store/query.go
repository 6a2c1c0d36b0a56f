package store

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/questline/core/internal/models"
	"github.com/questline/core/internal/pkg/kind"
)

const (
	// DefaultLimit applies when the caller does not bound the page.
	DefaultLimit = 25
	// MaxLimit caps any requested page size.
	MaxLimit = 100
)

// Page bounds one query. Cursor is the opaque-encoded last evaluated key of
// the previous page; empty means start from the top.
type Page struct {
	Limit      int
	Cursor     string
	Descending bool
	Consistent bool
}

func (p Page) limit() int32 {
	switch {
	case p.Limit <= 0:
		return DefaultLimit
	case p.Limit > MaxLimit:
		return MaxLimit
	}
	return int32(p.Limit)
}

// Result carries the continuation state of one page.
type Result struct {
	Cursor  string
	HasMore bool
}

// QueryPartition lists items under pk whose sort key begins with skPrefix.
// An empty skPrefix lists the whole partition.
func QueryPartition[T any](ctx context.Context, s *Store, pk, skPrefix string, page Page) ([]T, Result, error) {
	in := &dynamodb.QueryInput{
		TableName: aws.String(s.table),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: pk},
		},
	}
	if skPrefix == "" {
		in.KeyConditionExpression = aws.String("PK = :pk")
	} else {
		in.KeyConditionExpression = aws.String("PK = :pk AND begins_with(SK, :sk)")
		in.ExpressionAttributeValues[":sk"] = &types.AttributeValueMemberS{Value: skPrefix}
	}
	return runQuery[T](ctx, s, in, page)
}

// QueryRange lists items under pk with sort keys in [skFrom, skTo].
func QueryRange[T any](ctx context.Context, s *Store, pk, skFrom, skTo string, page Page) ([]T, Result, error) {
	in := &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("PK = :pk AND SK BETWEEN :from AND :to"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":   &types.AttributeValueMemberS{Value: pk},
			":from": &types.AttributeValueMemberS{Value: skFrom},
			":to":   &types.AttributeValueMemberS{Value: skTo},
		},
	}
	return runQuery[T](ctx, s, in, page)
}

// QueryIndex lists items from the named GSI partition, optionally filtered
// by a sort-key prefix.
func QueryIndex[T any](ctx context.Context, s *Store, index, partition, sortPrefix string, page Page) ([]T, Result, error) {
	pkAttr, skAttr, ok := models.IndexKeyAttrs(index)
	if !ok {
		return nil, Result{}, kind.Newf(kind.Internal, "unknown index %q", index)
	}
	in := &dynamodb.QueryInput{
		TableName: aws.String(s.table),
		IndexName: aws.String(index),
		ExpressionAttributeNames: map[string]string{
			"#pk": pkAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: partition},
		},
	}
	if sortPrefix == "" {
		in.KeyConditionExpression = aws.String("#pk = :pk")
	} else {
		in.KeyConditionExpression = aws.String("#pk = :pk AND begins_with(#sk, :sk)")
		in.ExpressionAttributeNames["#sk"] = skAttr
		in.ExpressionAttributeValues[":sk"] = &types.AttributeValueMemberS{Value: sortPrefix}
	}
	// GSI reads are always eventually consistent.
	page.Consistent = false
	return runQuery[T](ctx, s, in, page)
}

func runQuery[T any](ctx context.Context, s *Store, in *dynamodb.QueryInput, page Page) ([]T, Result, error) {
	in.Limit = aws.Int32(page.limit())
	in.ScanIndexForward = aws.Bool(!page.Descending)
	if page.Consistent {
		in.ConsistentRead = aws.Bool(true)
	}
	if page.Cursor != "" {
		start, err := decodeCursor(page.Cursor)
		if err != nil {
			return nil, Result{}, err
		}
		in.ExclusiveStartKey = start
	}

	var out *dynamodb.QueryOutput
	err := s.retry(ctx, func() error {
		resp, err := s.client.Query(ctx, in)
		if err != nil {
			return err
		}
		out = resp
		return nil
	})
	if err != nil {
		return nil, Result{}, err
	}

	items := make([]T, 0, len(out.Items))
	for _, raw := range out.Items {
		var item T
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			return nil, Result{}, kind.Wrap(kind.Internal, "unmarshal query item", err)
		}
		items = append(items, item)
	}

	res := Result{}
	if len(out.LastEvaluatedKey) > 0 {
		cursor, err := encodeCursor(out.LastEvaluatedKey)
		if err != nil {
			return nil, Result{}, err
		}
		res.Cursor = cursor
		res.HasMore = true
	}
	return items, res, nil
}

// Cursors are base64(JSON) of the string key attributes of the last
// evaluated key. Key attributes are always strings in this keyspace.
func encodeCursor(lek map[string]types.AttributeValue) (string, error) {
	flat := make(map[string]string, len(lek))
	for name, av := range lek {
		sv, ok := av.(*types.AttributeValueMemberS)
		if !ok {
			return "", kind.Newf(kind.Internal, "non-string key attribute %q in cursor", name)
		}
		flat[name] = sv.Value
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return "", kind.Wrap(kind.Internal, "encode cursor", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, kind.New(kind.ValidationFailed, "malformed cursor")
	}
	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, kind.New(kind.ValidationFailed, "malformed cursor")
	}
	lek := make(map[string]types.AttributeValue, len(flat))
	for name, value := range flat {
		lek[name] = &types.AttributeValueMemberS{Value: value}
	}
	return lek, nil
}
