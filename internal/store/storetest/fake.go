// Package storetest provides an in-memory stand-in for the DynamoDB client
// so data-path behavior is testable without the network. It understands
// exactly the expression grammar the store emits; anything else is an error
// so a drifting expression fails loudly in tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/questline/core/internal/models"
)

// Fake is a thread-safe in-memory DynamoDB. One Fake may back several
// tables.
type Fake struct {
	mu     sync.Mutex
	tables map[string]map[string]map[string]types.AttributeValue
}

func New() *Fake {
	return &Fake{tables: make(map[string]map[string]map[string]types.AttributeValue)}
}

func itemKey(item map[string]types.AttributeValue) (string, error) {
	pk, ok := item["PK"].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("storetest: item missing string PK")
	}
	sk, ok := item["SK"].(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("storetest: item missing string SK")
	}
	return pk.Value + "\x00" + sk.Value, nil
}

func (f *Fake) table(name string) map[string]map[string]types.AttributeValue {
	t, ok := f.tables[name]
	if !ok {
		t = make(map[string]map[string]types.AttributeValue)
		f.tables[name] = t
	}
	return t
}

// Len reports the number of items in a table.
func (f *Fake) Len(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.table(table))
}

func copyItem(item map[string]types.AttributeValue) map[string]types.AttributeValue {
	out := make(map[string]types.AttributeValue, len(item))
	for k, v := range item {
		out[k] = v
	}
	return out
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

// checkCondition evaluates the condition grammar the store uses. existing
// is nil when no row is stored under the key.
func checkCondition(expr string, existing map[string]types.AttributeValue, values map[string]types.AttributeValue) error {
	switch expr {
	case "":
		return nil
	case "attribute_not_exists(PK)":
		if existing != nil {
			return conditionFailed()
		}
		return nil
	case "attribute_exists(PK)":
		if existing == nil {
			return conditionFailed()
		}
		return nil
	case "version = :expected":
		if existing == nil {
			return conditionFailed()
		}
		stored, ok := existing["version"].(*types.AttributeValueMemberN)
		expected, ok2 := values[":expected"].(*types.AttributeValueMemberN)
		if !ok || !ok2 || stored.Value != expected.Value {
			return conditionFailed()
		}
		return nil
	}
	return fmt.Errorf("storetest: unsupported condition %q", expr)
}

func (f *Fake) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, err := itemKey(params.Item)
	if err != nil {
		return nil, err
	}
	t := f.table(aws.ToString(params.TableName))
	if err := checkCondition(aws.ToString(params.ConditionExpression), t[key], params.ExpressionAttributeValues); err != nil {
		return nil, err
	}
	t[key] = copyItem(params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

func (f *Fake) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, err := itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := f.table(aws.ToString(params.TableName))[key]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: copyItem(item)}, nil
}

func (f *Fake) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key, err := itemKey(params.Key)
	if err != nil {
		return nil, err
	}
	t := f.table(aws.ToString(params.TableName))
	if expr := aws.ToString(params.ConditionExpression); expr != "" {
		if err := checkCondition(expr, t[key], params.ExpressionAttributeValues); err != nil {
			return nil, err
		}
	}
	delete(t, key)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (f *Fake) BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for table, requests := range params.RequestItems {
		t := f.table(table)
		for _, req := range requests {
			switch {
			case req.DeleteRequest != nil:
				key, err := itemKey(req.DeleteRequest.Key)
				if err != nil {
					return nil, err
				}
				delete(t, key)
			case req.PutRequest != nil:
				key, err := itemKey(req.PutRequest.Item)
				if err != nil {
					return nil, err
				}
				t[key] = copyItem(req.PutRequest.Item)
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (f *Fake) TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	// Validate every condition before mutating anything.
	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, item := range params.TransactItems {
		var (
			expr     string
			key      string
			values   map[string]types.AttributeValue
			table    string
			checkErr error
		)
		switch {
		case item.Put != nil:
			expr = aws.ToString(item.Put.ConditionExpression)
			values = item.Put.ExpressionAttributeValues
			table = aws.ToString(item.Put.TableName)
			key, checkErr = itemKey(item.Put.Item)
		case item.Delete != nil:
			expr = aws.ToString(item.Delete.ConditionExpression)
			values = item.Delete.ExpressionAttributeValues
			table = aws.ToString(item.Delete.TableName)
			key, checkErr = itemKey(item.Delete.Key)
		case item.ConditionCheck != nil:
			expr = aws.ToString(item.ConditionCheck.ConditionExpression)
			values = item.ConditionCheck.ExpressionAttributeValues
			table = aws.ToString(item.ConditionCheck.TableName)
			key, checkErr = itemKey(item.ConditionCheck.Key)
		default:
			checkErr = fmt.Errorf("storetest: empty transact item")
		}
		if checkErr != nil {
			return nil, checkErr
		}
		if err := checkCondition(expr, f.table(table)[key], values); err != nil {
			failed = true
			reasons[i] = types.CancellationReason{Code: aws.String("ConditionalCheckFailed")}
		} else {
			reasons[i] = types.CancellationReason{Code: aws.String("None")}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             aws.String("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, item := range params.TransactItems {
		switch {
		case item.Put != nil:
			key, _ := itemKey(item.Put.Item)
			f.table(aws.ToString(item.Put.TableName))[key] = copyItem(item.Put.Item)
		case item.Delete != nil:
			key, _ := itemKey(item.Delete.Key)
			delete(f.table(aws.ToString(item.Delete.TableName)), key)
		}
	}
	return &dynamodb.TransactWriteItemsOutput{}, nil
}

func (f *Fake) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	pkAttr, skAttr := "PK", "SK"
	if index := aws.ToString(params.IndexName); index != "" {
		var ok bool
		pkAttr, skAttr, ok = models.IndexKeyAttrs(index)
		if !ok {
			return nil, fmt.Errorf("storetest: unknown index %q", index)
		}
	}

	cond, err := parseKeyCondition(aws.ToString(params.KeyConditionExpression), params.ExpressionAttributeNames, pkAttr, skAttr)
	if err != nil {
		return nil, err
	}

	var matched []map[string]types.AttributeValue
	for _, item := range f.table(aws.ToString(params.TableName)) {
		if cond.matches(item, params.ExpressionAttributeValues) {
			matched = append(matched, copyItem(item))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return stringAttr(matched[i], skAttr) < stringAttr(matched[j], skAttr)
	})
	forward := params.ScanIndexForward == nil || *params.ScanIndexForward
	if !forward {
		for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
			matched[i], matched[j] = matched[j], matched[i]
		}
	}

	// Resume after the exclusive start key, matching on the sort attribute.
	if len(params.ExclusiveStartKey) > 0 {
		startSK := stringAttr(params.ExclusiveStartKey, skAttr)
		idx := 0
		for i, item := range matched {
			if stringAttr(item, skAttr) == startSK {
				idx = i + 1
				break
			}
		}
		matched = matched[idx:]
	}

	out := &dynamodb.QueryOutput{}
	limit := len(matched)
	if params.Limit != nil && int(*params.Limit) < limit {
		limit = int(*params.Limit)
	}
	out.Items = matched[:limit]
	out.Count = int32(limit)
	if limit < len(matched) && limit > 0 {
		last := out.Items[limit-1]
		lek := map[string]types.AttributeValue{
			"PK": last["PK"],
			"SK": last["SK"],
		}
		if pkAttr != "PK" {
			lek[pkAttr] = last[pkAttr]
			lek[skAttr] = last[skAttr]
		}
		out.LastEvaluatedKey = lek
	}
	return out, nil
}

type keyCondition struct {
	pkAttr, skAttr string
	pkValue        string // placeholder, e.g. ":pk"
	skOp           string // "", "begins_with", "between"
	skValue        string
	skUpper        string
}

func (c keyCondition) matches(item map[string]types.AttributeValue, values map[string]types.AttributeValue) bool {
	if stringAttr(item, c.pkAttr) != stringValue(values, c.pkValue) {
		return false
	}
	sk := stringAttr(item, c.skAttr)
	switch c.skOp {
	case "":
		// Index queries without a sort condition still require the item
		// to project into the index.
		if c.pkAttr != "PK" {
			return sk != ""
		}
		return true
	case "begins_with":
		return strings.HasPrefix(sk, stringValue(values, c.skValue))
	case "between":
		return sk >= stringValue(values, c.skValue) && sk <= stringValue(values, c.skUpper)
	}
	return false
}

// parseKeyCondition understands the fixed grammar the store emits:
//
//	<pk> = :pk
//	<pk> = :pk AND begins_with(<sk>, :sk)
//	<pk> = :pk AND <sk> BETWEEN :from AND :to
//
// where <pk>/<sk> are literal attribute names or #-placeholders.
func parseKeyCondition(expr string, names map[string]string, pkAttr, skAttr string) (keyCondition, error) {
	resolve := func(name string) string {
		if strings.HasPrefix(name, "#") {
			if resolved, ok := names[name]; ok {
				return resolved
			}
		}
		return name
	}

	cond := keyCondition{pkAttr: pkAttr, skAttr: skAttr}
	parts := strings.SplitN(expr, " AND ", 2)

	eq := strings.SplitN(strings.TrimSpace(parts[0]), " = ", 2)
	if len(eq) != 2 {
		return cond, fmt.Errorf("storetest: unsupported key condition %q", expr)
	}
	cond.pkAttr = resolve(strings.TrimSpace(eq[0]))
	cond.pkValue = strings.TrimSpace(eq[1])

	if len(parts) == 1 {
		return cond, nil
	}
	rest := strings.TrimSpace(parts[1])
	switch {
	case strings.HasPrefix(rest, "begins_with("):
		inner := strings.TrimSuffix(strings.TrimPrefix(rest, "begins_with("), ")")
		args := strings.SplitN(inner, ",", 2)
		if len(args) != 2 {
			return cond, fmt.Errorf("storetest: unsupported key condition %q", expr)
		}
		cond.skAttr = resolve(strings.TrimSpace(args[0]))
		cond.skOp = "begins_with"
		cond.skValue = strings.TrimSpace(args[1])
	case strings.Contains(rest, " BETWEEN "):
		segments := strings.SplitN(rest, " BETWEEN ", 2)
		bounds := strings.SplitN(segments[1], " AND ", 2)
		if len(bounds) != 2 {
			return cond, fmt.Errorf("storetest: unsupported key condition %q", expr)
		}
		cond.skAttr = resolve(strings.TrimSpace(segments[0]))
		cond.skOp = "between"
		cond.skValue = strings.TrimSpace(bounds[0])
		cond.skUpper = strings.TrimSpace(bounds[1])
	default:
		return cond, fmt.Errorf("storetest: unsupported key condition %q", expr)
	}
	return cond, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if sv, ok := item[name].(*types.AttributeValueMemberS); ok {
		return sv.Value
	}
	return ""
}

func stringValue(values map[string]types.AttributeValue, placeholder string) string {
	if sv, ok := values[placeholder].(*types.AttributeValueMemberS); ok {
		return sv.Value
	}
	return ""
}

// NumberAttr reads a numeric attribute off a stored raw item; test helper.
func NumberAttr(item map[string]types.AttributeValue, name string) (int64, bool) {
	nv, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseInt(nv.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
