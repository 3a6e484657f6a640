package pending

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
)

// mockDynamo is a small in-memory table that understands the condition
// expressions used by Store.
type mockDynamo struct {
	mu          sync.Mutex
	table       map[string]map[string]types.AttributeValue
	putCalls    int
	updateCalls int
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{table: map[string]map[string]types.AttributeValue{}}
}

func sessionKey(item map[string]types.AttributeValue) (string, error) {
	attr, ok := item["session_id"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("missing key")
	}
	return attr.Value, nil
}

func str(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func num(item map[string]types.AttributeValue, name string) int64 {
	if v, ok := item[name].(*types.AttributeValueMemberN); ok {
		n, _ := strconv.ParseInt(v.Value, 10, 64)
		return n
	}
	return 0
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if err := checkExpressions(params.ExpressionAttributeValues, params.ExpressionAttributeNames, params.ConditionExpression); err != nil {
		return nil, err
	}
	k, err := sessionKey(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == condNotExists {
		if _, ok := m.table[k]; ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.table[k] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, err := sessionKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, ok := m.table[k]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updateCalls++
	if err := checkExpressions(params.ExpressionAttributeValues, params.ExpressionAttributeNames, params.UpdateExpression, params.ConditionExpression); err != nil {
		return nil, err
	}
	k, err := sessionKey(params.Key)
	if err != nil {
		return nil, err
	}
	item, exists := m.table[k]
	vals := params.ExpressionAttributeValues
	status := str(item, "status")

	switch *params.UpdateExpression {
	case updateClaim:
		now := num(vals, ":now")
		ok := exists && (status == StatusPending ||
			(status == StatusMaterializing && num(item, "lease_until") < now))
		if !ok {
			return nil, &types.ConditionalCheckFailedException{}
		}
		item["status"] = vals[":materializing"]
		item["lease_until"] = vals[":lease"]
		item["updated_at"] = vals[":ua"]
		item["attempts"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(num(item, "attempts")+1, 10)}
	case updateComplete:
		if !exists || status != StatusMaterializing {
			return nil, &types.ConditionalCheckFailedException{}
		}
		item["status"] = vals[":done"]
		item["orders_created"] = vals[":oc"]
		item["lines_failed"] = vals[":lf"]
		item["needs_review"] = vals[":nr"]
		item["note"] = vals[":n"]
		item["updated_at"] = vals[":ua"]
		delete(item, "lease_until")
	default:
		return nil, errors.New("unsupported update expression")
	}
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	return nil, errors.New("not implemented")
}

// checkExpressions rejects requests whose expression values or names are not
// referenced by any of the given expressions, the way DynamoDB does.
func checkExpressions(values map[string]types.AttributeValue, names map[string]string, exprs ...*string) error {
	var joined []string
	for _, e := range exprs {
		if e != nil {
			joined = append(joined, *e)
		}
	}
	all := strings.Join(joined, " ")
	var unusedValues, unusedNames []string
	for k := range values {
		if !regexp.MustCompile(regexp.QuoteMeta(k) + `\b`).MatchString(all) {
			unusedValues = append(unusedValues, k)
		}
	}
	for k := range names {
		if !regexp.MustCompile(regexp.QuoteMeta(k) + `\b`).MatchString(all) {
			unusedNames = append(unusedNames, k)
		}
	}
	switch {
	case len(unusedValues) > 0:
		sort.Strings(unusedValues)
		return &smithy.GenericAPIError{
			Code:    "ValidationException",
			Message: fmt.Sprintf("Value provided in ExpressionAttributeValues unused in expressions: keys: %v", unusedValues),
		}
	case len(unusedNames) > 0:
		sort.Strings(unusedNames)
		return &smithy.GenericAPIError{
			Code:    "ValidationException",
			Message: fmt.Sprintf("Value provided in ExpressionAttributeNames unused in expressions: keys: %v", unusedNames),
		}
	}
	return nil
}
