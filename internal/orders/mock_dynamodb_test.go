package orders

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

// mockDynamo stores items per table: table -> pk -> item. It understands the
// condition and update expressions used by Store.
type mockDynamo struct {
	mu             sync.Mutex
	tables         map[string]map[string]map[string]types.AttributeValue
	transactCalls  int
	beforeTransact func(call int) // runs under the lock before each transaction
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{
		tables: map[string]map[string]map[string]types.AttributeValue{},
	}
}

func (m *mockDynamo) ensureTable(tbl string) map[string]map[string]types.AttributeValue {
	if _, ok := m.tables[tbl]; !ok {
		m.tables[tbl] = map[string]map[string]types.AttributeValue{}
	}
	return m.tables[tbl]
}

func pkOf(item map[string]types.AttributeValue) (string, error) {
	for _, name := range []string{"order_id", "product_id"} {
		if v, ok := item[name].(*types.AttributeValueMemberS); ok {
			return v.Value, nil
		}
	}
	return "", errors.New("no primary key")
}

func stockOf(item map[string]types.AttributeValue) (int64, bool) {
	v, ok := item["stock"].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	n, _ := strconv.ParseInt(v.Value, 10, 64)
	return n, true
}

func (m *mockDynamo) setStock(product string, stock int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ensureTable("products")[product] = map[string]types.AttributeValue{
		"product_id": &types.AttributeValueMemberS{Value: product},
		"stock":      &types.AttributeValueMemberN{Value: strconv.FormatInt(stock, 10)},
	}
}

func (m *mockDynamo) stock(product string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, _ := stockOf(m.ensureTable("products")[product])
	return n
}

func (m *mockDynamo) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ensureTable("orders"))
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkExpressions(params.ExpressionAttributeValues, params.ExpressionAttributeNames, params.ConditionExpression); err != nil {
		return nil, err
	}
	tbl := m.ensureTable(*params.TableName)
	pk, err := pkOf(params.Item)
	if err != nil {
		return nil, err
	}
	if params.ConditionExpression != nil && *params.ConditionExpression == condOrderNotExists {
		if _, exists := tbl[pk]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	tbl[pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pk, err := pkOf(params.Key)
	if err != nil {
		return nil, err
	}
	return &dyn.GetItemOutput{Item: m.ensureTable(*params.TableName)[pk]}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	return nil, errors.New("not implemented")
}

func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkExpressions(params.ExpressionAttributeValues, params.ExpressionAttributeNames, params.KeyConditionExpression, params.FilterExpression); err != nil {
		return nil, err
	}
	if params.IndexName == nil || *params.IndexName != SessionIndex {
		return nil, errors.New("unexpected index")
	}
	sid := params.ExpressionAttributeValues[":sid"].(*types.AttributeValueMemberS).Value
	var items []map[string]types.AttributeValue
	for _, item := range m.ensureTable(*params.TableName) {
		if v, ok := item["session_id"].(*types.AttributeValueMemberS); ok && v.Value == sid {
			items = append(items, item)
		}
	}
	return &dyn.QueryOutput{Items: items, Count: int32(len(items))}, nil
}

func (m *mockDynamo) TransactWriteItems(ctx context.Context, params *dyn.TransactWriteItemsInput, optFns ...func(*dyn.Options)) (*dyn.TransactWriteItemsOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactCalls++
	if m.beforeTransact != nil {
		m.beforeTransact(m.transactCalls)
	}
	for _, it := range params.TransactItems {
		var err error
		switch {
		case it.Put != nil:
			err = checkExpressions(it.Put.ExpressionAttributeValues, it.Put.ExpressionAttributeNames, it.Put.ConditionExpression)
		case it.Update != nil:
			err = checkExpressions(it.Update.ExpressionAttributeValues, it.Update.ExpressionAttributeNames, it.Update.UpdateExpression, it.Update.ConditionExpression)
		}
		if err != nil {
			return nil, err
		}
	}

	reasons := make([]types.CancellationReason, len(params.TransactItems))
	failed := false
	for i, it := range params.TransactItems {
		reasons[i] = types.CancellationReason{Code: awsString("None")}
		switch {
		case it.Put != nil:
			pk, err := pkOf(it.Put.Item)
			if err != nil {
				return nil, err
			}
			if _, exists := m.ensureTable(*it.Put.TableName)[pk]; exists {
				reasons[i].Code = awsString("ConditionalCheckFailed")
				failed = true
			}
		case it.Update != nil:
			pk, _ := pkOf(it.Update.Key)
			current := m.ensureTable(*it.Update.TableName)[pk]
			q, _ := strconv.ParseInt(it.Update.ExpressionAttributeValues[":q"].(*types.AttributeValueMemberN).Value, 10, 64)
			stock, ok := stockOf(current)
			var pass bool
			switch *it.Update.ConditionExpression {
			case condStockEnough:
				pass = current != nil && ok && stock >= q
			case condStockShort:
				pass = current != nil && ok && stock < q
			default:
				return nil, errors.New("unsupported condition")
			}
			if !pass {
				reasons[i].Code = awsString("ConditionalCheckFailed")
				reasons[i].Item = current
				failed = true
			}
		}
	}
	if failed {
		return nil, &types.TransactionCanceledException{
			Message:             awsString("Transaction cancelled"),
			CancellationReasons: reasons,
		}
	}

	for _, it := range params.TransactItems {
		switch {
		case it.Put != nil:
			pk, _ := pkOf(it.Put.Item)
			m.ensureTable(*it.Put.TableName)[pk] = it.Put.Item
		case it.Update != nil:
			pk, _ := pkOf(it.Update.Key)
			tbl := m.ensureTable(*it.Update.TableName)
			stock, _ := stockOf(tbl[pk])
			q, _ := strconv.ParseInt(it.Update.ExpressionAttributeValues[":q"].(*types.AttributeValueMemberN).Value, 10, 64)
			next := int64(0)
			if *it.Update.UpdateExpression == updateDecrement {
				next = stock - q
			}
			updated := map[string]types.AttributeValue{}
			for k, v := range tbl[pk] {
				updated[k] = v
			}
			updated["stock"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(next, 10)}
			tbl[pk] = updated
		}
	}
	return &dyn.TransactWriteItemsOutput{}, nil
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
