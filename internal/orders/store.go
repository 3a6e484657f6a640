package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/checkout-reconciler/internal/aws"
)

const (
	SessionIndex = "session_id-index"

	condOrderNotExists = "attribute_not_exists(order_id)"
	condStockEnough    = "attribute_exists(product_id) AND stock >= :q"
	condStockShort     = "attribute_exists(product_id) AND stock < :q"

	updateDecrement = "SET stock = stock - :q"
	updateClamp     = "SET stock = :zero"

	maxLineAttempts = 3
)

var (
	// ErrConflict means a line could not be settled within maxLineAttempts
	// because its product kept changing underneath the transaction.
	ErrConflict = errors.New("line write conflicted repeatedly")
)

// Store encapsulates operations on the orders and products tables.
type Store struct {
	client        aws.DynamoDBAPI
	tableName     string
	productsTable string
	nowFunc       func() time.Time
}

// NewStore creates a new orders Store.
func NewStore(client aws.DynamoDBAPI, tableName, productsTable string) *Store {
	return &Store{
		client:        client,
		tableName:     tableName,
		productsTable: productsTable,
		nowFunc:       time.Now,
	}
}

// MaterializeLine writes the order for one cart line and decrements the
// product's stock by its quantity, in one transaction. Stock never goes below
// zero: when it is short the order is still written and stock is set to 0.
// A line whose order already exists is skipped without touching stock.
func (s *Store) MaterializeLine(ctx context.Context, order Order) (LineResult, error) {
	if order.OrderID == "" {
		order.OrderID = OrderID(order.SessionID, order.LineIndex)
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = s.nowFunc().UTC()
	}
	res := LineResult{OrderID: order.OrderID}

	item, err := attributevalue.MarshalMap(order)
	if err != nil {
		return res, fmt.Errorf("marshal order: %w", err)
	}

	// DynamoDB rejects expression values the expressions do not reference.
	qty := map[string]types.AttributeValue{":q": number(int64(order.Quantities))}
	clamp := map[string]types.AttributeValue{":q": qty[":q"], ":zero": number(0)}

	for attempt := 1; attempt <= maxLineAttempts; attempt++ {
		reasons, err := s.transact(ctx, item, order, updateDecrement, condStockEnough, qty)
		if err == nil {
			res.Created = true
			return res, nil
		}
		if reasons == nil {
			return res, err
		}
		if reasons.orderExists {
			return res, nil
		}
		if !reasons.stockFailed {
			// conflict with another transaction on the same items
			continue
		}
		if !hasStock(reasons.product) {
			res.ProductMissing = true
			created, err := s.putOrder(ctx, item)
			res.Created = created
			return res, err
		}

		reasons, err = s.transact(ctx, item, order, updateClamp, condStockShort, clamp)
		if err == nil {
			res.Created = true
			res.Clamped = true
			return res, nil
		}
		if reasons == nil {
			return res, err
		}
		if reasons.orderExists {
			return res, nil
		}
		// stock was replenished or the product vanished in between; start over
	}
	return res, fmt.Errorf("order %s: %w", order.OrderID, ErrConflict)
}

type cancelReasons struct {
	orderExists bool
	stockFailed bool
	product     map[string]types.AttributeValue
}

// transact runs the order put + stock update pair. On cancellation it returns
// the decoded reasons alongside the error; for any other failure reasons is nil.
func (s *Store) transact(ctx context.Context, item map[string]types.AttributeValue, order Order, updateExpr, cond string, values map[string]types.AttributeValue) (*cancelReasons, error) {
	_, err := s.client.TransactWriteItems(ctx, &dyn.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           &s.tableName,
					Item:                item,
					ConditionExpression: awsString(condOrderNotExists),
				},
			},
			{
				Update: &types.Update{
					TableName: &s.productsTable,
					Key: map[string]types.AttributeValue{
						"product_id": &types.AttributeValueMemberS{Value: order.ProductID},
					},
					UpdateExpression:    awsString(updateExpr),
					ConditionExpression: awsString(cond),
					ExpressionAttributeValues:           values,
					ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
				},
			},
		},
	})
	if err == nil {
		return nil, nil
	}
	var tce *types.TransactionCanceledException
	if !errors.As(err, &tce) {
		return nil, fmt.Errorf("transact write: %w", err)
	}
	r := &cancelReasons{}
	for i, reason := range tce.CancellationReasons {
		if reason.Code == nil || *reason.Code != "ConditionalCheckFailed" {
			continue
		}
		switch i {
		case 0:
			r.orderExists = true
		case 1:
			r.stockFailed = true
			r.product = reason.Item
		}
	}
	return r, fmt.Errorf("transaction canceled: %w", err)
}

// putOrder writes an order without touching stock.
func (s *Store) putOrder(ctx context.Context, item map[string]types.AttributeValue) (bool, error) {
	_, err := s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(condOrderNotExists),
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("put order: %w", err)
	}
	return true, nil
}

// ListBySession returns the orders materialized for a session, in line order.
func (s *Store) ListBySession(ctx context.Context, sessionID string) ([]Order, error) {
	var out []Order
	var startKey map[string]types.AttributeValue
	for {
		page, err := s.client.Query(ctx, &dyn.QueryInput{
			TableName:              &s.tableName,
			IndexName:              awsString(SessionIndex),
			KeyConditionExpression: awsString("session_id = :sid"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":sid": &types.AttributeValueMemberS{Value: sessionID},
			},
			ExclusiveStartKey: startKey,
		})
		if err != nil {
			return nil, fmt.Errorf("query orders: %w", err)
		}
		var batch []Order
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal orders: %w", err)
		}
		out = append(out, batch...)
		if len(page.LastEvaluatedKey) == 0 {
			break
		}
		startKey = page.LastEvaluatedKey
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LineIndex < out[j].LineIndex })
	return out, nil
}

func hasStock(product map[string]types.AttributeValue) bool {
	_, ok := product["stock"].(*types.AttributeValueMemberN)
	return ok
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException"
}

func number(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func awsString(s string) *string { return &s }
