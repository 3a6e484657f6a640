package pending

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/checkout-reconciler/internal/aws"
)

const (
	condNotExists = "attribute_not_exists(session_id)"
	condClaim     = "#s = :pending OR (#s = :materializing AND lease_until < :now)"
	condComplete  = "#s = :materializing"

	updateClaim    = "SET #s = :materializing, lease_until = :lease, updated_at = :ua, attempts = if_not_exists(attempts, :zero) + :inc"
	updateComplete = "SET #s = :done, orders_created = :oc, lines_failed = :lf, needs_review = :nr, note = :n, updated_at = :ua REMOVE lease_until"
)

// ErrStatusMismatch indicates a conditional status transition was rejected.
var ErrStatusMismatch = errors.New("status mismatch/conditional failed")

// Store encapsulates pending checkout operations against DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	ttlWindow time.Duration // how long a record is kept before DynamoDB TTL removes it
	nowFunc   func() time.Time
}

// NewStore returns a configured Store.
func NewStore(client aws.DynamoDBAPI, tableName string, ttlWindow time.Duration) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		ttlWindow: ttlWindow,
		nowFunc:   time.Now,
	}
}

// Create stores rec in PENDING state unless a record for the session exists.
// Returns (true, nil) when created and (false, nil) when the session was already known.
func (s *Store) Create(ctx context.Context, rec Record) (bool, error) {
	now := s.nowFunc().UTC()
	rec.Status = StatusPending
	rec.Attempts = 0
	rec.LeaseUntil = 0
	rec.CreatedAt = now
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(s.ttlWindow).Unix()

	item, err := attributevalue.MarshalMap(rec)
	if err != nil {
		return false, fmt.Errorf("marshal record: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString(condNotExists),
	})
	if err != nil {
		if isConditionFailed(err) {
			return false, nil
		}
		return false, fmt.Errorf("put item: %w", err)
	}
	return true, nil
}

// Get retrieves a record by session id. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, sessionID string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            key(sessionID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var rec Record
	if err := attributevalue.UnmarshalMap(out.Item, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal item: %w", err)
	}
	return &rec, nil
}

// Claim moves a session from PENDING to MATERIALIZING, or takes over a
// MATERIALIZING session whose lease has run out. Exactly one concurrent caller
// wins; the others get ErrStatusMismatch.
func (s *Store) Claim(ctx context.Context, sessionID string, lease time.Duration) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 key(sessionID),
		UpdateExpression:    awsString(updateClaim),
		ConditionExpression: awsString(condClaim),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending":       &types.AttributeValueMemberS{Value: StatusPending},
			":materializing": &types.AttributeValueMemberS{Value: StatusMaterializing},
			":now":           number(now.Unix()),
			":lease":         number(now.Add(lease).Unix()),
			":ua":            &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
			":zero":          number(0),
			":inc":           number(1),
		},
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item (claim): %w", err)
	}
	return nil
}

// Complete moves a session from MATERIALIZING to DONE and stores the summary.
func (s *Store) Complete(ctx context.Context, sessionID string, sum Summary) error {
	now := s.nowFunc().UTC()
	_, err := s.client.UpdateItem(ctx, &dyn.UpdateItemInput{
		TableName:           &s.tableName,
		Key:                 key(sessionID),
		UpdateExpression:    awsString(updateComplete),
		ConditionExpression: awsString(condComplete),
		ExpressionAttributeNames: map[string]string{
			"#s": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done":          &types.AttributeValueMemberS{Value: StatusDone},
			":materializing": &types.AttributeValueMemberS{Value: StatusMaterializing},
			":oc":            number(int64(sum.OrdersCreated)),
			":lf":            number(int64(sum.LinesFailed)),
			":nr":            &types.AttributeValueMemberBOOL{Value: sum.NeedsReview},
			":n":             &types.AttributeValueMemberS{Value: sum.Note},
			":ua":            &types.AttributeValueMemberS{Value: now.Format(time.RFC3339)},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	})
	if err != nil {
		if isConditionFailed(err) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item (complete): %w", err)
	}
	return nil
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		return true
	}
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException"
}

func key(sessionID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"session_id": &types.AttributeValueMemberS{Value: sessionID},
	}
}

func number(n int64) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(n, 10)}
}

func awsString(s string) *string { return &s }
func awsBool(b bool) *bool       { return &b }
