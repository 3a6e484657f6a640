package pending

import (
	"time"

	"github.com/imrishuroy/checkout-reconciler/internal/cart"
)

// Status values for pending checkout records.
//
//	PENDING -> MATERIALIZING -> DONE
const (
	StatusPending       = "PENDING"
	StatusMaterializing = "MATERIALIZING"
	StatusDone          = "DONE"
)

// Record is the shape persisted in the pending checkouts DynamoDB table.
type Record struct {
	SessionID     string      `dynamodbav:"session_id"` // PK
	UserID        string      `dynamodbav:"user_id,omitempty"`
	CustomerID    string      `dynamodbav:"customer_id,omitempty"`
	Cart          []cart.Line `dynamodbav:"cart"`
	Status        string      `dynamodbav:"status"`
	Attempts      int         `dynamodbav:"attempts,omitempty"`
	LeaseUntil    int64       `dynamodbav:"lease_until,omitempty"` // epoch seconds
	OrdersCreated int         `dynamodbav:"orders_created,omitempty"`
	LinesFailed   int         `dynamodbav:"lines_failed,omitempty"`
	NeedsReview   bool        `dynamodbav:"needs_review,omitempty"`
	Note          string      `dynamodbav:"note,omitempty"`
	CreatedAt     time.Time   `dynamodbav:"created_at"`
	UpdatedAt     time.Time   `dynamodbav:"updated_at"`
	ExpiresAt     int64       `dynamodbav:"expires_at"` // TTL epoch seconds
}

// Summary is what a finished materialization records on the session.
type Summary struct {
	OrdersCreated int
	LinesFailed   int
	NeedsReview   bool
	Note          string
}
