package orders

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/checkout-reconciler/internal/payments"
)

// Order represents the item stored in the Orders DynamoDB table. One order is
// created per cart line of a paid checkout session.
type Order struct {
	OrderID    string            `dynamodbav:"order_id" json:"order_id"`     // PK
	SessionID  string            `dynamodbav:"session_id" json:"session_id"` // GSI session_id-index
	LineIndex  int               `dynamodbav:"line_index" json:"line_index"`
	ProductID  string            `dynamodbav:"product_id" json:"product_id"`
	UserID     string            `dynamodbav:"user_id" json:"user_id"`
	Size       string            `dynamodbav:"size,omitempty" json:"size,omitempty"`
	Color      string            `dynamodbav:"color,omitempty" json:"color,omitempty"`
	Quantities int               `dynamodbav:"quantities" json:"quantities"`
	Address    *payments.Address `dynamodbav:"address,omitempty" json:"address,omitempty"`
	Review     bool              `dynamodbav:"review" json:"review"`
	CreatedAt  time.Time         `dynamodbav:"created_at" json:"created_at"`
}

// LineResult reports what happened to a single cart line.
type LineResult struct {
	OrderID string
	// Created is false when the order already existed from an earlier run.
	Created bool
	// Clamped is set when stock was short and floored at zero.
	Clamped bool
	// ProductMissing is set when no product item exists; the order is still written.
	ProductMissing bool
}

var orderNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("checkout-reconciler/orders"))

// OrderID derives the order id for a session line. The same inputs always
// yield the same id.
func OrderID(sessionID string, lineIndex int) string {
	return uuid.NewSHA1(orderNamespace, []byte(fmt.Sprintf("%s#%d", sessionID, lineIndex))).String()
}
