package checkout

import (
	"context"
	"time"

	"github.com/imrishuroy/checkout-reconciler/internal/cache"
	"github.com/imrishuroy/checkout-reconciler/internal/orders"
	"github.com/imrishuroy/checkout-reconciler/internal/pending"
	"github.com/imrishuroy/checkout-reconciler/internal/users"
)

// Verification outcomes.
const (
	OutcomePending          = "pending"
	OutcomeAlreadyProcessed = "already_processed"
	OutcomeVerified         = "verified"
)

// Messages returned to the storefront client, one per outcome.
const (
	MsgPending          = "Payment not completed yet"
	MsgAlreadyProcessed = "Order already processed"
	MsgVerified         = "Your payment has been verified"
)

type UserFinder interface {
	FindByID(ctx context.Context, id string) (*users.User, error)
}

type PendingStore interface {
	Create(ctx context.Context, rec pending.Record) (bool, error)
	Get(ctx context.Context, sessionID string) (*pending.Record, error)
	Claim(ctx context.Context, sessionID string, lease time.Duration) error
	Complete(ctx context.Context, sessionID string, sum pending.Summary) error
}

type OrderStore interface {
	MaterializeLine(ctx context.Context, order orders.Order) (orders.LineResult, error)
}

type ResultCache interface {
	Get(ctx context.Context, sessionID string) (*cache.Entry, error)
	Set(ctx context.Context, sessionID string, e cache.Entry) error
}

type Recorder interface {
	RecordVerification(ctx context.Context, outcome string, ordersCreated, linesFailed int) error
}

// InitiateResult is what the client needs to redirect the buyer.
type InitiateResult struct {
	SessionID string
	URL       string
}

// Result is the answer to a verification request.
type Result struct {
	Outcome       string
	PaymentStatus string
	Message       string
	// Report is only set for OutcomeVerified.
	Report *Report
}

// Report summarizes one materialization run.
type Report struct {
	OrdersCreated  int // written by this run
	OrdersExisting int // already present from an earlier run
	LinesFailed    int
	NeedsReview    bool
	Note           string
	Lines          []LineOutcome
}

type LineOutcome struct {
	Index          int
	ProductID      string
	OrderID        string
	Created        bool
	Clamped        bool
	ProductMissing bool
	Err            error
}
