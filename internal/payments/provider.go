package payments

import (
	"context"
	"errors"
)

// Payment statuses reported by the provider for a checkout session.
const (
	PaymentStatusPaid              = "paid"
	PaymentStatusUnpaid            = "unpaid"
	PaymentStatusNoPaymentRequired = "no_payment_required"
)

var (
	ErrSessionNotFound  = errors.New("checkout session not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrUnavailable      = errors.New("payment provider unavailable")
)

// Provider is the hosted payment provider as seen by checkout.
type Provider interface {
	CreateCustomer(ctx context.Context, p CustomerParams) (*Customer, error)
	GetCustomer(ctx context.Context, customerID string) (*Customer, error)
	CreateSession(ctx context.Context, p SessionParams) (*Session, error)
	// GetSession retrieves a session with its customer expanded when possible.
	GetSession(ctx context.Context, sessionID string) (*Session, error)
}

type CustomerParams struct {
	Email    string
	Metadata map[string]string
}

type Customer struct {
	ID       string
	Email    string
	Metadata map[string]string
}

type LineItem struct {
	Name            string
	UnitAmountCents int64
	Quantity        int64
}

// Shipping describes the single free shipping option offered on a session.
type Shipping struct {
	DisplayName      string
	AllowedCountries []string
	MinBusinessDays  int64
	MaxBusinessDays  int64
}

type SessionParams struct {
	CustomerID        string
	ClientReferenceID string
	Currency          string
	Lines             []LineItem
	Shipping          Shipping
	SuccessURL        string
	CancelURL         string
}

type Address struct {
	Line1      string `json:"line1,omitempty" dynamodbav:"line1,omitempty"`
	Line2      string `json:"line2,omitempty" dynamodbav:"line2,omitempty"`
	City       string `json:"city,omitempty" dynamodbav:"city,omitempty"`
	State      string `json:"state,omitempty" dynamodbav:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty" dynamodbav:"postal_code,omitempty"`
	Country    string `json:"country,omitempty" dynamodbav:"country,omitempty"`
}

type Session struct {
	ID            string
	URL           string
	PaymentStatus string
	CustomerID    string
	// Customer is nil when the provider did not expand it.
	Customer *Customer
	// Address is the customer's address once payment completed, nil before.
	Address *Address
}

// Paid reports whether the session's payment is settled for fulfillment.
func (s *Session) Paid() bool {
	return s.PaymentStatus == PaymentStatusPaid || s.PaymentStatus == PaymentStatusNoPaymentRequired
}
