package cart

import (
	"errors"
	"fmt"
)

// LineItem is one cart line as submitted by the storefront client.
type LineItem struct {
	ProductID       string
	Title           string
	Size            string
	Color           string
	Quantity        int
	UnitPrice       float64
	DiscountPercent float64
}

// Line is the order-draft form of a cart line. It is what gets persisted with a
// pending checkout and attached to the provider's customer record, so the JSON
// names follow the storefront's existing metadata format.
type Line struct {
	ProductID string `json:"_id" dynamodbav:"product_id"`
	Size      string `json:"size" dynamodbav:"size,omitempty"`
	Color     string `json:"color" dynamodbav:"color,omitempty"`
	Quantity  int    `json:"quantity" dynamodbav:"quantity"`
	UserID    string `json:"userId" dynamodbav:"user_id"`
}

var (
	ErrEmpty       = errors.New("cart is empty")
	ErrInvalidLine = errors.New("invalid cart line")
)

// Validate reports the first line that is missing a product id or carries a bad
// quantity, price or discount.
func Validate(items []LineItem) error {
	if len(items) == 0 {
		return ErrEmpty
	}
	for i, it := range items {
		switch {
		case it.ProductID == "":
			return fmt.Errorf("%w: line %d has no product id", ErrInvalidLine, i)
		case it.Quantity <= 0:
			return fmt.Errorf("%w: line %d quantity %d", ErrInvalidLine, i, it.Quantity)
		case it.UnitPrice < 0:
			return fmt.Errorf("%w: line %d price %.2f", ErrInvalidLine, i, it.UnitPrice)
		case it.DiscountPercent < 0 || it.DiscountPercent > 100:
			return fmt.Errorf("%w: line %d discount %.2f", ErrInvalidLine, i, it.DiscountPercent)
		}
	}
	return nil
}
