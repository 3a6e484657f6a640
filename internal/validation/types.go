package validation

import "github.com/imrishuroy/checkout-reconciler/internal/cart"

// MaxCartLines bounds a single checkout.
const MaxCartLines = 100

// CartItem is a single cart line as the storefront client sends it.
type CartItem struct {
	ProductID string  `json:"_id" validate:"required"`
	Title     string  `json:"title" validate:"required"`
	Size      string  `json:"size,omitempty"`
	Color     string  `json:"color,omitempty"`
	Quantity  int     `json:"quantity" validate:"required,min=1"`
	Price     float64 `json:"price" validate:"gte=0"`            // unit price
	Discount  float64 `json:"discount" validate:"gte=0,lte=100"` // percent
}

// ProcessPaymentRequest is the payload for POST /payment/process
type ProcessPaymentRequest struct {
	Cart   []CartItem `json:"cart" validate:"required,min=1,dive"`
	UserID string     `json:"id" validate:"required"`
}

// LineItems converts the request cart into checkout line items.
func (r ProcessPaymentRequest) LineItems() []cart.LineItem {
	items := make([]cart.LineItem, 0, len(r.Cart))
	for _, it := range r.Cart {
		items = append(items, cart.LineItem{
			ProductID:       it.ProductID,
			Title:           it.Title,
			Size:            it.Size,
			Color:           it.Color,
			Quantity:        it.Quantity,
			UnitPrice:       it.Price,
			DiscountPercent: it.Discount,
		})
	}
	return items
}
