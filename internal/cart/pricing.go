package cart

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// ActualPriceCents is the discounted unit price in cents, rounded half-up.
func (l LineItem) ActualPriceCents() int64 {
	price := decimal.NewFromFloat(l.UnitPrice)
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(l.DiscountPercent).Div(hundred))
	return price.Mul(factor).Mul(hundred).Round(0).IntPart()
}

// TotalCents sums ActualPriceCents * Quantity over all items.
func TotalCents(items []LineItem) int64 {
	var total int64
	for _, it := range items {
		total += it.ActualPriceCents() * int64(it.Quantity)
	}
	return total
}
