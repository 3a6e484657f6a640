package cart

import (
	"encoding/json"
	"fmt"
)

// MaxMetadataValueLen is the provider's cap on a single metadata value.
const MaxMetadataValueLen = 500

// Drafts converts submitted items into order-draft lines owned by userID.
func Drafts(userID string, items []LineItem) []Line {
	lines := make([]Line, 0, len(items))
	for _, it := range items {
		lines = append(lines, Line{
			ProductID: it.ProductID,
			Size:      it.Size,
			Color:     it.Color,
			Quantity:  it.Quantity,
			UserID:    userID,
		})
	}
	return lines
}

// Encode serializes lines into the opaque metadata payload.
func Encode(lines []Line) (string, error) {
	if lines == nil {
		lines = []Line{}
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("marshal cart: %w", err)
	}
	return string(b), nil
}

// Decode parses a payload produced by Encode. An empty payload is an empty cart.
func Decode(raw string) ([]Line, error) {
	if raw == "" {
		return nil, nil
	}
	var lines []Line
	if err := json.Unmarshal([]byte(raw), &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	return lines, nil
}

// MetadataValue returns the encoded cart if it fits in a single metadata value.
// ok is false when the cart is too large (or cannot be encoded) and must not be
// attached to the customer record.
func MetadataValue(lines []Line) (value string, ok bool) {
	v, err := Encode(lines)
	if err != nil || len(v) > MaxMetadataValueLen {
		return "", false
	}
	return v, true
}
