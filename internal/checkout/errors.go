package checkout

import "errors"

var (
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidCart     = errors.New("invalid cart")
	// ErrProvider wraps any failure talking to the payment provider other
	// than an unknown session.
	ErrProvider = errors.New("payment provider error")
)
