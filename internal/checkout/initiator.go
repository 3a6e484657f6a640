package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/imrishuroy/checkout-reconciler/internal/cart"
	"github.com/imrishuroy/checkout-reconciler/internal/payments"
	"github.com/imrishuroy/checkout-reconciler/internal/pending"
	"github.com/imrishuroy/checkout-reconciler/internal/users"
)

const (
	// CartRefMarker replaces the cart on the customer when the encoded cart
	// does not fit the provider's metadata limit.
	CartRefMarker = "pending_checkout"

	freeShippingName = "Free shipping"
)

type InitiatorConfig struct {
	ClientURL         string
	Currency          string
	ShippingCountries []string
}

// Initiator turns a client cart into a hosted checkout session.
type Initiator struct {
	provider payments.Provider
	users    UserFinder
	pending  PendingStore
	cfg      InitiatorConfig
}

func NewInitiator(provider payments.Provider, userFinder UserFinder, pendingStore PendingStore, cfg InitiatorConfig) *Initiator {
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if len(cfg.ShippingCountries) == 0 {
		cfg.ShippingCountries = []string{"PK", "IN", "BD"}
	}
	cfg.ClientURL = strings.TrimRight(cfg.ClientURL, "/")
	return &Initiator{
		provider: provider,
		users:    userFinder,
		pending:  pendingStore,
		cfg:      cfg,
	}
}

// Initiate validates the cart, creates the provider customer and session and
// records the pending checkout locally. Nothing is persisted unless both
// provider calls succeed.
func (in *Initiator) Initiate(ctx context.Context, userID string, items []cart.LineItem) (*InitiateResult, error) {
	if err := cart.Validate(items); err != nil {
		if errors.Is(err, cart.ErrEmpty) {
			return nil, ErrEmptyCart
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCart, err)
	}

	user, err := in.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	drafts := cart.Drafts(userID, items)
	metadata := map[string]string{}
	if v, ok := cart.MetadataValue(drafts); ok {
		metadata["cart"] = v
	} else {
		metadata["cart_ref"] = CartRefMarker
		log.Printf("[initiate] cart too large for metadata user=%s lines=%d", userID, len(drafts))
	}

	customer, err := in.provider.CreateCustomer(ctx, payments.CustomerParams{
		Email:    user.Email,
		Metadata: metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create customer: %w", ErrProvider, err)
	}

	lines := make([]payments.LineItem, 0, len(items))
	for _, it := range items {
		lines = append(lines, payments.LineItem{
			Name:            it.Title,
			UnitAmountCents: it.ActualPriceCents(),
			Quantity:        int64(it.Quantity),
		})
	}

	sess, err := in.provider.CreateSession(ctx, payments.SessionParams{
		CustomerID:        customer.ID,
		ClientReferenceID: userID,
		Currency:          in.cfg.Currency,
		Lines:             lines,
		Shipping: payments.Shipping{
			DisplayName:      freeShippingName,
			AllowedCountries: in.cfg.ShippingCountries,
			MinBusinessDays:  5,
			MaxBusinessDays:  7,
		},
		SuccessURL: in.cfg.ClientURL + "/user?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  in.cfg.ClientURL + "/cart",
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %w", ErrProvider, err)
	}

	if _, err := in.pending.Create(ctx, pending.Record{
		SessionID:  sess.ID,
		UserID:     userID,
		CustomerID: customer.ID,
		Cart:       drafts,
	}); err != nil {
		return nil, fmt.Errorf("record pending checkout: %w", err)
	}

	log.Printf("[initiate] session created session=%s user=%s customer=%s lines=%d total_cents=%d",
		sess.ID, userID, customer.ID, len(lines), cart.TotalCents(items))
	return &InitiateResult{SessionID: sess.ID, URL: sess.URL}, nil
}
