package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/imrishuroy/checkout-reconciler/internal/cache"
	"github.com/imrishuroy/checkout-reconciler/internal/cart"
	"github.com/imrishuroy/checkout-reconciler/internal/orders"
	"github.com/imrishuroy/checkout-reconciler/internal/payments"
	"github.com/imrishuroy/checkout-reconciler/internal/pending"
)

const defaultLease = 2 * time.Minute

// Verifier confirms a session's payment and materializes its cart into
// orders exactly once.
type Verifier struct {
	provider payments.Provider
	pending  PendingStore
	orders   OrderStore
	cache    ResultCache
	metrics  Recorder
	leaseTTL time.Duration
}

func NewVerifier(provider payments.Provider, pendingStore PendingStore, orderStore OrderStore, leaseTTL time.Duration) *Verifier {
	if leaseTTL <= 0 {
		leaseTTL = defaultLease
	}
	return &Verifier{
		provider: provider,
		pending:  pendingStore,
		orders:   orderStore,
		leaseTTL: leaseTTL,
	}
}

// WithCache lets repeat verifications of finished sessions skip the provider.
func (v *Verifier) WithCache(c ResultCache) *Verifier {
	v.cache = c
	return v
}

func (v *Verifier) WithMetrics(r Recorder) *Verifier {
	v.metrics = r
	return v
}

// Verify reports the payment state of a session. The first caller to see it
// paid turns its cart into orders; everyone else gets OutcomeAlreadyProcessed.
func (v *Verifier) Verify(ctx context.Context, sessionID string) (*Result, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	if v.cache != nil {
		e, err := v.cache.Get(ctx, sessionID)
		switch {
		case err == nil:
			return v.finish(ctx, alreadyProcessed(e.PaymentStatus), 0, 0), nil
		case !errors.Is(err, cache.ErrCacheMiss):
			log.Printf("[verify] cache read failed session=%s err=%v", sessionID, err)
		}
	}

	sess, err := v.provider.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, payments.ErrSessionNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: retrieve session: %w", ErrProvider, err)
	}

	if !sess.Paid() {
		log.Printf("[verify] payment incomplete session=%s status=%s", sessionID, sess.PaymentStatus)
		return v.finish(ctx, &Result{
			Outcome:       OutcomePending,
			PaymentStatus: sess.PaymentStatus,
			Message:       MsgPending,
		}, 0, 0), nil
	}

	rec, err := v.loadOrCreatePending(ctx, sess)
	if err != nil {
		return nil, err
	}

	if err := v.pending.Claim(ctx, sessionID, v.leaseTTL); err != nil {
		if errors.Is(err, pending.ErrStatusMismatch) {
			log.Printf("[verify] already claimed session=%s", sessionID)
			return v.finish(ctx, alreadyProcessed(sess.PaymentStatus), 0, 0), nil
		}
		return nil, fmt.Errorf("claim session: %w", err)
	}

	// the run must not stop halfway because the caller went away
	report := v.materialize(context.WithoutCancel(ctx), sessionID, rec.Cart, sess.Address)
	report.NeedsReview = report.NeedsReview || rec.NeedsReview
	if report.Note == "" {
		report.Note = rec.Note
	}

	total := report.OrdersCreated + report.OrdersExisting
	err = v.pending.Complete(context.WithoutCancel(ctx), sessionID, pending.Summary{
		OrdersCreated: total,
		LinesFailed:   report.LinesFailed,
		NeedsReview:   report.NeedsReview,
		Note:          report.Note,
	})
	if err != nil {
		if !errors.Is(err, pending.ErrStatusMismatch) {
			return nil, fmt.Errorf("complete session: %w", err)
		}
		// lease expired mid-run and another run took over; its line writes
		// skip everything this run already wrote
		log.Printf("[verify] lost lease before completion session=%s", sessionID)
	}

	if v.cache != nil {
		if err := v.cache.Set(ctx, sessionID, cache.Entry{PaymentStatus: sess.PaymentStatus, OrdersCreated: total}); err != nil {
			log.Printf("[verify] cache write failed session=%s err=%v", sessionID, err)
		}
	}

	log.Printf("[verify] verified session=%s created=%d existing=%d failed=%d needs_review=%t",
		sessionID, report.OrdersCreated, report.OrdersExisting, report.LinesFailed, report.NeedsReview)
	return v.finish(ctx, &Result{
		Outcome:       OutcomeVerified,
		PaymentStatus: sess.PaymentStatus,
		Message:       MsgVerified,
		Report:        report,
	}, total, report.LinesFailed), nil
}

// loadOrCreatePending returns the local record for a paid session. Sessions
// created before local records existed, or whose record expired, are rebuilt
// from the cart stored on the provider's customer.
func (v *Verifier) loadOrCreatePending(ctx context.Context, sess *payments.Session) (*pending.Record, error) {
	rec, err := v.pending.Get(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load pending checkout: %w", err)
	}
	if rec != nil {
		return rec, nil
	}

	lines, note, err := v.recoverCart(ctx, sess)
	if err != nil {
		return nil, err
	}
	fresh := pending.Record{
		SessionID:   sess.ID,
		CustomerID:  sess.CustomerID,
		Cart:        lines,
		NeedsReview: note != "",
		Note:        note,
	}
	if len(lines) > 0 {
		fresh.UserID = lines[0].UserID
	}
	created, err := v.pending.Create(ctx, fresh)
	if err != nil {
		return nil, fmt.Errorf("create pending checkout: %w", err)
	}
	if created {
		return &fresh, nil
	}

	// lost a race with another verifier; use whatever it stored
	rec, err = v.pending.Get(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("load pending checkout: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("pending checkout %s vanished", sess.ID)
	}
	return rec, nil
}

// recoverCart reads the cart from the customer's metadata. A cart that cannot
// be read yields no lines and a note explaining why.
func (v *Verifier) recoverCart(ctx context.Context, sess *payments.Session) ([]cart.Line, string, error) {
	var (
		raw   string
		found bool
	)
	if sess.Customer != nil {
		raw, found = sess.Customer.Metadata["cart"]
	}
	if !found && sess.CustomerID != "" {
		cust, err := v.provider.GetCustomer(ctx, sess.CustomerID)
		switch {
		case errors.Is(err, payments.ErrCustomerNotFound):
			log.Printf("[verify] WARN customer missing session=%s customer=%s", sess.ID, sess.CustomerID)
			return nil, "customer not found", nil
		case err != nil:
			return nil, "", fmt.Errorf("%w: retrieve customer: %w", ErrProvider, err)
		}
		raw, found = cust.Metadata["cart"]
	}
	if !found {
		log.Printf("[verify] WARN no cart on customer session=%s", sess.ID)
		return nil, "cart metadata missing", nil
	}

	lines, err := cart.Decode(raw)
	if err != nil {
		log.Printf("[verify] WARN cart metadata unreadable session=%s err=%v", sess.ID, err)
		return nil, "cart metadata unreadable", nil
	}
	return lines, "", nil
}

// materialize writes one order per cart line. Lines are independent: a failed
// line is logged and counted and the rest still run.
func (v *Verifier) materialize(ctx context.Context, sessionID string, lines []cart.Line, addr *payments.Address) *Report {
	report := &Report{Lines: make([]LineOutcome, 0, len(lines))}
	for i, line := range lines {
		out := LineOutcome{Index: i, ProductID: line.ProductID, OrderID: orders.OrderID(sessionID, i)}

		if line.ProductID == "" || line.Quantity <= 0 {
			out.Err = fmt.Errorf("%w: line %d product=%q quantity=%d", ErrInvalidCart, i, line.ProductID, line.Quantity)
			log.Printf("[verify] skipping line session=%s line=%d err=%v", sessionID, i, out.Err)
			report.LinesFailed++
			report.NeedsReview = true
			report.Lines = append(report.Lines, out)
			continue
		}

		res, err := v.orders.MaterializeLine(ctx, orders.Order{
			OrderID:    out.OrderID,
			SessionID:  sessionID,
			LineIndex:  i,
			ProductID:  line.ProductID,
			UserID:     line.UserID,
			Size:       line.Size,
			Color:      line.Color,
			Quantities: line.Quantity,
			Address:    addr,
		})
		switch {
		case err != nil:
			out.Err = err
			report.LinesFailed++
			log.Printf("[verify] line failed session=%s line=%d product=%s err=%v", sessionID, i, line.ProductID, err)
		case res.Created:
			out.Created = true
			report.OrdersCreated++
		default:
			report.OrdersExisting++
		}
		out.Clamped = res.Clamped
		out.ProductMissing = res.ProductMissing
		if res.Clamped {
			log.Printf("[verify] stock short, clamped to zero session=%s line=%d product=%s", sessionID, i, line.ProductID)
		}
		if res.ProductMissing {
			log.Printf("[verify] WARN product missing, stock skipped session=%s line=%d product=%s", sessionID, i, line.ProductID)
		}
		report.Lines = append(report.Lines, out)
	}
	if report.LinesFailed > 0 && report.Note == "" {
		report.Note = fmt.Sprintf("%d of %d lines failed", report.LinesFailed, len(lines))
	}
	return report
}

func (v *Verifier) finish(ctx context.Context, res *Result, ordersCreated, linesFailed int) *Result {
	if v.metrics != nil {
		if err := v.metrics.RecordVerification(ctx, res.Outcome, ordersCreated, linesFailed); err != nil {
			log.Printf("[verify] metrics failed outcome=%s err=%v", res.Outcome, err)
		}
	}
	return res
}

func alreadyProcessed(paymentStatus string) *Result {
	return &Result{
		Outcome:       OutcomeAlreadyProcessed,
		PaymentStatus: paymentStatus,
		Message:       MsgAlreadyProcessed,
	}
}
