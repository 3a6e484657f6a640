package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/checkout-reconciler/internal/aws"
	"github.com/imrishuroy/checkout-reconciler/internal/cart"
	"github.com/imrishuroy/checkout-reconciler/internal/checkout"
	"github.com/imrishuroy/checkout-reconciler/internal/orders"
	"github.com/imrishuroy/checkout-reconciler/internal/validation"
)

type Initiator interface {
	Initiate(ctx context.Context, userID string, items []cart.LineItem) (*checkout.InitiateResult, error)
}

type Verifier interface {
	Verify(ctx context.Context, sessionID string) (*checkout.Result, error)
}

type OrderLister interface {
	ListBySession(ctx context.Context, sessionID string) ([]orders.Order, error)
}

type VerifyQueue interface {
	SendVerifyRequest(ctx context.Context, msg aws.VerifyMessage) error
}

// HandlerConfig groups dependencies for the payment handlers.
type HandlerConfig struct {
	Initiator Initiator
	Verifier  Verifier
	Orders    OrderLister
	// Queue receives verification requests from webhooks. When nil the
	// webhook verifies inline.
	Queue         VerifyQueue
	WebhookSecret string
}

// RegisterPaymentRoutes registers routes for the payment API.
func RegisterPaymentRoutes(r *gin.Engine, cfg HandlerConfig) {
	v := validation.New()
	g := r.Group("/payment")

	g.POST("/process", func(c *gin.Context) {
		var req validation.ProcessPaymentRequest
		if err := validation.BindAndValidate(c, &req, v); err != nil {
			// BindAndValidate already wrote a 400
			return
		}

		res, err := cfg.Initiator.Initiate(c.Request.Context(), req.UserID, req.LineItems())
		if err != nil {
			writeError(c, "initiate", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"url": res.URL})
	})

	g.GET("/verify/:id", func(c *gin.Context) {
		res, err := cfg.Verifier.Verify(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, "verify", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"msg":     res.Message,
			"status":  res.PaymentStatus,
			"outcome": res.Outcome,
		})
	})

	g.GET("/orders/:id", func(c *gin.Context) {
		list, err := cfg.Orders.ListBySession(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, "orders", err)
			return
		}
		if list == nil {
			list = []orders.Order{}
		}
		c.JSON(http.StatusOK, gin.H{"orders": list})
	})

	if cfg.WebhookSecret != "" {
		g.POST("/webhook", webhookHandler(cfg))
	}
}

// writeError maps checkout errors to responses. Anything unexpected is logged
// and reported as a bare 500.
func writeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, checkout.ErrEmptyCart), errors.Is(err, checkout.ErrInvalidCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "msg": err.Error()})
	case errors.Is(err, checkout.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	case errors.Is(err, checkout.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
	default:
		log.Printf("[%s] error: %v", op, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
	}
}
