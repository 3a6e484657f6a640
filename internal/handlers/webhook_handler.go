package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/checkout-reconciler/internal/aws"
	"github.com/imrishuroy/checkout-reconciler/internal/checkout"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const maxWebhookBody = 64 << 10

func webhookHandler(cfg HandlerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body"})
			return
		}

		event, err := webhook.ConstructEventWithOptions(payload, c.GetHeader("Stripe-Signature"), cfg.WebhookSecret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			log.Printf("[webhook] rejected event: %v", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
			return
		}

		switch event.Type {
		case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		default:
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		var sess struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil || sess.ID == "" {
			log.Printf("[webhook] event=%s has no session id", event.ID)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_event"})
			return
		}

		ctx := c.Request.Context()
		if cfg.Queue != nil {
			err := cfg.Queue.SendVerifyRequest(ctx, aws.VerifyMessage{
				SessionID: sess.ID,
				EventID:   event.ID,
				EventType: string(event.Type),
			})
			if err != nil {
				// 5xx makes the provider redeliver the event
				log.Printf("[webhook] enqueue failed event=%s session=%s err=%v", event.ID, sess.ID, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
				return
			}
			log.Printf("[webhook] queued event=%s type=%s session=%s", event.ID, event.Type, sess.ID)
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}

		res, err := cfg.Verifier.Verify(ctx, sess.ID)
		switch {
		case errors.Is(err, checkout.ErrSessionNotFound):
			log.Printf("[webhook] unknown session event=%s session=%s", event.ID, sess.ID)
		case err != nil:
			log.Printf("[webhook] verify failed event=%s session=%s err=%v", event.ID, sess.ID, err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error"})
			return
		default:
			log.Printf("[webhook] verified event=%s session=%s outcome=%s", event.ID, sess.ID, res.Outcome)
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}
