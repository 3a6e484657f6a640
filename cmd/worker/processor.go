package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/aws/aws-lambda-go/events"

	"github.com/imrishuroy/checkout-reconciler/internal/aws"
	"github.com/imrishuroy/checkout-reconciler/internal/checkout"
)

type Verifier interface {
	Verify(ctx context.Context, sessionID string) (*checkout.Result, error)
}

// Processor runs payment verification for sessions announced on the queue.
type Processor struct {
	verifier Verifier
}

func NewProcessor(v Verifier) *Processor {
	return &Processor{verifier: v}
}

// Handle processes an SQS batch and reports the messages that should be
// redelivered. Messages that can never succeed are dropped.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			log.Printf("[worker] error message=%s: %v", rec.MessageId, err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{
				ItemIdentifier: rec.MessageId,
			})
		}
	}
	return resp, nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg aws.VerifyMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil || msg.SessionID == "" {
		log.Printf("[worker] dropping malformed message=%s body=%q", rec.MessageId, rec.Body)
		return nil
	}

	log.Printf("[worker] received session=%s event=%s type=%s", msg.SessionID, msg.EventID, msg.EventType)

	res, err := p.verifier.Verify(ctx, msg.SessionID)
	if errors.Is(err, checkout.ErrSessionNotFound) {
		log.Printf("[worker] dropping unknown session=%s", msg.SessionID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("verify session=%s: %w", msg.SessionID, err)
	}

	log.Printf("[worker] session=%s outcome=%s status=%s", msg.SessionID, res.Outcome, res.PaymentStatus)
	return nil
}
