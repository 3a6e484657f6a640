package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// VerifyMessage is the payload sent from the webhook -> SQS -> worker.
type VerifyMessage struct {
	SessionID string `json:"session_id"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
}

// Publisher enqueues verification requests on an SQS queue.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
	fifo     bool
}

// NewPublisher returns a Publisher bound to a queue URL. FIFO queues are
// detected from the ".fifo" suffix.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
		fifo:     strings.HasSuffix(queueURL, ".fifo"),
	}
}

// SendVerifyRequest enqueues a verification request for a checkout session.
// On FIFO queues messages are grouped by session and deduplicated by event id,
// so a redelivered webhook does not queue a second verification.
func (p *Publisher) SendVerifyRequest(ctx context.Context, msg VerifyMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal verify message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: awsString(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"session_id": stringAttr(msg.SessionID),
		},
	}
	if msg.EventID != "" {
		input.MessageAttributes["event_id"] = stringAttr(msg.EventID)
	}
	if p.fifo {
		input.MessageGroupId = awsString(msg.SessionID)
		dedup := msg.EventID
		if dedup == "" {
			dedup = msg.SessionID
		}
		input.MessageDeduplicationId = awsString(dedup)
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

func stringAttr(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{
		DataType:    awsString("String"),
		StringValue: awsString(v),
	}
}

func awsString(s string) *string { return &s }
