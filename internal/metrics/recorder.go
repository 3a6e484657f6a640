package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/imrishuroy/checkout-reconciler/internal/aws"
)

const (
	MetricVerification = "VerificationOutcome"
	MetricLineFailures = "LineFailures"
	MetricOrders       = "OrdersMaterialized"
)

// Recorder publishes verification metrics to CloudWatch.
type Recorder struct {
	client    aws.CloudWatchAPI
	namespace string
	nowFunc   func() time.Time
}

func NewRecorder(client aws.CloudWatchAPI, namespace string) *Recorder {
	return &Recorder{client: client, namespace: namespace, nowFunc: time.Now}
}

// RecordVerification counts one verification with the given outcome. Orders
// and line failures are only emitted for runs that materialized a cart.
func (r *Recorder) RecordVerification(ctx context.Context, outcome string, ordersCreated, linesFailed int) error {
	now := r.nowFunc()
	data := []cwtypes.MetricDatum{
		{
			MetricName: awsString(MetricVerification),
			Dimensions: []cwtypes.Dimension{{Name: awsString("Outcome"), Value: awsString(outcome)}},
			Timestamp:  &now,
			Unit:       cwtypes.StandardUnitCount,
			Value:      awsFloat(1),
		},
	}
	if ordersCreated > 0 || linesFailed > 0 {
		data = append(data,
			cwtypes.MetricDatum{
				MetricName: awsString(MetricOrders),
				Timestamp:  &now,
				Unit:       cwtypes.StandardUnitCount,
				Value:      awsFloat(float64(ordersCreated)),
			},
			cwtypes.MetricDatum{
				MetricName: awsString(MetricLineFailures),
				Timestamp:  &now,
				Unit:       cwtypes.StandardUnitCount,
				Value:      awsFloat(float64(linesFailed)),
			},
		)
	}

	_, err := r.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  &r.namespace,
		MetricData: data,
	})
	if err != nil {
		return fmt.Errorf("put metric data: %w", err)
	}
	return nil
}

func awsString(s string) *string  { return &s }
func awsFloat(f float64) *float64 { return &f }
