package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/imrishuroy/checkout-reconciler/internal/app"
	"github.com/imrishuroy/checkout-reconciler/internal/config"
)

func main() {
	cfg := config.Load()
	deps, err := app.Build(context.Background(), cfg)
	if err != nil {
		log.Fatalf("failed to init worker: %v", err)
	}
	p := NewProcessor(deps.Verifier)

	// If RUN_LOCAL=true, process a single simulated SQS event and exit.
	if cfg.RunLocal {
		resp, err := p.Handle(context.Background(), events.SQSEvent{
			Records: []events.SQSMessage{{MessageId: "local-1", Body: cfg.LocalSQSBody}},
		})
		if err != nil {
			log.Fatalf("local handler error: %v", err)
		}
		log.Printf("local run done, failures=%d", len(resp.BatchItemFailures))
		return
	}

	lambda.Start(p.Handle)
}
