package main

import (
	"context"
	"log"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	"github.com/imrishuroy/checkout-reconciler/internal/app"
	"github.com/imrishuroy/checkout-reconciler/internal/aws"
	"github.com/imrishuroy/checkout-reconciler/internal/checkout"
	"github.com/imrishuroy/checkout-reconciler/internal/config"
	"github.com/imrishuroy/checkout-reconciler/internal/handlers"
	"github.com/imrishuroy/checkout-reconciler/internal/users"
)

func setupRouter(cfg handlers.HandlerConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	// health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	handlers.RegisterPaymentRoutes(r, cfg)

	return r
}

func main() {
	ctx := context.Background()
	cfg := config.Load()

	deps, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatalf("failed to init dependencies: %v", err)
	}

	if cfg.MongoURI == "" {
		log.Fatalf("MONGO_URI is required")
	}
	db, err := users.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		log.Fatalf("failed to connect to user store: %v", err)
	}

	hcfg := handlers.HandlerConfig{
		Initiator: checkout.NewInitiator(deps.Provider, users.NewRepository(db), deps.Pending, checkout.InitiatorConfig{
			ClientURL:         cfg.ClientURL,
			Currency:          cfg.Currency,
			ShippingCountries: cfg.ShippingCountries,
		}),
		Verifier:      deps.Verifier,
		Orders:        deps.Orders,
		WebhookSecret: cfg.StripeWebhookSecret,
	}
	if cfg.VerifyQueue != "" {
		hcfg.Queue = aws.NewPublisher(deps.Clients.SQS, cfg.VerifyQueue)
	}

	r := setupRouter(hcfg)

	// if environment variable RUN_LOCAL is set to "true", run local HTTP server for development.
	if cfg.RunLocal {
		addr := ":" + cfg.Port
		log.Printf("running local server on %s", addr)
		if err := r.Run(addr); err != nil {
			log.Fatalf("failed to run local server: %v", err)
		}
		return
	}

	// lambda adapter
	adapter := ginadapter.New(r)

	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}
