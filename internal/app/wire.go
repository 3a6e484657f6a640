package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/imrishuroy/checkout-reconciler/internal/aws"
	"github.com/imrishuroy/checkout-reconciler/internal/cache"
	"github.com/imrishuroy/checkout-reconciler/internal/checkout"
	"github.com/imrishuroy/checkout-reconciler/internal/config"
	"github.com/imrishuroy/checkout-reconciler/internal/metrics"
	"github.com/imrishuroy/checkout-reconciler/internal/orders"
	"github.com/imrishuroy/checkout-reconciler/internal/payments"
	"github.com/imrishuroy/checkout-reconciler/internal/pending"
	"github.com/redis/go-redis/v9"
)

// Deps is everything both binaries share.
type Deps struct {
	Config   config.Config
	Clients  *aws.Clients
	Provider payments.Provider
	Pending  *pending.Store
	Orders   *orders.Store
	Verifier *checkout.Verifier
}

// Build wires the verification pipeline from cfg.
func Build(ctx context.Context, cfg config.Config) (*Deps, error) {
	if cfg.StripeKey == "" {
		return nil, errors.New("STRIPE_KEY is required")
	}

	clients, err := aws.NewClients(ctx)
	if err != nil {
		return nil, fmt.Errorf("init aws clients: %w", err)
	}
	return BuildWithClients(ctx, cfg, clients), nil
}

// BuildWithClients is Build with the AWS clients supplied by the caller.
func BuildWithClients(ctx context.Context, cfg config.Config, clients *aws.Clients) *Deps {
	provider := payments.NewBreaker(
		payments.NewStripe(cfg.StripeKey, cfg.ProviderTimeout),
		payments.BreakerSettings{Name: "stripe"},
	)
	pendingStore := pending.NewStore(clients.DynamoDB, cfg.PendingTable, cfg.PendingTTL)
	orderStore := orders.NewStore(clients.DynamoDB, cfg.OrdersTable, cfg.ProductsTable)

	verifier := checkout.NewVerifier(provider, pendingStore, orderStore, cfg.LeaseTTL).
		WithMetrics(metrics.NewRecorder(clients.CloudWatch, cfg.MetricsNamespace))
	if rc := connectRedis(ctx, cfg); rc != nil {
		verifier.WithCache(cache.NewResultCache(rc, cfg.ResultCacheTTL))
	}

	return &Deps{
		Config:   cfg,
		Clients:  clients,
		Provider: provider,
		Pending:  pendingStore,
		Orders:   orderStore,
		Verifier: verifier,
	}
}

// connectRedis returns nil when no cache is configured or reachable; the
// verifier works without one.
func connectRedis(ctx context.Context, cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		log.Printf("redis unavailable at %s, running without result cache: %v", cfg.RedisAddr, err)
		_ = rc.Close()
		return nil
	}
	return rc
}
