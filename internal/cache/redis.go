package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is the terminal verification result remembered for a session.
type Entry struct {
	PaymentStatus string `json:"payment_status"`
	OrdersCreated int    `json:"orders_created"`
}

// ResultCache remembers sessions whose verification has finished so repeat
// verifications can answer without calling the payment provider.
type ResultCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewResultCache(client *redis.Client, baseTTL time.Duration) *ResultCache {
	if baseTTL <= 0 {
		baseTTL = 24 * time.Hour
	}
	return &ResultCache{client: client, baseTTL: baseTTL}
}

func (r *ResultCache) Get(ctx context.Context, sessionID string) (*Entry, error) {
	data, err := r.client.Get(ctx, cacheKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal entry failed: %w", err)
	}
	return &e, nil
}

func (r *ResultCache) Set(ctx context.Context, sessionID string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(10)) * time.Minute
	if err := r.client.Set(ctx, cacheKey(sessionID), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func cacheKey(sessionID string) string {
	return fmt.Sprintf("checkout:verified:%s", sessionID)
}
