package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker/v2"
)

// Breaker wraps a Provider with a circuit breaker so that a degraded provider
// fails requests fast instead of holding them for the full network timeout.
type Breaker struct {
	next Provider
	cb   *gobreaker.CircuitBreaker[any]
}

type BreakerSettings struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func NewBreaker(next Provider, st BreakerSettings) *Breaker {
	if st.FailureThreshold == 0 {
		st.FailureThreshold = 5
	}
	if st.OpenTimeout == 0 {
		st.OpenTimeout = 30 * time.Second
	}
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        st.Name,
		MaxRequests: 1,
		Timeout:     st.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= st.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// lookups of unknown ids say nothing about provider health
			return err == nil || errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrCustomerNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[payments] breaker=%s state %s -> %s", name, from, to)
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) CreateCustomer(ctx context.Context, p CustomerParams) (*Customer, error) {
	return execute(b, func() (*Customer, error) { return b.next.CreateCustomer(ctx, p) })
}

func (b *Breaker) GetCustomer(ctx context.Context, customerID string) (*Customer, error) {
	return execute(b, func() (*Customer, error) { return b.next.GetCustomer(ctx, customerID) })
}

func (b *Breaker) CreateSession(ctx context.Context, p SessionParams) (*Session, error) {
	return execute(b, func() (*Session, error) { return b.next.CreateSession(ctx, p) })
}

func (b *Breaker) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	return execute(b, func() (*Session, error) { return b.next.GetSession(ctx, sessionID) })
}

func execute[T any](b *Breaker, fn func() (*T, error)) (*T, error) {
	out, err := b.cb.Execute(func() (any, error) { return fn() })
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	v, _ := out.(*T)
	return v, nil
}
