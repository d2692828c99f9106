// Package ratelimit gates outbound requests per source key.
//
// A single Registry is shared by every crawler and job in the process, so
// concurrent jobs hitting the same source draw from one combined budget.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Acquirer is the contract crawlers and fetchers depend on.
type Acquirer interface {
	Acquire(ctx context.Context, key string) error
}

// WaitObserver receives how long each Acquire call waited.
type WaitObserver func(key string, waited time.Duration)

// Registry holds one token bucket per key.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	budgets  map[string]Budget
	fallback Budget
	observe  WaitObserver
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver reports wait durations, typically to metrics.
func WithObserver(fn WaitObserver) Option {
	return func(r *Registry) { r.observe = fn }
}

// NewRegistry returns a registry using fallback for keys with no explicit budget.
func NewRegistry(fallback Budget, budgets map[string]Budget, opts ...Option) *Registry {
	r := &Registry{
		limiters: make(map[string]*rate.Limiter),
		budgets:  make(map[string]Budget, len(budgets)),
		fallback: fallback,
	}
	for k, b := range budgets {
		r.budgets[k] = b
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Acquire blocks until the next slot for key is available. It only fails
// when ctx is cancelled or its deadline would pass before the slot opens.
func (r *Registry) Acquire(ctx context.Context, key string) error {
	lim := r.limiter(key)
	start := time.Now()

	if err := lim.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		// Wait refuses early when the deadline precedes the next token.
		return context.DeadlineExceeded
	}

	if r.observe != nil {
		r.observe(key, time.Since(start))
	}
	return nil
}

// SetBudget changes the budget of key, applying to an existing limiter in place.
func (r *Registry) SetBudget(key string, b Budget) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.budgets[key] = b
	if lim, ok := r.limiters[key]; ok {
		lim.SetLimit(b.Limit())
		lim.SetBurst(b.burst())
	}
}

// Budget returns the budget applied to key.
func (r *Registry) Budget(key string) Budget {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.budgets[key]; ok {
		return b
	}
	return r.fallback
}

func (r *Registry) limiter(key string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.limiters[key]; ok {
		return lim
	}
	b, ok := r.budgets[key]
	if !ok {
		b = r.fallback
	}
	lim := rate.NewLimiter(b.Limit(), b.burst())
	r.limiters[key] = lim
	return lim
}
