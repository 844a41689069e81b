// Package ratelimit implements fixed-window attempt budgets keyed by
// (ip, operation) and an IP block list consulted before any budget.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var decisionsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_rate_limit_decisions_total",
	Help: "Rate limit decisions by operation and result",
}, []string{"operation", "result"})

// CounterStore performs the check-and-increment as one atomic step.
type CounterStore interface {
	ConsumeAttempt(ctx context.Context, key string, budget domain.Budget, now time.Time) (domain.Decision, error)
}

// BlockStore persists the IP block list.
type BlockStore interface {
	GetBlock(ctx context.Context, ip string) (*domain.IPBlock, error)
	PutBlock(ctx context.Context, b *domain.IPBlock) error
	DeleteBlock(ctx context.Context, ip string) error
}

type Limiter struct {
	counters CounterStore
	blocks   BlockStore
	policy   Policy
	now      func() time.Time
}

func NewLimiter(counters CounterStore, blocks BlockStore, policy Policy) *Limiter {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Limiter{counters: counters, blocks: blocks, policy: policy, now: time.Now}
}

// WithClock replaces the time source. Intended for tests.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// CheckAndConsume consumes one attempt from the (ip, op) bucket if the budget
// allows it. Denied calls do not consume.
func (l *Limiter) CheckAndConsume(ctx context.Context, ip, op string, budget domain.Budget) (domain.Decision, error) {
	if budget.MaxAttempts <= 0 || budget.Window <= 0 {
		return domain.Decision{}, fmt.Errorf("invalid budget for %s: %w", op, domain.ErrBadRequest)
	}
	d, err := l.counters.ConsumeAttempt(ctx, Key(ip, op), budget, l.now())
	if err != nil {
		return domain.Decision{}, fmt.Errorf("consume attempt %s: %w", op, err)
	}
	result := "allowed"
	if !d.Allowed {
		result = "denied"
	}
	decisionsCounter.WithLabelValues(op, result).Inc()
	return d, nil
}

// Enforce applies the policy budget for op and returns a *domain.RateLimitError
// when it is exhausted.
func (l *Limiter) Enforce(ctx context.Context, ip string, op Operation) error {
	budget, ok := l.policy[op]
	if !ok {
		return fmt.Errorf("no budget configured for %s", op)
	}
	d, err := l.CheckAndConsume(ctx, ip, string(op), budget)
	if err != nil {
		return err
	}
	if !d.Allowed {
		return &domain.RateLimitError{Operation: string(op), RetryAfter: d.RetryAfter}
	}
	return nil
}

// IsBlocked reports whether ip is on the block list and the block is active.
func (l *Limiter) IsBlocked(ctx context.Context, ip string) (bool, error) {
	b, err := l.blocks.GetBlock(ctx, ip)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get ip block: %w", err)
	}
	return b.ActiveAt(l.now()), nil
}

// Block adds ip to the block list. A zero ttl blocks permanently.
func (l *Limiter) Block(ctx context.Context, ip, reason string, ttl time.Duration) (*domain.IPBlock, error) {
	if ip == "" {
		return nil, fmt.Errorf("ip required: %w", domain.ErrBadRequest)
	}
	now := l.now().UTC()
	b := &domain.IPBlock{IP: ip, Reason: reason, CreatedAt: now}
	if ttl > 0 {
		b.ExpiresAt = now.Add(ttl).Unix()
	}
	if err := l.blocks.PutBlock(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

func (l *Limiter) Unblock(ctx context.Context, ip string) error {
	return l.blocks.DeleteBlock(ctx, ip)
}

// Key builds the bucket key for (ip, op).
func Key(ip, op string) string { return ip + "#" + op }
