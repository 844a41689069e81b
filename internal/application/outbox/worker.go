package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sethvargo/go-retry"
)

var dispatchCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "auth_outbox_dispatch_total",
	Help: "Outbox dispatch outcomes by message kind",
}, []string{"kind", "result"})

// Store leases and settles outbox messages.
type Store interface {
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.OutboxMessage, error)
	MarkSent(ctx context.Context, messageID string, now time.Time) error
	Reschedule(ctx context.Context, messageID string, attempts int, next time.Time, lastErr string) error
	MarkFailed(ctx context.Context, messageID string, attempts int, lastErr string) error
}

type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
	SendWelcomeEmail(ctx context.Context, to, name string) error
}

// Billing returns the provider's customer id when it is known synchronously.
type Billing interface {
	CreateCustomer(ctx context.Context, userID, email, name string) (string, error)
}

type userPatcher interface {
	Patch(ctx context.Context, userID string, p domain.UserPatch) error
}

type Config struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	// Lease is how long a claimed message stays invisible to other workers.
	Lease time.Duration
	// Backoff is the base delay between outbox attempts; it doubles per attempt.
	Backoff time.Duration
	// Immediate retries inside one attempt, for transient blips.
	InlineRetries uint64
}

func DefaultConfig() Config {
	return Config{
		PollInterval:  5 * time.Second,
		BatchSize:     25,
		MaxAttempts:   5,
		Lease:         time.Minute,
		Backoff:       30 * time.Second,
		InlineRetries: 2,
	}
}

type WorkerDeps struct {
	Store   Store
	Mailer  Mailer
	Billing Billing
	Users   userPatcher
	Config  Config
}

type Worker struct {
	store   Store
	mailer  Mailer
	billing Billing
	users   userPatcher
	cfg     Config
	now     func() time.Time
	// inlineBase is the first inline retry delay.
	inlineBase time.Duration
}

func NewWorker(deps WorkerDeps) *Worker {
	return &Worker{
		store:      deps.Store,
		mailer:     deps.Mailer,
		billing:    deps.Billing,
		users:      deps.Users,
		cfg:        deps.Config,
		now:        time.Now,
		inlineBase: 200 * time.Millisecond,
	}
}

// Run dispatches due messages every poll interval until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	slog.Info("outbox worker started", "poll_interval", w.cfg.PollInterval, "batch_size", w.cfg.BatchSize)
	for {
		if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("outbox poll failed", "err", err)
		}
		select {
		case <-ctx.Done():
			slog.Info("outbox worker stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce claims one batch and settles every message in it. It returns the
// number of messages sent.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	msgs, err := w.store.ClaimDue(ctx, w.now(), w.cfg.Lease, w.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim outbox messages: %w", err)
	}
	sent := 0
	for i := range msgs {
		if w.process(ctx, &msgs[i]) {
			sent++
		}
	}
	return sent, nil
}

func (w *Worker) process(ctx context.Context, m *domain.OutboxMessage) bool {
	b := retry.WithMaxRetries(w.cfg.InlineRetries, retry.NewExponential(w.inlineBase))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := w.dispatch(ctx, m); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	attempts := m.Attempts + 1
	log := slog.With("message_id", m.MessageID, "kind", m.Kind, "attempt", attempts)

	if err == nil {
		if mErr := w.store.MarkSent(ctx, m.MessageID, w.now()); mErr != nil {
			log.Warn("failed to mark outbox message sent", "err", mErr)
		}
		dispatchCounter.WithLabelValues(string(m.Kind), "sent").Inc()
		return true
	}

	if attempts >= w.cfg.MaxAttempts {
		log.Error("outbox message failed permanently", "err", err)
		if mErr := w.store.MarkFailed(ctx, m.MessageID, attempts, err.Error()); mErr != nil {
			log.Warn("failed to mark outbox message failed", "err", mErr)
		}
		dispatchCounter.WithLabelValues(string(m.Kind), "failed").Inc()
		return false
	}

	next := w.now().Add(w.backoff(attempts))
	log.Warn("outbox dispatch failed, rescheduling", "err", err, "next_attempt_at", next)
	if mErr := w.store.Reschedule(ctx, m.MessageID, attempts, next, err.Error()); mErr != nil {
		log.Warn("failed to reschedule outbox message", "err", mErr)
	}
	dispatchCounter.WithLabelValues(string(m.Kind), "retry").Inc()
	return false
}

// backoff returns the delay before attempt n+1: Backoff doubled n-1 times,
// capped at one hour.
func (w *Worker) backoff(n int) time.Duration {
	b := retry.WithCappedDuration(time.Hour, retry.NewExponential(w.cfg.Backoff))
	var d time.Duration
	for i := 0; i < n; i++ {
		d, _ = b.Next()
	}
	return d
}

func (w *Worker) dispatch(ctx context.Context, m *domain.OutboxMessage) error {
	p := m.Payload
	switch m.Kind {
	case domain.OutboxVerificationEmail:
		return w.mailer.SendVerificationEmail(ctx, p[domain.PayloadTo], p[domain.PayloadToken])
	case domain.OutboxPasswordResetMail:
		return w.mailer.SendPasswordResetEmail(ctx, p[domain.PayloadTo], p[domain.PayloadToken])
	case domain.OutboxWelcomeEmail:
		return w.mailer.SendWelcomeEmail(ctx, p[domain.PayloadTo], p[domain.PayloadName])
	case domain.OutboxBillingCustomer:
		userID := p[domain.PayloadUserID]
		customerID, err := w.billing.CreateCustomer(ctx, userID, p[domain.PayloadTo], p[domain.PayloadName])
		if err != nil {
			return err
		}
		if customerID != "" {
			if err := w.users.Patch(ctx, userID, domain.UserPatch{BillingCustomerID: &customerID}); err != nil {
				slog.Warn("failed to store billing customer id", "user_id", userID, "err", err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown outbox kind %q", m.Kind)
	}
}
