// Package outbox builds side-effect messages that commit with the state
// change that caused them, and dispatches them from a separate worker.
package outbox

import (
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
)

// NewMessage returns a pending message due immediately.
func NewMessage(kind domain.OutboxKind, payload map[string]string, now time.Time) *domain.OutboxMessage {
	now = now.UTC()
	return &domain.OutboxMessage{
		MessageID:     id.At(now),
		Kind:          kind,
		Payload:       payload,
		Status:        domain.OutboxPending,
		NextAttemptAt: now.Unix(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func VerificationEmail(to, token string, now time.Time) *domain.OutboxMessage {
	return NewMessage(domain.OutboxVerificationEmail, map[string]string{
		domain.PayloadTo:    to,
		domain.PayloadToken: token,
	}, now)
}

func PasswordResetEmail(to, token string, now time.Time) *domain.OutboxMessage {
	return NewMessage(domain.OutboxPasswordResetMail, map[string]string{
		domain.PayloadTo:    to,
		domain.PayloadToken: token,
	}, now)
}

func WelcomeEmail(to, name string, now time.Time) *domain.OutboxMessage {
	return NewMessage(domain.OutboxWelcomeEmail, map[string]string{
		domain.PayloadTo:   to,
		domain.PayloadName: name,
	}, now)
}

func BillingCustomer(u *domain.User, now time.Time) *domain.OutboxMessage {
	return NewMessage(domain.OutboxBillingCustomer, map[string]string{
		domain.PayloadUserID: u.UserID,
		domain.PayloadTo:     u.Email,
		domain.PayloadName:   u.Name,
	}, now)
}
