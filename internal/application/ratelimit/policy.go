package ratelimit

import (
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

// Operation names a rate-limited flow. It is the second half of every bucket key.
type Operation string

const (
	OpSignup        Operation = "signup"
	OpLogin         Operation = "login"
	OpEmailVerify   Operation = "email_verify"
	OpEmailResend   Operation = "email_resend"
	OpResetRequest  Operation = "password_reset_request"
	OpResetComplete Operation = "password_reset_complete"
)

// Policy maps each operation to its budget.
type Policy map[Operation]domain.Budget

// DefaultPolicy holds the per-IP budgets used by the auth flows.
func DefaultPolicy() Policy {
	return Policy{
		OpSignup:        {MaxAttempts: 3, Window: 5 * time.Minute},
		OpLogin:         {MaxAttempts: 10, Window: 15 * time.Minute},
		OpEmailVerify:   {MaxAttempts: 10, Window: 15 * time.Minute},
		OpEmailResend:   {MaxAttempts: 3, Window: 15 * time.Minute},
		OpResetRequest:  {MaxAttempts: 3, Window: 15 * time.Minute},
		OpResetComplete: {MaxAttempts: 5, Window: 15 * time.Minute},
	}
}
