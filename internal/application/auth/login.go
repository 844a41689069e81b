package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-auth-nosql/internal/application/outbox"
	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
)

// dummyHash is verified against when the email is unknown so both failure
// paths cost one bcrypt comparison.
const dummyHash = "$2a$12$C6UzMDM.H6dfI/f/IKcEeO5Qb6x8xJzmtYmxEhJ4HyYLlRVgyWM1W"

// LoginEmailOnly gets or creates the account for email without a password.
// Accounts that already hold a password must use LoginWithPassword.
func (s *service) LoginEmailOnly(ctx context.Context, email string, meta domain.RequestMeta) (*domain.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := s.gate(ctx, ratelimit.OpLogin, meta, domain.EventLoginBlocked); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case isNotFound(err):
		if u, err = s.createEmailOnly(ctx, email, meta); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	// Narrower than a plain get-or-create: an account that has set a password
	// can no longer be entered with the email alone.
	if u.HasPassword() {
		s.record(ctx, domain.EventLoginFailed, u.UserID, meta, "method", string(domain.SignupEmailOnly), "reason", "password_required")
		return nil, ErrInvalidCredentials
	}
	return s.loginSucceeded(ctx, u, domain.SignupEmailOnly, meta)
}

func (s *service) createEmailOnly(ctx context.Context, email string, meta domain.RequestMeta) (*domain.User, error) {
	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.At(now),
		Email:        email,
		Role:         domain.RoleUser,
		SignupMethod: domain.SignupEmailOnly,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := s.tx.WithTx(ctx, func(tx domain.Tx) error {
		tx.CreateUser(u)
		tx.Enqueue(outbox.BillingCustomer(u, now))
		return nil
	})
	if errors.Is(err, domain.ErrConflict) {
		// Lost a race with a concurrent first login for the same email.
		return s.users.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.record(ctx, domain.EventAccountCreated, u.UserID, meta, "method", string(domain.SignupEmailOnly))
	return u, nil
}

// LoginWithPassword authenticates email and password. Unknown email and wrong
// password produce the same error.
func (s *service) LoginWithPassword(ctx context.Context, email, pw string, meta domain.RequestMeta) (*domain.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if err := s.gate(ctx, ratelimit.OpLogin, meta, domain.EventLoginBlocked); err != nil {
		return nil, err
	}

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("lookup user: %w", err)
		}
		s.hasher.Verify(pw, dummyHash)
		s.record(ctx, domain.EventLoginFailed, "", meta, "method", string(domain.SignupPassword), "reason", "unknown_email", "email", email)
		return nil, ErrInvalidCredentials
	}
	if !u.HasPassword() {
		s.hasher.Verify(pw, dummyHash)
		s.record(ctx, domain.EventLoginFailed, u.UserID, meta, "method", string(domain.SignupPassword), "reason", "no_password")
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(pw, u.PasswordHash) {
		if err := s.users.Patch(ctx, u.UserID, domain.UserPatch{IncrementFailedAttempts: true}); err != nil {
			return nil, fmt.Errorf("record failed attempt: %w", err)
		}
		s.record(ctx, domain.EventLoginFailed, u.UserID, meta, "method", string(domain.SignupPassword), "reason", "wrong_password")
		return nil, ErrInvalidCredentials
	}
	return s.loginSucceeded(ctx, u, domain.SignupPassword, meta)
}

func (s *service) loginSucceeded(ctx context.Context, u *domain.User, method domain.SignupMethod, meta domain.RequestMeta) (*domain.User, error) {
	now := s.now().UTC()
	p := domain.UserPatch{
		LastLoginAt:              &now,
		IncrementLoginCount:      true,
		ResetFailedLoginAttempts: true,
	}
	if err := s.users.Patch(ctx, u.UserID, p); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}
	p.Apply(u, now)
	s.record(ctx, domain.EventLogin, u.UserID, meta, "method", string(method))
	return u, nil
}
