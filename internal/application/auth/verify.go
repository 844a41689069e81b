package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-auth-nosql/internal/application/outbox"
	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/application/token"
	"github.com/go-auth-nosql/internal/domain"
)

// VerifyEmail consumes a verification token and stamps the account verified.
// Repeating it for an account that is already verified succeeds.
func (s *service) VerifyEmail(ctx context.Context, email, tok string, meta domain.RequestMeta) (*VerifyResult, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := s.gate(ctx, ratelimit.OpEmailVerify, meta, domain.EventEmailVerificationBlocked); err != nil {
		return nil, err
	}

	found, err := s.tokens.Lookup(ctx, domain.TokenVerification, email, tok)
	if err != nil {
		return nil, s.verificationFailed(ctx, email, meta, err)
	}
	u, err := s.users.Get(ctx, found.UserID)
	if err != nil {
		s.record(ctx, domain.EventEmailVerificationError, found.UserID, meta, "error", err.Error())
		return nil, fmt.Errorf("load user: %w", err)
	}
	if u.IsVerified() {
		return &VerifyResult{AlreadyVerified: true}, nil
	}

	now := s.now().UTC()
	err = s.tx.WithTx(ctx, func(tx domain.Tx) error {
		if _, err := s.tokens.Consume(ctx, tx, domain.TokenVerification, email, tok); err != nil {
			return err
		}
		tx.PatchUser(u.UserID, domain.UserPatch{EmailVerified: &now})
		tx.Enqueue(outbox.WelcomeEmail(u.Email, u.Name, now))
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			// Another request consumed the same token first.
			err = &token.InvalidError{Reason: "consumed_concurrently"}
		}
		return nil, s.verificationFailed(ctx, email, meta, err)
	}

	s.record(ctx, domain.EventEmailVerified, u.UserID, meta)
	return &VerifyResult{}, nil
}

func (s *service) verificationFailed(ctx context.Context, email string, meta domain.RequestMeta, err error) error {
	if errors.Is(err, domain.ErrTokenInvalid) {
		s.record(ctx, domain.EventEmailVerificationFailed, "", meta, "reason", token.ReasonOf(err), "email", email)
		return domain.ErrTokenInvalid
	}
	s.record(ctx, domain.EventEmailVerificationError, "", meta, "email", email, "error", err.Error())
	return fmt.Errorf("verify email: %w", err)
}

// ResendVerification queues a fresh verification email for an existing,
// unverified account. The outcome is never revealed: every path that is not
// a rate limit or malformed input returns nil.
func (s *service) ResendVerification(ctx context.Context, email string, meta domain.RequestMeta) error {
	// Malformed requests spend the budget too.
	if err := s.gate(ctx, ratelimit.OpEmailResend, meta, domain.EventEmailVerificationBlocked); err != nil {
		return err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case isNotFound(err):
		s.record(ctx, domain.EventResendSkipped, "", meta, "reason", "unknown_email", "email", email)
		return nil
	case err != nil:
		s.record(ctx, domain.EventEmailVerificationError, "", meta, "email", email, "error", err.Error())
		return fmt.Errorf("lookup user: %w", err)
	case u.IsVerified():
		s.record(ctx, domain.EventResendSkipped, u.UserID, meta, "reason", "already_verified")
		return nil
	}

	err = s.tx.WithTx(ctx, func(tx domain.Tx) error {
		issued, err := s.tokens.IssueVerification(ctx, tx, email)
		if err != nil {
			return err
		}
		tx.Enqueue(outbox.VerificationEmail(email, issued.Token, s.now()))
		return nil
	})
	switch {
	case errors.Is(err, domain.ErrThrottled), errors.Is(err, domain.ErrConflict):
		s.record(ctx, domain.EventResendThrottled, u.UserID, meta)
		return nil
	case err != nil:
		s.record(ctx, domain.EventEmailVerificationError, u.UserID, meta, "error", err.Error())
		return fmt.Errorf("issue verification: %w", err)
	}
	s.record(ctx, domain.EventResendSent, u.UserID, meta)
	return nil
}
