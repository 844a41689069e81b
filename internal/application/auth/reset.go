package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-auth-nosql/internal/application/outbox"
	"github.com/go-auth-nosql/internal/application/password"
	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/application/token"
	"github.com/go-auth-nosql/internal/domain"
)

// RequestPasswordReset queues a reset email when the account exists. Callers
// get nil for unknown, throttled and successful requests alike.
func (s *service) RequestPasswordReset(ctx context.Context, email string, meta domain.RequestMeta) error {
	if err := s.gate(ctx, ratelimit.OpResetRequest, meta, domain.EventResetBlocked); err != nil {
		return err
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	u, err := s.users.GetByEmail(ctx, email)
	switch {
	case isNotFound(err):
		s.record(ctx, domain.EventResetNonexistent, "", meta, "email", email)
		return nil
	case err != nil:
		s.record(ctx, domain.EventResetError, "", meta, "email", email, "error", err.Error())
		return fmt.Errorf("lookup user: %w", err)
	}

	err = s.tx.WithTx(ctx, func(tx domain.Tx) error {
		issued, err := s.tokens.IssueReset(ctx, tx, email)
		if err != nil {
			return err
		}
		tx.Enqueue(outbox.PasswordResetEmail(email, issued.Token, s.now()))
		return nil
	})
	switch {
	// A conflict means a concurrent request issued the token first.
	case errors.Is(err, domain.ErrThrottled), errors.Is(err, domain.ErrConflict):
		s.record(ctx, domain.EventResetThrottled, u.UserID, meta)
		return nil
	case err != nil:
		s.record(ctx, domain.EventResetError, u.UserID, meta, "error", err.Error())
		return fmt.Errorf("issue reset token: %w", err)
	}
	s.record(ctx, domain.EventResetRequested, u.UserID, meta)
	return nil
}

// CompletePasswordReset consumes the reset token and replaces the password
// hash in the same transaction.
func (s *service) CompletePasswordReset(ctx context.Context, email, tok, newPassword string, meta domain.RequestMeta) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.ErrTokenInvalid
	}
	if err := s.gate(ctx, ratelimit.OpResetComplete, meta, domain.EventResetBlocked); err != nil {
		return err
	}
	if err := password.Check(newPassword); err != nil {
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	var consumed *token.Consumed
	err = s.tx.WithTx(ctx, func(tx domain.Tx) error {
		var err error
		if consumed, err = s.tokens.Consume(ctx, tx, domain.TokenPasswordReset, email, tok); err != nil {
			return err
		}
		tx.PatchUser(consumed.UserID, domain.UserPatch{PasswordHash: &hash, ResetFailedLoginAttempts: true})
		return nil
	})
	if errors.Is(err, domain.ErrConflict) {
		err = &token.InvalidError{Reason: "consumed_concurrently"}
	}
	switch {
	case errors.Is(err, domain.ErrTokenInvalid):
		s.record(ctx, domain.EventResetFailed, "", meta, "reason", token.ReasonOf(err), "email", email)
		return domain.ErrTokenInvalid
	case err != nil:
		s.record(ctx, domain.EventResetError, "", meta, "email", email, "error", err.Error())
		return fmt.Errorf("complete reset: %w", err)
	}
	s.record(ctx, domain.EventResetCompleted, consumed.UserID, meta)
	return nil
}
