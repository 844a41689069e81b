package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-auth-nosql/internal/application/claim"
	"github.com/go-auth-nosql/internal/application/outbox"
	"github.com/go-auth-nosql/internal/application/password"
	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/id"
)

// signupAttempts bounds retries when the signup transaction loses a race on
// an anonymous resource.
const signupAttempts = 2

func (s *service) Signup(ctx context.Context, req SignupRequest, meta domain.RequestMeta) (*SignupResult, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, err
	}
	if err := s.gate(ctx, ratelimit.OpSignup, meta, domain.EventSignupBlocked); err != nil {
		if isRateLimited(err) {
			s.record(ctx, domain.EventSignupRateLimited, "", meta, "email", email)
		}
		return nil, err
	}
	if err := password.Check(req.Password); err != nil {
		return nil, err
	}

	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		s.record(ctx, domain.EventSignupDuplicate, existing.UserID, meta, "email", email)
		return nil, ErrSignupUnavailable
	case !isNotFound(err):
		s.record(ctx, domain.EventSignupError, "", meta, "email", email, "error", err.Error())
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		s.record(ctx, domain.EventSignupError, "", meta, "email", email, "error", err.Error())
		return nil, err
	}

	var (
		u       *domain.User
		claimed claim.Result
	)
	for attempt := 1; ; attempt++ {
		u, claimed, err = s.createAccount(ctx, email, req.Name, hash, req.AnonID)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrConflict) || attempt == signupAttempts {
			s.record(ctx, domain.EventSignupError, "", meta, "email", email, "error", err.Error())
			return nil, fmt.Errorf("create account: %w", err)
		}
		// A concurrent signup for the same email looks exactly like a duplicate.
		if dup, lookupErr := s.users.GetByEmail(ctx, email); lookupErr == nil {
			s.record(ctx, domain.EventSignupDuplicate, dup.UserID, meta, "email", email)
			return nil, ErrSignupUnavailable
		}
	}

	kv := []string{"method", string(domain.SignupPassword), "claimed_resources", strconv.Itoa(claimed.Claimed)}
	if claimed.Truncated {
		kv = append(kv, "claims_truncated", "true")
	}
	s.record(ctx, domain.EventAccountCreated, u.UserID, meta, kv...)
	return &SignupResult{
		User:                 u,
		RequiresVerification: true,
		ClaimedResources:     claimed.Claimed,
		ClaimsTruncated:      claimed.Truncated,
	}, nil
}

// createAccount commits the user, its first verification token, the claimed
// anonymous resources and the mail and billing messages in one transaction.
func (s *service) createAccount(ctx context.Context, email, name, hash, anonID string) (*domain.User, claim.Result, error) {
	now := s.now().UTC()
	u := &domain.User{
		UserID:       id.At(now),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         domain.RoleUser,
		SignupMethod: domain.SignupPassword,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var claimed claim.Result
	err := s.tx.WithTx(ctx, func(tx domain.Tx) error {
		tx.CreateUser(u)
		issued, err := s.tokens.IssueVerification(ctx, tx, email)
		if err != nil {
			if errors.Is(err, domain.ErrThrottled) {
				return fmt.Errorf("verification token pending for new email: %w", domain.ErrConflict)
			}
			return err
		}
		if claimed, err = s.claims.Claim(ctx, tx, anonID, u.UserID); err != nil {
			return err
		}
		tx.Enqueue(outbox.VerificationEmail(email, issued.Token, now))
		tx.Enqueue(outbox.BillingCustomer(u, now))
		return nil
	})
	if err != nil {
		return nil, claim.Result{}, err
	}
	return u, claimed, nil
}
