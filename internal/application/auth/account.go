package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-auth-nosql/internal/application/password"
	"github.com/go-auth-nosql/internal/domain"
)

// ChangePassword replaces the password of a signed-in user after checking the
// current one. Every attempt is audited.
func (s *service) ChangePassword(ctx context.Context, userID, current, next string, meta domain.RequestMeta) error {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if !u.HasPassword() {
		s.record(ctx, domain.EventPasswordChangeFailed, userID, meta, "reason", "no_password")
		return ErrNoPassword
	}
	if !s.hasher.Verify(current, u.PasswordHash) {
		s.record(ctx, domain.EventPasswordChangeFailed, userID, meta, "reason", "wrong_current_password")
		return ErrWrongPassword
	}
	if err := password.Check(next); err != nil {
		s.record(ctx, domain.EventPasswordChangeFailed, userID, meta, "reason", "policy")
		return err
	}
	hash, err := s.hasher.Hash(next)
	if err != nil {
		return err
	}
	if err := s.users.Patch(ctx, userID, domain.UserPatch{PasswordHash: &hash}); err != nil {
		s.record(ctx, domain.EventPasswordChangeFailed, userID, meta, "reason", "store", "error", err.Error())
		return fmt.Errorf("update password: %w", err)
	}
	s.record(ctx, domain.EventPasswordChanged, userID, meta)
	return nil
}

// UpgradeAccount adds a first password to an email-only account and marks
// its email verified. It fails if a password already exists, including one
// set concurrently.
func (s *service) UpgradeAccount(ctx context.Context, userID, pw string, meta domain.RequestMeta) (*domain.User, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u.HasPassword() {
		s.record(ctx, domain.EventAccountUpgradeFailed, userID, meta, "reason", "has_password")
		return nil, ErrHasPassword
	}
	if err := password.Check(pw); err != nil {
		s.record(ctx, domain.EventAccountUpgradeFailed, userID, meta, "reason", "policy")
		return nil, err
	}
	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	method := domain.SignupPassword
	p := domain.UserPatch{PasswordHash: &hash, SignupMethod: &method, RequireNoPassword: true}
	if !u.IsVerified() {
		p.EmailVerified = &now
	}
	if err := s.users.Patch(ctx, userID, p); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.record(ctx, domain.EventAccountUpgradeFailed, userID, meta, "reason", "has_password")
			return nil, ErrHasPassword
		}
		return nil, fmt.Errorf("upgrade account: %w", err)
	}
	p.Apply(u, now)
	s.record(ctx, domain.EventAccountUpgraded, userID, meta, "from", "email_only", "to", "password_protected")
	return u, nil
}
