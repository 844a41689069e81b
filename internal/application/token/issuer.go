// Package token issues and consumes single-use email verification and
// password reset tokens.
package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	pkgtoken "github.com/go-auth-nosql/internal/pkg/token"
)

// Reasons carried by InvalidError. They are for the audit log only.
const (
	ReasonNotFound    = "not_found"
	ReasonExpired     = "expired"
	ReasonUsed        = "already_used"
	ReasonUnknownUser = "unknown_user"
	ReasonEmpty       = "empty_token"
)

// InvalidError explains why a token was rejected. Callers must not echo
// Reason to clients.
type InvalidError struct {
	Reason string
}

func (e *InvalidError) Error() string { return "token invalid: " + e.Reason }
func (e *InvalidError) Unwrap() error { return domain.ErrTokenInvalid }

// ReasonOf returns the audit reason behind err, or "error" when err is not an
// *InvalidError.
func ReasonOf(err error) string {
	var ie *InvalidError
	if errors.As(err, &ie) {
		return ie.Reason
	}
	return "error"
}

type verificationStore interface {
	Get(ctx context.Context, identifier, token string) (*domain.VerificationToken, error)
	ListByIdentifier(ctx context.Context, identifier string) ([]domain.VerificationToken, error)
}

type resetStore interface {
	Get(ctx context.Context, email, token string) (*domain.PasswordResetToken, error)
	ListByEmail(ctx context.Context, email string) ([]domain.PasswordResetToken, error)
}

type userLookup interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type Config struct {
	VerificationTTL time.Duration
	ResetTTL        time.Duration
	// Throttle is the minimum gap between two tokens of the same kind for one email.
	Throttle time.Duration
}

func DefaultConfig() Config {
	return Config{VerificationTTL: 24 * time.Hour, ResetTTL: 24 * time.Hour, Throttle: 5 * time.Minute}
}

type Issuer struct {
	verifications verificationStore
	resets        resetStore
	users         userLookup
	cfg           Config
	now           func() time.Time
	generate      func() (string, error)
}

type IssuerDeps struct {
	VerificationRepo verificationStore
	ResetRepo        resetStore
	UserRepo         userLookup
	Config           Config
}

func NewIssuer(deps IssuerDeps) *Issuer {
	return &Issuer{
		verifications: deps.VerificationRepo,
		resets:        deps.ResetRepo,
		users:         deps.UserRepo,
		cfg:           deps.Config,
		now:           time.Now,
		generate:      pkgtoken.New,
	}
}

// WithClock replaces the time source. Intended for tests.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

// Consumed identifies the account a token belonged to.
type Consumed struct {
	Kind   domain.TokenKind
	Email  string
	UserID string
}

// IssueVerification buffers a new verification token for email in tx. It
// returns domain.ErrThrottled if one was issued within the throttle window.
// A concurrent issue that passes the same read fails the commit with
// domain.ErrConflict.
func (i *Issuer) IssueVerification(ctx context.Context, tx domain.Tx, email string) (*domain.IssuedToken, error) {
	existing, err := i.verifications.ListByIdentifier(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list verification tokens: %w", err)
	}
	now := i.now().UTC()
	for _, t := range existing {
		if i.recent(t.CreatedAt, t.ExpiresAt, now) {
			return nil, fmt.Errorf("verification token issued recently: %w", domain.ErrThrottled)
		}
	}
	tok, err := i.generate()
	if err != nil {
		return nil, err
	}
	expires := now.Add(i.cfg.VerificationTTL)
	tx.ReserveIssue(domain.TokenVerification, email, now, i.cfg.Throttle)
	tx.PutVerificationToken(&domain.VerificationToken{
		Identifier: email,
		Token:      tok,
		ExpiresAt:  expires.Unix(),
		CreatedAt:  now.Unix(),
	})
	return &domain.IssuedToken{Kind: domain.TokenVerification, Email: email, Token: tok, Expires: expires}, nil
}

// IssueReset is IssueVerification for the password reset namespace.
func (i *Issuer) IssueReset(ctx context.Context, tx domain.Tx, email string) (*domain.IssuedToken, error) {
	existing, err := i.resets.ListByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list reset tokens: %w", err)
	}
	now := i.now().UTC()
	for _, t := range existing {
		if i.recent(t.CreatedAt, t.ExpiresAt, now) {
			return nil, fmt.Errorf("reset token issued recently: %w", domain.ErrThrottled)
		}
	}
	tok, err := i.generate()
	if err != nil {
		return nil, err
	}
	expires := now.Add(i.cfg.ResetTTL)
	tx.ReserveIssue(domain.TokenPasswordReset, email, now, i.cfg.Throttle)
	tx.PutResetToken(&domain.PasswordResetToken{
		Email:     email,
		Token:     tok,
		ExpiresAt: expires.Unix(),
		CreatedAt: now.Unix(),
	})
	return &domain.IssuedToken{Kind: domain.TokenPasswordReset, Email: email, Token: tok, Expires: expires}, nil
}

// Lookup checks that token is live for email without consuming it.
func (i *Issuer) Lookup(ctx context.Context, kind domain.TokenKind, email, token string) (*Consumed, error) {
	if token == "" {
		return nil, &InvalidError{Reason: ReasonEmpty}
	}
	now := i.now().Unix()
	switch kind {
	case domain.TokenVerification:
		v, err := i.verifications.Get(ctx, email, token)
		if err != nil {
			return nil, notFound(err)
		}
		if v.ExpiresAt <= now {
			return nil, &InvalidError{Reason: ReasonExpired}
		}
	case domain.TokenPasswordReset:
		r, err := i.resets.Get(ctx, email, token)
		if err != nil {
			return nil, notFound(err)
		}
		if r.Used {
			return nil, &InvalidError{Reason: ReasonUsed}
		}
		if r.ExpiresAt <= now {
			return nil, &InvalidError{Reason: ReasonExpired}
		}
	default:
		return nil, fmt.Errorf("unknown token kind %q", kind)
	}
	u, err := i.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, &InvalidError{Reason: ReasonUnknownUser}
		}
		return nil, err
	}
	return &Consumed{Kind: kind, Email: email, UserID: u.UserID}, nil
}

// Consume validates token and buffers its consumption in tx together with
// the removal of every sibling token of the same kind for email. The
// consumption is conditional, so of two transactions presenting the same
// token only one commits.
func (i *Issuer) Consume(ctx context.Context, tx domain.Tx, kind domain.TokenKind, email, token string) (*Consumed, error) {
	c, err := i.Lookup(ctx, kind, email, token)
	if err != nil {
		return nil, err
	}
	now := i.now().UTC()
	switch kind {
	case domain.TokenVerification:
		siblings, err := i.verifications.ListByIdentifier(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("list verification tokens: %w", err)
		}
		tx.ConsumeVerificationToken(email, token, now)
		for _, s := range siblings {
			if s.Token != token {
				tx.DeleteVerificationToken(email, s.Token)
			}
		}
	case domain.TokenPasswordReset:
		siblings, err := i.resets.ListByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("list reset tokens: %w", err)
		}
		tx.ConsumeResetToken(email, token, now)
		for _, s := range siblings {
			if s.Token != token {
				tx.DeleteResetToken(email, s.Token)
			}
		}
	}
	return c, nil
}

func (i *Issuer) recent(createdAt, expiresAt int64, now time.Time) bool {
	return expiresAt > now.Unix() && createdAt > now.Add(-i.cfg.Throttle).Unix()
}

func notFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return &InvalidError{Reason: ReasonNotFound}
	}
	return err
}
