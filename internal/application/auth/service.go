// Package auth sequences the password policy, rate limiter, token issuer,
// claim resolver and audit logger into the public account flows.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-auth-nosql/internal/application/audit"
	"github.com/go-auth-nosql/internal/application/claim"
	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/application/token"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/validate"
)

// Generic client-facing failures. The real cause goes to the audit log only.
var (
	ErrSignupUnavailable  = fmt.Errorf("unable to create account, try a different email or sign in: %w", domain.ErrBadRequest)
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)
	ErrInvalidEmail       = fmt.Errorf("a valid email address is required: %w", domain.ErrBadRequest)
	ErrWrongPassword      = fmt.Errorf("current password is incorrect: %w", domain.ErrBadRequest)
	ErrHasPassword        = fmt.Errorf("account already has a password: %w", domain.ErrBadRequest)
	ErrNoPassword         = fmt.Errorf("account has no password, upgrade it instead: %w", domain.ErrBadRequest)
)

type SignupRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"omitempty,max=100"`
	// AnonID is the opaque anonymous identifier the client carried before
	// signing up. Empty means nothing to claim.
	AnonID string `json:"-"`
}

type SignupResult struct {
	User                 *domain.User
	RequiresVerification bool
	ClaimedResources     int
	// ClaimsTruncated reports that some anonymous resources were left unowned
	// because the per-signup claim limit was reached.
	ClaimsTruncated bool
}

type VerifyResult struct {
	AlreadyVerified bool
}

type Service interface {
	Signup(ctx context.Context, req SignupRequest, meta domain.RequestMeta) (*SignupResult, error)
	LoginEmailOnly(ctx context.Context, email string, meta domain.RequestMeta) (*domain.User, error)
	LoginWithPassword(ctx context.Context, email, password string, meta domain.RequestMeta) (*domain.User, error)
	VerifyEmail(ctx context.Context, email, tok string, meta domain.RequestMeta) (*VerifyResult, error)
	ResendVerification(ctx context.Context, email string, meta domain.RequestMeta) error
	RequestPasswordReset(ctx context.Context, email string, meta domain.RequestMeta) error
	CompletePasswordReset(ctx context.Context, email, tok, newPassword string, meta domain.RequestMeta) error
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string, meta domain.RequestMeta) error
	UpgradeAccount(ctx context.Context, userID, password string, meta domain.RequestMeta) (*domain.User, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Patch(ctx context.Context, userID string, p domain.UserPatch) error
}

type limiter interface {
	IsBlocked(ctx context.Context, ip string) (bool, error)
	Enforce(ctx context.Context, ip string, op ratelimit.Operation) error
}

type auditor interface {
	Record(ctx context.Context, e audit.Entry) error
}

type tokenIssuer interface {
	IssueVerification(ctx context.Context, tx domain.Tx, email string) (*domain.IssuedToken, error)
	IssueReset(ctx context.Context, tx domain.Tx, email string) (*domain.IssuedToken, error)
	Lookup(ctx context.Context, kind domain.TokenKind, email, tok string) (*token.Consumed, error)
	Consume(ctx context.Context, tx domain.Tx, kind domain.TokenKind, email, tok string) (*token.Consumed, error)
}

type claimResolver interface {
	Claim(ctx context.Context, tx domain.Tx, anonID, userID string) (claim.Result, error)
}

type passwordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}

type ServiceDeps struct {
	UserRepo   userStore
	Transactor domain.Transactor
	Limiter    limiter
	Audit      auditor
	Tokens     tokenIssuer
	Claims     claimResolver
	Hasher     passwordHasher
}

type service struct {
	users   userStore
	tx      domain.Transactor
	limiter limiter
	audit   auditor
	tokens  tokenIssuer
	claims  claimResolver
	hasher  passwordHasher
	now     func() time.Time
}

func NewService(deps ServiceDeps) Service {
	return &service{
		users:   deps.UserRepo,
		tx:      deps.Transactor,
		limiter: deps.Limiter,
		audit:   deps.Audit,
		tokens:  deps.Tokens,
		claims:  deps.Claims,
		hasher:  deps.Hasher,
		now:     time.Now,
	}
}

// record writes an audit entry. Audit failures never fail a flow; the
// logger already reports them.
func (s *service) record(ctx context.Context, event domain.AuditEvent, userID string, meta domain.RequestMeta, kv ...string) {
	var md map[string]string
	if len(kv) > 0 {
		md = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			md[kv[i]] = kv[i+1]
		}
	}
	_ = s.audit.Record(ctx, audit.Entry{Event: event, UserID: userID, Meta: meta, Metadata: md})
}

// gate runs the block-list check and then the rate-limit budget for op. The
// blocked event is the only audit entry written for a blocked IP.
func (s *service) gate(ctx context.Context, op ratelimit.Operation, meta domain.RequestMeta, blockedEvent domain.AuditEvent) error {
	blocked, err := s.limiter.IsBlocked(ctx, meta.IP)
	if err != nil {
		return err
	}
	if blocked {
		if blockedEvent != "" {
			s.record(ctx, blockedEvent, "", meta)
		}
		return fmt.Errorf("ip %s: %w", meta.IP, domain.ErrBlocked)
	}
	return s.limiter.Enforce(ctx, meta.IP, op)
}

func normalizeEmail(email string) (string, error) {
	e := validate.NormalizeEmail(email)
	if !validate.Email(e) {
		return "", ErrInvalidEmail
	}
	return e, nil
}

func isNotFound(err error) bool { return errors.Is(err, domain.ErrNotFound) }

func isRateLimited(err error) bool { return errors.Is(err, domain.ErrTooManyRequests) }
