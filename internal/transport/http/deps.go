package http

import (
	"context"
	"time"

	"github.com/go-auth-nosql/internal/application/audit"
	"github.com/go-auth-nosql/internal/application/auth"
	"github.com/go-auth-nosql/internal/application/claim"
	"github.com/go-auth-nosql/internal/application/password"
	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/application/session"
	"github.com/go-auth-nosql/internal/application/token"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
)

// UserRepository is the minimal interface the router requires from a user store.
type UserRepository interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Patch(ctx context.Context, userID string, p domain.UserPatch) error
}

// SessionRepository is the minimal interface the router requires from a session store.
type SessionRepository interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Disable(ctx context.Context, sessionID string) error
}

// VerificationRepository reads verification tokens; writes go through domain.Tx.
type VerificationRepository interface {
	Get(ctx context.Context, identifier, token string) (*domain.VerificationToken, error)
	ListByIdentifier(ctx context.Context, identifier string) ([]domain.VerificationToken, error)
}

// ResetRepository reads password reset tokens; writes go through domain.Tx.
type ResetRepository interface {
	Get(ctx context.Context, email, token string) (*domain.PasswordResetToken, error)
	ListByEmail(ctx context.Context, email string) ([]domain.PasswordResetToken, error)
}

// AuditRepository is the append-only audit trail.
type AuditRepository interface {
	audit.Writer
	audit.Reader
}

// ResourceRepository lists anonymous resources awaiting a claim.
type ResourceRepository interface {
	ListUnclaimed(ctx context.Context, anonID string, limit int) ([]domain.AnonymousResource, error)
}

// Store is every backend the HTTP service needs. Both the memory and the
// DynamoDB drivers satisfy it.
type Store struct {
	Transactor         domain.Transactor
	Users              UserRepository
	Sessions           SessionRepository
	VerificationTokens VerificationRepository
	ResetTokens        ResetRepository
	AuditLogs          AuditRepository
	RateLimits         ratelimit.CounterStore
	Blocks             ratelimit.BlockStore
	Resources          ResourceRepository
	Pinger             interface{ Ping(ctx context.Context) error }
}

// Deps holds the wired services the router serves.
type Deps struct {
	Auth        auth.Service
	Sessions    session.Service
	Limiter     *ratelimit.Limiter
	Audit       *audit.Logger
	JWTProvider *jwtinfra.Provider
	Store       Store
}

// NewDeps wires the application services over store.
func NewDeps(cfg *config.Config, store Store, provider *jwtinfra.Provider) *Deps {
	limiter := ratelimit.NewLimiter(store.RateLimits, store.Blocks, ratelimit.DefaultPolicy())
	logger := audit.NewLogger(store.AuditLogs, store.AuditLogs)
	issuer := token.NewIssuer(token.IssuerDeps{
		VerificationRepo: store.VerificationTokens,
		ResetRepo:        store.ResetTokens,
		UserRepo:         store.Users,
		Config: token.Config{
			VerificationTTL: cfg.VerificationTokenTTL,
			ResetTTL:        cfg.ResetTokenTTL,
			Throttle:        cfg.TokenThrottle,
		},
	})
	authSvc := auth.NewService(auth.ServiceDeps{
		UserRepo:   store.Users,
		Transactor: store.Transactor,
		Limiter:    limiter,
		Audit:      logger,
		Tokens:     issuer,
		Claims:     claim.NewResolver(store.Resources),
		Hasher:     password.NewHasher(cfg.BcryptCost),
	})
	sessionSvc := session.NewService(session.ServiceDeps{
		UserRepo:    store.Users,
		SessionRepo: store.Sessions,
		JWTProvider: provider,
		SessionTTL:  sessionTTL(cfg),
	})
	return &Deps{
		Auth:        authSvc,
		Sessions:    sessionSvc,
		Limiter:     limiter,
		Audit:       logger,
		JWTProvider: provider,
		Store:       store,
	}
}

func sessionTTL(cfg *config.Config) time.Duration {
	if cfg.JWTExpiry > 0 {
		return cfg.JWTExpiry
	}
	return 30 * 24 * time.Hour
}
