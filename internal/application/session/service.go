package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	jwtinfra "github.com/go-auth-nosql/internal/infrastructure/jwt"
	"github.com/go-auth-nosql/internal/pkg/id"
)

// Result is a freshly issued session credential.
type Result struct {
	Bearer  string
	Session *domain.Session
}

type Service interface {
	Issue(ctx context.Context, u *domain.User) (*Result, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrent(ctx context.Context, sessionID string) (*domain.Session, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
}

type sessionStore interface {
	Put(ctx context.Context, s *domain.Session) error
	Get(ctx context.Context, sessionID string) (*domain.Session, error)
	Disable(ctx context.Context, sessionID string) error
}

type jwtSigner interface {
	Sign(s jwtinfra.Subject) (string, error)
}

type ServiceDeps struct {
	UserRepo    userStore
	SessionRepo sessionStore
	JWTProvider jwtSigner
	SessionTTL  time.Duration
}

type service struct {
	userRepo    userStore
	sessionRepo sessionStore
	jwtProvider jwtSigner
	ttl         time.Duration
	now         func() time.Time
}

func NewService(deps ServiceDeps) Service {
	return &service{
		userRepo:    deps.UserRepo,
		sessionRepo: deps.SessionRepo,
		jwtProvider: deps.JWTProvider,
		ttl:         deps.SessionTTL,
		now:         time.Now,
	}
}

// Issue records a session for u and signs a bearer token bound to it.
func (s *service) Issue(ctx context.Context, u *domain.User) (*Result, error) {
	now := s.now().UTC()
	sess := &domain.Session{
		SessionID: id.New(),
		UserID:    u.UserID,
		Enable:    true,
		ExpiresAt: now.Add(s.ttl).Unix(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.sessionRepo.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	bearer, err := s.jwtProvider.Sign(jwtinfra.Subject{
		UserID:        u.UserID,
		Email:         u.Email,
		EmailVerified: u.IsVerified(),
		Role:          u.Role,
		SessionID:     sess.SessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}
	sess.User = u
	return &Result{Bearer: bearer, Session: sess}, nil
}

func (s *service) Logout(ctx context.Context, sessionID string) error {
	return s.sessionRepo.Disable(ctx, sessionID)
}

func (s *service) GetCurrent(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, err := s.sessionRepo.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.ActiveAt(s.now()) {
		return nil, fmt.Errorf("session expired: %w", domain.ErrUnauthorized)
	}
	u, err := s.userRepo.Get(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}
	sess.User = u
	return sess, nil
}
