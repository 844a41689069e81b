package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

// UserRepo -------------------------------------------------------------------

type UserRepo struct{ db *DB }

func (r *UserRepo) Get(_ context.Context, userID string) (*domain.User, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	u, ok := r.db.users[userID]
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return &u, nil
}

func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.db.mu.Lock()
	userID, ok := r.db.emails[email]
	r.db.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("user not found: %w", domain.ErrNotFound)
	}
	return r.Get(ctx, userID)
}

func (r *UserRepo) Patch(_ context.Context, userID string, p domain.UserPatch) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	if err := r.db.checkPatch(userID, p); err != nil {
		return err
	}
	r.db.applyPatch(userID, p)
	return nil
}

// SessionRepo ----------------------------------------------------------------

type SessionRepo struct{ db *DB }

func (r *SessionRepo) Put(_ context.Context, s *domain.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	cp := *s
	cp.User = nil
	r.db.sessions[s.SessionID] = cp
	return nil
}

func (r *SessionRepo) Get(_ context.Context, sessionID string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	return &s, nil
}

func (r *SessionRepo) Disable(_ context.Context, sessionID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	s, ok := r.db.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not found: %w", domain.ErrNotFound)
	}
	s.Enable = false
	s.UpdatedAt = time.Now().UTC()
	r.db.sessions[sessionID] = s
	return nil
}

// VerificationRepo -----------------------------------------------------------

type VerificationRepo struct{ db *DB }

func (r *VerificationRepo) Get(_ context.Context, identifier, token string) (*domain.VerificationToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	v, ok := r.db.verifyTok[tokenKey{identifier, token}]
	if !ok {
		return nil, fmt.Errorf("verification token not found: %w", domain.ErrNotFound)
	}
	return &v, nil
}

func (r *VerificationRepo) ListByIdentifier(_ context.Context, identifier string) ([]domain.VerificationToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.VerificationToken
	for k, v := range r.db.verifyTok {
		if k.owner == identifier {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// ResetRepo ------------------------------------------------------------------

type ResetRepo struct{ db *DB }

func (r *ResetRepo) Get(_ context.Context, email, token string) (*domain.PasswordResetToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	t, ok := r.db.resetTok[tokenKey{email, token}]
	if !ok {
		return nil, fmt.Errorf("reset token not found: %w", domain.ErrNotFound)
	}
	return &t, nil
}

func (r *ResetRepo) ListByEmail(_ context.Context, email string) ([]domain.PasswordResetToken, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.PasswordResetToken
	for k, t := range r.db.resetTok {
		if k.owner == email {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	return out, nil
}

// AuditRepo ------------------------------------------------------------------

type AuditRepo struct{ db *DB }

func (r *AuditRepo) Append(_ context.Context, l *domain.AuditLog) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, existing := range r.db.auditLogs {
		if existing.LogID == l.LogID {
			return fmt.Errorf("audit log %s exists: %w", l.LogID, domain.ErrConflict)
		}
	}
	cp := *l
	r.db.auditLogs = append(r.db.auditLogs, cp)
	return nil
}

// ListByUser returns the newest entries first.
func (r *AuditRepo) ListByUser(_ context.Context, userID string, limit int) ([]domain.AuditLog, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.AuditLog
	for i := len(r.db.auditLogs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		l := r.db.auditLogs[i]
		if l.UserID != nil && *l.UserID == userID {
			out = append(out, l)
		}
	}
	return out, nil
}

// All returns every entry in append order.
func (r *AuditRepo) All() []domain.AuditLog {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return append([]domain.AuditLog(nil), r.db.auditLogs...)
}

// RateLimitRepo --------------------------------------------------------------

type RateLimitRepo struct{ db *DB }

func (r *RateLimitRepo) ConsumeAttempt(_ context.Context, key string, budget domain.Budget, now time.Time) (domain.Decision, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	windowMs := budget.Window.Milliseconds()
	nowMs := now.UnixMilli()
	c, ok := r.db.counters[key]
	if !ok || nowMs-c.WindowStart >= windowMs {
		c = domain.RateLimitCounter{Key: key, WindowStart: nowMs}
	}
	if c.Attempts >= budget.MaxAttempts {
		retry := time.Duration(c.WindowStart+windowMs-nowMs) * time.Millisecond
		return domain.Decision{Allowed: false, RetryAfter: retry}, nil
	}
	c.Attempts++
	c.ExpiresAt = (c.WindowStart+windowMs)/1000 + 1
	r.db.counters[key] = c
	return domain.Decision{Allowed: true, Remaining: budget.MaxAttempts - c.Attempts}, nil
}

// BlockRepo ------------------------------------------------------------------

type BlockRepo struct{ db *DB }

func (r *BlockRepo) GetBlock(_ context.Context, ip string) (*domain.IPBlock, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	b, ok := r.db.blocks[ip]
	if !ok {
		return nil, fmt.Errorf("ip block not found: %w", domain.ErrNotFound)
	}
	return &b, nil
}

func (r *BlockRepo) PutBlock(_ context.Context, b *domain.IPBlock) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.blocks[b.IP] = *b
	return nil
}

func (r *BlockRepo) DeleteBlock(_ context.Context, ip string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	delete(r.db.blocks, ip)
	return nil
}

// ResourceRepo ---------------------------------------------------------------

type ResourceRepo struct{ db *DB }

// Put stores a resource as-is. Anonymous resources are created outside this
// service; Put exists for seeding.
func (r *ResourceRepo) Put(_ context.Context, res *domain.AnonymousResource) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.resources[res.ResourceID] = *res
	return nil
}

func (r *ResourceRepo) Get(_ context.Context, resourceID string) (*domain.AnonymousResource, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	res, ok := r.db.resources[resourceID]
	if !ok {
		return nil, fmt.Errorf("resource not found: %w", domain.ErrNotFound)
	}
	return &res, nil
}

func (r *ResourceRepo) ListUnclaimed(_ context.Context, anonID string, limit int) ([]domain.AnonymousResource, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.AnonymousResource
	for _, res := range r.db.resources {
		if res.AnonID == anonID && res.OwnerID == "" {
			out = append(out, res)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// OutboxRepo -----------------------------------------------------------------

type OutboxRepo struct{ db *DB }

// ClaimDue moves up to limit due messages to processing and leases them until
// now+lease. Processing messages whose lease lapsed are reclaimed.
func (r *OutboxRepo) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]domain.OutboxMessage, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []domain.OutboxMessage
	for _, id := range r.db.outboxOrder {
		if limit > 0 && len(out) >= limit {
			break
		}
		m := r.db.outbox[id]
		if m.Status != domain.OutboxPending && m.Status != domain.OutboxProcessing {
			continue
		}
		if m.NextAttemptAt > now.Unix() {
			continue
		}
		m.Status = domain.OutboxProcessing
		m.NextAttemptAt = now.Add(lease).Unix()
		m.UpdatedAt = now
		r.db.outbox[id] = m
		out = append(out, m)
	}
	return out, nil
}

func (r *OutboxRepo) MarkSent(_ context.Context, messageID string, now time.Time) error {
	return r.update(messageID, func(m *domain.OutboxMessage) {
		m.Status = domain.OutboxSent
		m.UpdatedAt = now
	})
}

func (r *OutboxRepo) Reschedule(_ context.Context, messageID string, attempts int, next time.Time, lastErr string) error {
	return r.update(messageID, func(m *domain.OutboxMessage) {
		m.Status = domain.OutboxPending
		m.Attempts = attempts
		m.NextAttemptAt = next.Unix()
		m.LastError = lastErr
		m.UpdatedAt = time.Now().UTC()
	})
}

func (r *OutboxRepo) MarkFailed(_ context.Context, messageID string, attempts int, lastErr string) error {
	return r.update(messageID, func(m *domain.OutboxMessage) {
		m.Status = domain.OutboxFailed
		m.Attempts = attempts
		m.LastError = lastErr
		m.UpdatedAt = time.Now().UTC()
	})
}

// List returns every message in enqueue order.
func (r *OutboxRepo) List() []domain.OutboxMessage {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	out := make([]domain.OutboxMessage, 0, len(r.db.outboxOrder))
	for _, id := range r.db.outboxOrder {
		out = append(out, r.db.outbox[id])
	}
	return out
}

func (r *OutboxRepo) update(messageID string, fn func(m *domain.OutboxMessage)) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	m, ok := r.db.outbox[messageID]
	if !ok {
		return fmt.Errorf("outbox message not found: %w", domain.ErrNotFound)
	}
	fn(&m)
	r.db.outbox[messageID] = m
	return nil
}
