// Package memory is an in-process credential store with the same semantics as
// the DynamoDB store: conditional writes, atomic counters and all-or-nothing
// transactions. It backs tests and STORE_DRIVER=memory.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

type tokenKey struct {
	owner string
	token string
}

// DB holds every table. Repos are thin views over it.
type DB struct {
	mu sync.Mutex

	users       map[string]domain.User
	emails      map[string]string
	sessions    map[string]domain.Session
	verifyTok   map[tokenKey]domain.VerificationToken
	resetTok    map[tokenKey]domain.PasswordResetToken
	auditLogs   []domain.AuditLog
	counters    map[string]domain.RateLimitCounter
	blocks      map[string]domain.IPBlock
	resources   map[string]domain.AnonymousResource
	outbox      map[string]domain.OutboxMessage
	outboxOrder []string
	issued      map[string]int64
}

func New() *DB {
	return &DB{
		users:     make(map[string]domain.User),
		emails:    make(map[string]string),
		sessions:  make(map[string]domain.Session),
		verifyTok: make(map[tokenKey]domain.VerificationToken),
		resetTok:  make(map[tokenKey]domain.PasswordResetToken),
		counters:  make(map[string]domain.RateLimitCounter),
		blocks:    make(map[string]domain.IPBlock),
		resources: make(map[string]domain.AnonymousResource),
		outbox:    make(map[string]domain.OutboxMessage),
		issued:    make(map[string]int64),
	}
}

func (db *DB) Users() *UserRepo                      { return &UserRepo{db: db} }
func (db *DB) Sessions() *SessionRepo                { return &SessionRepo{db: db} }
func (db *DB) VerificationTokens() *VerificationRepo { return &VerificationRepo{db: db} }
func (db *DB) ResetTokens() *ResetRepo               { return &ResetRepo{db: db} }
func (db *DB) AuditLogs() *AuditRepo                 { return &AuditRepo{db: db} }
func (db *DB) RateLimits() *RateLimitRepo            { return &RateLimitRepo{db: db} }
func (db *DB) Blocks() *BlockRepo                    { return &BlockRepo{db: db} }
func (db *DB) Resources() *ResourceRepo              { return &ResourceRepo{db: db} }
func (db *DB) Outbox() *OutboxRepo                   { return &OutboxRepo{db: db} }

// Ping always succeeds; the store lives in process.
func (db *DB) Ping(context.Context) error { return nil }

// op is one buffered transactional write.
type op struct {
	check func(db *DB) error
	apply func(db *DB)
}

type tx struct {
	ops []op
}

// WithTx runs fn, then checks every buffered condition and applies every
// write under a single lock.
func (db *DB) WithTx(ctx context.Context, fn func(domain.Tx) error) error {
	t := &tx{}
	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, o := range t.ops {
		if o.check == nil {
			continue
		}
		if err := o.check(db); err != nil {
			return fmt.Errorf("transaction cancelled: %w", err)
		}
	}
	for _, o := range t.ops {
		o.apply(db)
	}
	return nil
}

func conflict(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, domain.ErrConflict)...)
}

func (t *tx) CreateUser(u *domain.User) {
	cp := *u
	t.ops = append(t.ops, op{
		check: func(db *DB) error {
			if _, taken := db.emails[cp.Email]; taken {
				return conflict("email %s already registered", cp.Email)
			}
			if _, exists := db.users[cp.UserID]; exists {
				return conflict("user %s exists", cp.UserID)
			}
			return nil
		},
		apply: func(db *DB) {
			db.users[cp.UserID] = cp
			db.emails[cp.Email] = cp.UserID
		},
	})
}

func (t *tx) PatchUser(userID string, p domain.UserPatch) {
	t.ops = append(t.ops, op{
		check: func(db *DB) error { return db.checkPatch(userID, p) },
		apply: func(db *DB) { db.applyPatch(userID, p) },
	})
}

func (t *tx) PutVerificationToken(v *domain.VerificationToken) {
	cp := *v
	t.ops = append(t.ops, op{apply: func(db *DB) {
		db.verifyTok[tokenKey{cp.Identifier, cp.Token}] = cp
	}})
}

func (t *tx) ConsumeVerificationToken(identifier, token string, now time.Time) {
	k := tokenKey{identifier, token}
	t.ops = append(t.ops, op{
		check: func(db *DB) error {
			v, ok := db.verifyTok[k]
			if !ok || v.ExpiresAt <= now.Unix() {
				return conflict("verification token not consumable")
			}
			return nil
		},
		apply: func(db *DB) { delete(db.verifyTok, k) },
	})
}

func (t *tx) DeleteVerificationToken(identifier, token string) {
	k := tokenKey{identifier, token}
	t.ops = append(t.ops, op{apply: func(db *DB) { delete(db.verifyTok, k) }})
}

func (t *tx) PutResetToken(r *domain.PasswordResetToken) {
	cp := *r
	t.ops = append(t.ops, op{apply: func(db *DB) {
		db.resetTok[tokenKey{cp.Email, cp.Token}] = cp
	}})
}

func (t *tx) ConsumeResetToken(email, token string, now time.Time) {
	k := tokenKey{email, token}
	t.ops = append(t.ops, op{
		check: func(db *DB) error {
			r, ok := db.resetTok[k]
			if !ok || r.Used || r.ExpiresAt <= now.Unix() {
				return conflict("reset token not consumable")
			}
			return nil
		},
		apply: func(db *DB) {
			r := db.resetTok[k]
			r.Used = true
			r.UsedAt = now.Unix()
			db.resetTok[k] = r
		},
	})
}

func (t *tx) DeleteResetToken(email, token string) {
	k := tokenKey{email, token}
	t.ops = append(t.ops, op{apply: func(db *DB) { delete(db.resetTok, k) }})
}

func (t *tx) ReserveIssue(kind domain.TokenKind, email string, now time.Time, gap time.Duration) {
	k := string(kind) + "#" + email
	at := now.Unix()
	t.ops = append(t.ops, op{
		check: func(db *DB) error {
			if last, ok := db.issued[k]; ok && last > at-int64(gap/time.Second) {
				return conflict("%s token for %s issued at %d", kind, email, last)
			}
			return nil
		},
		apply: func(db *DB) { db.issued[k] = at },
	})
}

func (t *tx) ClaimResource(resourceID, userID string, now time.Time) {
	t.ops = append(t.ops, op{
		check: func(db *DB) error {
			r, ok := db.resources[resourceID]
			if !ok || r.OwnerID != "" {
				return conflict("resource %s not claimable", resourceID)
			}
			return nil
		},
		apply: func(db *DB) {
			r := db.resources[resourceID]
			r.OwnerID = userID
			claimed := now
			r.ClaimedAt = &claimed
			db.resources[resourceID] = r
		},
	})
}

func (t *tx) Enqueue(m *domain.OutboxMessage) {
	cp := *m
	t.ops = append(t.ops, op{apply: func(db *DB) {
		db.outbox[cp.MessageID] = cp
		db.outboxOrder = append(db.outboxOrder, cp.MessageID)
	}})
}

// checkPatch and applyPatch expect db.mu to be held.
func (db *DB) checkPatch(userID string, p domain.UserPatch) error {
	u, ok := db.users[userID]
	if !ok {
		return fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	if p.RequireNoPassword && u.HasPassword() {
		return conflict("user %s already has a password", userID)
	}
	return nil
}

func (db *DB) applyPatch(userID string, p domain.UserPatch) {
	u := db.users[userID]
	p.Apply(&u, time.Now().UTC())
	db.users[userID] = u
}
