package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTx_AllOrNothing(t *testing.T) {
	db := New()
	ctx := context.Background()
	require.NoError(t, db.Resources().Put(ctx, &domain.AnonymousResource{ResourceID: "r1", AnonID: "x", OwnerID: "someone"}))

	err := db.WithTx(ctx, func(tx domain.Tx) error {
		tx.CreateUser(&domain.User{UserID: "u1", Email: "a@x.com"})
		tx.ClaimResource("r1", "u1", time.Now())
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	_, err = db.Users().GetByEmail(ctx, "a@x.com")
	assert.True(t, errors.Is(err, domain.ErrNotFound), "user must not be created when a claim fails")
}

func TestWithTx_CallbackErrorCommitsNothing(t *testing.T) {
	db := New()
	boom := errors.New("boom")
	err := db.WithTx(context.Background(), func(tx domain.Tx) error {
		tx.CreateUser(&domain.User{UserID: "u1", Email: "a@x.com"})
		return boom
	})
	assert.ErrorIs(t, err, boom)
	_, err = db.Users().Get(context.Background(), "u1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWithTx_DuplicateEmailConflicts(t *testing.T) {
	db := New()
	ctx := context.Background()
	create := func(id string) error {
		return db.WithTx(ctx, func(tx domain.Tx) error {
			tx.CreateUser(&domain.User{UserID: id, Email: "a@x.com"})
			return nil
		})
	}
	require.NoError(t, create("u1"))
	assert.ErrorIs(t, create("u2"), domain.ErrConflict)
}

func TestWithTx_ReserveIssueHonoursGap(t *testing.T) {
	db := New()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reserve := func(kind domain.TokenKind, at time.Time) error {
		return db.WithTx(ctx, func(tx domain.Tx) error {
			tx.ReserveIssue(kind, "a@x.com", at, 5*time.Minute)
			return nil
		})
	}

	require.NoError(t, reserve(domain.TokenVerification, now))
	assert.ErrorIs(t, reserve(domain.TokenVerification, now.Add(4*time.Minute)), domain.ErrConflict)
	assert.NoError(t, reserve(domain.TokenPasswordReset, now.Add(time.Minute)), "kinds are tracked separately")
	assert.NoError(t, reserve(domain.TokenVerification, now.Add(5*time.Minute)))
}

func TestUserPatch_RequireNoPassword(t *testing.T) {
	db := New()
	ctx := context.Background()
	require.NoError(t, db.WithTx(ctx, func(tx domain.Tx) error {
		tx.CreateUser(&domain.User{UserID: "u1", Email: "a@x.com", PasswordHash: "h"})
		return nil
	}))
	hash := "new"
	err := db.Users().Patch(ctx, "u1", domain.UserPatch{PasswordHash: &hash, RequireNoPassword: true})
	assert.ErrorIs(t, err, domain.ErrConflict)

	err = db.Users().Patch(ctx, "missing", domain.UserPatch{IncrementLoginCount: true})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRateLimitRepo_FixedWindow(t *testing.T) {
	repo := New().RateLimits()
	ctx := context.Background()
	budget := domain.Budget{MaxAttempts: 2, Window: time.Minute}
	now := time.Unix(1_700_000_000, 0)

	d, _ := repo.ConsumeAttempt(ctx, "k", budget, now)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
	d, _ = repo.ConsumeAttempt(ctx, "k", budget, now.Add(10*time.Second))
	assert.True(t, d.Allowed)
	d, _ = repo.ConsumeAttempt(ctx, "k", budget, now.Add(20*time.Second))
	assert.False(t, d.Allowed)
	assert.Equal(t, 40*time.Second, d.RetryAfter)

	d, _ = repo.ConsumeAttempt(ctx, "k", budget, now.Add(time.Minute))
	assert.True(t, d.Allowed, "expired window resets lazily")
}

func TestOutboxRepo_ClaimDueLeases(t *testing.T) {
	db := New()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, db.WithTx(ctx, func(tx domain.Tx) error {
		tx.Enqueue(&domain.OutboxMessage{MessageID: "m1", Status: domain.OutboxPending, NextAttemptAt: now.Unix()})
		tx.Enqueue(&domain.OutboxMessage{MessageID: "m2", Status: domain.OutboxPending, NextAttemptAt: now.Add(time.Hour).Unix()})
		return nil
	}))

	got, err := db.Outbox().ClaimDue(ctx, now, time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "m1", got[0].MessageID)

	again, err := db.Outbox().ClaimDue(ctx, now, time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, again, "leased message is not handed out twice")

	later, err := db.Outbox().ClaimDue(ctx, now.Add(2*time.Minute), time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, later, 1, "lapsed lease is reclaimed")
	assert.Equal(t, "m1", later[0].MessageID)
}
