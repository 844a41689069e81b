package claim_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/go-auth-nosql/internal/application/claim"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/memory"
)

func seed(t *testing.T, db *memory.DB, res ...domain.AnonymousResource) {
	t.Helper()
	for i := range res {
		require.NoError(t, db.Resources().Put(context.Background(), &res[i]))
	}
}

func TestClaim_OnlyUnownedResources(t *testing.T) {
	db := memory.New()
	now := time.Now().UTC()
	seed(t, db,
		domain.AnonymousResource{ResourceID: "r1", AnonID: "anon-1", Kind: "chat", CreatedAt: now},
		domain.AnonymousResource{ResourceID: "r2", AnonID: "anon-1", Kind: "chat", CreatedAt: now},
		domain.AnonymousResource{ResourceID: "r3", AnonID: "anon-1", OwnerID: "someone", Kind: "chat", CreatedAt: now},
		domain.AnonymousResource{ResourceID: "r4", AnonID: "anon-2", Kind: "chat", CreatedAt: now},
	)
	r := claim.NewResolver(db.Resources())

	var res claim.Result
	err := db.WithTx(context.Background(), func(tx domain.Tx) error {
		var err error
		res, err = r.Claim(context.Background(), tx, "anon-1", "u1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, claim.Result{Claimed: 2}, res)

	for id, owner := range map[string]string{"r1": "u1", "r2": "u1", "r3": "someone", "r4": ""} {
		got, err := db.Resources().Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, owner, got.OwnerID, id)
	}
}

func TestClaim_EmptyOrUnknownAnonID(t *testing.T) {
	db := memory.New()
	r := claim.NewResolver(db.Resources())

	for _, anon := range []string{"", "nobody"} {
		err := db.WithTx(context.Background(), func(tx domain.Tx) error {
			res, err := r.Claim(context.Background(), tx, anon, "u1")
			assert.Equal(t, claim.Result{}, res)
			return err
		})
		require.NoError(t, err)
	}
}

func TestClaim_LostRaceAbortsTransaction(t *testing.T) {
	db := memory.New()
	seed(t, db, domain.AnonymousResource{ResourceID: "r1", AnonID: "anon-1"})
	r := claim.NewResolver(db.Resources())

	err := db.WithTx(context.Background(), func(tx domain.Tx) error {
		if _, err := r.Claim(context.Background(), tx, "anon-1", "u1"); err != nil {
			return err
		}
		// another signup claims r1 before this one commits
		return db.WithTx(context.Background(), func(other domain.Tx) error {
			other.ClaimResource("r1", "u2", time.Now())
			return nil
		})
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	res, err := db.Resources().Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, "u2", res.OwnerID)
}

type mockResources struct{ mock.Mock }

func (m *mockResources) ListUnclaimed(ctx context.Context, anonID string, limit int) ([]domain.AnonymousResource, error) {
	args := m.Called(ctx, anonID, limit)
	if v := args.Get(0); v != nil {
		return v.([]domain.AnonymousResource), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestClaim_StoreError(t *testing.T) {
	store := new(mockResources)
	store.On("ListUnclaimed", mock.Anything, "anon-1", claim.MaxPerSignup+1).Return(nil, errors.New("boom"))
	r := claim.NewResolver(store)

	db := memory.New()
	err := db.WithTx(context.Background(), func(tx domain.Tx) error {
		_, err := r.Claim(context.Background(), tx, "anon-1", "u1")
		return err
	})
	assert.Error(t, err)
	store.AssertExpectations(t)
}

func TestClaim_TruncatesPastLimit(t *testing.T) {
	db := memory.New()
	for i := 0; i < claim.MaxPerSignup+3; i++ {
		seed(t, db, domain.AnonymousResource{ResourceID: fmt.Sprintf("r%03d", i), AnonID: "anon-1"})
	}
	r := claim.NewResolver(db.Resources())

	var res claim.Result
	err := db.WithTx(context.Background(), func(tx domain.Tx) error {
		var err error
		res, err = r.Claim(context.Background(), tx, "anon-1", "u1")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, claim.Result{Claimed: claim.MaxPerSignup, Truncated: true}, res)

	left, err := db.Resources().ListUnclaimed(context.Background(), "anon-1", 0)
	require.NoError(t, err)
	assert.Len(t, left, 3)
}

func TestClaim_ExactlyLimitIsNotTruncated(t *testing.T) {
	db := memory.New()
	for i := 0; i < claim.MaxPerSignup; i++ {
		seed(t, db, domain.AnonymousResource{ResourceID: fmt.Sprintf("r%03d", i), AnonID: "anon-1"})
	}
	r := claim.NewResolver(db.Resources())

	err := db.WithTx(context.Background(), func(tx domain.Tx) error {
		res, err := r.Claim(context.Background(), tx, "anon-1", "u1")
		assert.Equal(t, claim.Result{Claimed: claim.MaxPerSignup}, res)
		return err
	})
	require.NoError(t, err)
}
