// Package claim attaches resources created under an anonymous identifier to
// the account that was just created from the same browser.
package claim

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-auth-nosql/internal/domain"
)

// MaxPerSignup bounds the claims buffered in one signup transaction. DynamoDB
// transactions hold at most 100 items and signup needs a handful of its own.
const MaxPerSignup = 50

type resourceStore interface {
	ListUnclaimed(ctx context.Context, anonID string, limit int) ([]domain.AnonymousResource, error)
}

// Result counts the transfers buffered by Claim. Truncated is set when more
// than MaxPerSignup unowned resources carried the anonymous id; the rest stay
// unowned.
type Result struct {
	Claimed   int
	Truncated bool
}

type Resolver struct {
	resources resourceStore
	now       func() time.Time
}

func NewResolver(resources resourceStore) *Resolver {
	return &Resolver{resources: resources, now: time.Now}
}

// Claim buffers an ownership transfer to userID for every unowned resource
// tagged with anonID, up to MaxPerSignup. Each transfer is conditional on the
// resource still being unowned at commit.
func (r *Resolver) Claim(ctx context.Context, tx domain.Tx, anonID, userID string) (Result, error) {
	if anonID == "" {
		return Result{}, nil
	}
	found, err := r.resources.ListUnclaimed(ctx, anonID, MaxPerSignup+1)
	if err != nil {
		return Result{}, fmt.Errorf("list anonymous resources: %w", err)
	}
	var res Result
	if len(found) > MaxPerSignup {
		found = found[:MaxPerSignup]
		res.Truncated = true
		slog.WarnContext(ctx, "anonymous claim truncated", "anon_id", anonID, "user_id", userID, "limit", MaxPerSignup)
	}
	now := r.now().UTC()
	for _, rsc := range found {
		tx.ClaimResource(rsc.ResourceID, userID, now)
	}
	res.Claimed = len(found)
	return res, nil
}
