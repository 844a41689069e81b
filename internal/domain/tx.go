package domain

import (
	"context"
	"time"
)

// Tx collects writes that commit together. Conditions attached to a write are
// checked at commit time; if any fails, nothing is written and the commit
// returns an error wrapping ErrConflict.
type Tx interface {
	// CreateUser inserts u. Condition: no user holds u.Email.
	CreateUser(u *User)
	// PatchUser updates an existing user. Condition: the user exists and, when
	// p.RequireNoPassword is set, has no password hash.
	PatchUser(userID string, p UserPatch)

	PutVerificationToken(t *VerificationToken)
	// ConsumeVerificationToken deletes the token. Condition: it exists and
	// expires after now.
	ConsumeVerificationToken(identifier, token string, now time.Time)
	DeleteVerificationToken(identifier, token string)

	PutResetToken(t *PasswordResetToken)
	// ConsumeResetToken marks the token used. Condition: it exists, is unused
	// and expires after now.
	ConsumeResetToken(email, token string, now time.Time)
	DeleteResetToken(email, token string)

	// ReserveIssue records that a kind token was issued to email at now.
	// Condition: no reservation for the same kind and email is newer than
	// now minus gap.
	ReserveIssue(kind TokenKind, email string, now time.Time, gap time.Duration)

	// ClaimResource sets the owner. Condition: the resource has no owner.
	ClaimResource(resourceID, userID string, now time.Time)

	Enqueue(m *OutboxMessage)
}

// Transactor runs fn and commits the writes it collected. If fn returns an
// error nothing is committed.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}
