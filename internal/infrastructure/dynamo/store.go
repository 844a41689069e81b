package dynamo

import (
	"context"
	"errors"

	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
)

// Store groups the repos backed by one DynamoDB client.
type Store struct {
	*Transactor
	Users              *UserRepo
	Sessions           *SessionRepo
	VerificationTokens *VerificationRepo
	ResetTokens        *ResetRepo
	AuditLogs          *AuditRepo
	RateLimits         *RateLimitRepo
	Blocks             *BlockRepo
	Resources          *ResourceRepo
	Outbox             *OutboxRepo
}

func NewStore(client API, tables config.DynamoTables) *Store {
	return &Store{
		Transactor:         NewTransactor(client, tables),
		Users:              NewUserRepo(client, tables.Users, tables.UserEmails),
		Sessions:           NewSessionRepo(client, tables.Sessions),
		VerificationTokens: NewVerificationRepo(client, tables.VerificationTokens),
		ResetTokens:        NewResetRepo(client, tables.ResetTokens),
		AuditLogs:          NewAuditRepo(client, tables.AuditLogs),
		RateLimits:         NewRateLimitRepo(client, tables.RateLimits),
		Blocks:             NewBlockRepo(client, tables.IPBlocks),
		Resources:          NewResourceRepo(client, tables.Resources),
		Outbox:             NewOutboxRepo(client, tables.Outbox),
	}
}

// Ping checks the users table is reachable with a point read.
func (s *Store) Ping(ctx context.Context) error {
	_, err := s.Users.Get(ctx, "__health__")
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return nil
}
