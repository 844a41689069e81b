// Package app assembles the store, services and worker shared by the api
// and worker binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-auth-nosql/internal/application/outbox"
	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/dynamo"
	"github.com/go-auth-nosql/internal/infrastructure/memory"
	"github.com/go-auth-nosql/internal/infrastructure/smtp"
	"github.com/go-auth-nosql/internal/infrastructure/sns"
	transporthttp "github.com/go-auth-nosql/internal/transport/http"
)

// Backend is one opened store seen through the interfaces each layer needs.
type Backend struct {
	HTTP   transporthttp.Store
	Outbox outbox.Store
	Users  interface {
		Patch(ctx context.Context, userID string, p domain.UserPatch) error
	}
	// InProcess is set for the memory driver, whose state is not shared
	// between processes, so the api must run the outbox worker itself.
	InProcess bool
}

// SetupLogger installs the default slog logger: JSON in production, text
// otherwise.
func SetupLogger(cfg *config.Config) {
	var h slog.Handler
	if cfg.IsProduction() {
		h = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		h = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	slog.SetDefault(slog.New(h).With("env", cfg.AppEnv))
}

// OpenBackend opens the store selected by cfg.StoreDriver. For DynamoDB the
// tables are created when missing.
func OpenBackend(ctx context.Context, cfg *config.Config) (*Backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		return memoryBackend(memory.New()), nil
	case config.DriverDynamo:
		client, err := dynamo.NewClient(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("dynamodb client: %w", err)
		}
		dynamo.Bootstrap(ctx, client, cfg.DynamoTables)
		return dynamoBackend(dynamo.NewStore(client, cfg.DynamoTables)), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

func memoryBackend(db *memory.DB) *Backend {
	return &Backend{
		HTTP: transporthttp.Store{
			Transactor:         db,
			Users:              db.Users(),
			Sessions:           db.Sessions(),
			VerificationTokens: db.VerificationTokens(),
			ResetTokens:        db.ResetTokens(),
			AuditLogs:          db.AuditLogs(),
			RateLimits:         db.RateLimits(),
			Blocks:             db.Blocks(),
			Resources:          db.Resources(),
			Pinger:             db,
		},
		Outbox:    db.Outbox(),
		Users:     db.Users(),
		InProcess: true,
	}
}

func dynamoBackend(s *dynamo.Store) *Backend {
	return &Backend{
		HTTP: transporthttp.Store{
			Transactor:         s.Transactor,
			Users:              s.Users,
			Sessions:           s.Sessions,
			VerificationTokens: s.VerificationTokens,
			ResetTokens:        s.ResetTokens,
			AuditLogs:          s.AuditLogs,
			RateLimits:         s.RateLimits,
			Blocks:             s.Blocks,
			Resources:          s.Resources,
			Pinger:             s,
		},
		Outbox: s.Outbox,
		Users:  s.Users,
	}
}

// NewWorker builds the outbox worker with SMTP mail and SNS billing.
func NewWorker(ctx context.Context, cfg *config.Config, b *Backend) (*outbox.Worker, error) {
	billing, err := sns.NewBillingPublisher(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("billing publisher: %w", err)
	}
	wcfg := outbox.DefaultConfig()
	wcfg.PollInterval = cfg.OutboxPollInterval
	wcfg.BatchSize = cfg.OutboxBatchSize
	wcfg.MaxAttempts = cfg.OutboxMaxAttempts
	return outbox.NewWorker(outbox.WorkerDeps{
		Store:   b.Outbox,
		Mailer:  smtp.NewMailer(cfg),
		Billing: billing,
		Users:   b.Users,
		Config:  wcfg,
	}), nil
}
