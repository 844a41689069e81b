package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store drivers.
const (
	DriverDynamo = "dynamo"
	DriverMemory = "memory"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string `env:"APP_PORT" envDefault:"3000"`
	AppEnv         string `env:"APP_ENV" envDefault:"development"`
	StoreDriver    string `env:"STORE_DRIVER" envDefault:"dynamo"`
	AWSRegion      string `env:"AWS_REGION" envDefault:"us-east-1"`
	AWSEndpointURL string `env:"AWS_ENDPOINT_URL"` // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretKey   string `env:"AWS_SECRET_ACCESS_KEY"`
	DynamoTables   DynamoTables

	JWTPrivateKeyPath string        `env:"JWT_PRIVATE_KEY_PATH" envDefault:"./private_key.pem"`
	JWTPublicKeyPath  string        `env:"JWT_PUBLIC_KEY_PATH" envDefault:"./public_key.pem"`
	JWTExpiry         time.Duration `env:"JWT_EXPIRY" envDefault:"720h"`

	BcryptCost           int           `env:"BCRYPT_COST" envDefault:"12"`
	VerificationTokenTTL time.Duration `env:"VERIFICATION_TOKEN_TTL" envDefault:"24h"`
	ResetTokenTTL        time.Duration `env:"RESET_TOKEN_TTL" envDefault:"24h"`
	TokenThrottle        time.Duration `env:"TOKEN_THROTTLE" envDefault:"5m"`

	SMTPHost     string `env:"SMTP_HOST" envDefault:"localhost"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"1025"`
	SMTPFrom     string `env:"SMTP_FROM" envDefault:"noreply@example.com"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	AppBaseURL   string `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`

	BillingTopicARN string `env:"BILLING_TOPIC_ARN"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"5s"`
	OutboxBatchSize    int           `env:"OUTBOX_BATCH_SIZE" envDefault:"25"`
	OutboxMaxAttempts  int           `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"5"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*" envSeparator:","` // CORS allowed origins
	TrustProxy     bool     `env:"TRUST_PROXY" envDefault:"true"`
	SecureCookies  bool     `env:"SECURE_COOKIES" envDefault:"false"`
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users              string `env:"DYNAMO_TABLE_USERS" envDefault:"users"`
	UserEmails         string `env:"DYNAMO_TABLE_USER_EMAILS" envDefault:"user_emails"`
	Sessions           string `env:"DYNAMO_TABLE_SESSIONS" envDefault:"sessions"`
	VerificationTokens string `env:"DYNAMO_TABLE_VERIFICATION_TOKENS" envDefault:"verification_tokens"`
	ResetTokens        string `env:"DYNAMO_TABLE_PASSWORD_RESET_TOKENS" envDefault:"password_reset_tokens"`
	AuditLogs          string `env:"DYNAMO_TABLE_AUDIT_LOGS" envDefault:"audit_logs"`
	RateLimits         string `env:"DYNAMO_TABLE_RATE_LIMITS" envDefault:"rate_limits"`
	IPBlocks           string `env:"DYNAMO_TABLE_IP_BLOCKS" envDefault:"ip_blocks"`
	Resources          string `env:"DYNAMO_TABLE_ANONYMOUS_RESOURCES" envDefault:"anonymous_resources"`
	Outbox             string `env:"DYNAMO_TABLE_OUTBOX" envDefault:"outbox"`
}

// Load reads all configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	switch cfg.StoreDriver {
	case DriverDynamo, DriverMemory:
	default:
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, fmt.Errorf("BCRYPT_COST must be between 4 and 31, got %d", cfg.BcryptCost)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool { return c.AppEnv == "production" }
