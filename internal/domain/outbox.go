package domain

import "time"

// OutboxKind selects the dispatcher for a message.
type OutboxKind string

const (
	OutboxVerificationEmail OutboxKind = "verification_email"
	OutboxPasswordResetMail OutboxKind = "password_reset_email"
	OutboxWelcomeEmail      OutboxKind = "welcome_email"
	OutboxBillingCustomer   OutboxKind = "billing_customer"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxSent       OutboxStatus = "sent"
	OutboxFailed     OutboxStatus = "failed"
)

// OutboxMessage is committed in the same transaction as the state change that
// caused it and dispatched later by the outbox worker.
type OutboxMessage struct {
	MessageID     string            `json:"id" dynamodbav:"message_id"`
	Kind          OutboxKind        `json:"kind" dynamodbav:"kind"`
	Payload       map[string]string `json:"payload" dynamodbav:"payload"`
	Status        OutboxStatus      `json:"status" dynamodbav:"status"`
	Attempts      int               `json:"attempts" dynamodbav:"attempts"`
	LastError     string            `json:"last_error,omitempty" dynamodbav:"last_error,omitempty"`
	NextAttemptAt int64             `json:"next_attempt_at" dynamodbav:"next_attempt_at"`
	CreatedAt     time.Time         `json:"created" dynamodbav:"created_at"`
	UpdatedAt     time.Time         `json:"updated" dynamodbav:"updated_at"`
}

// Payload keys.
const (
	PayloadTo     = "to"
	PayloadToken  = "token"
	PayloadName   = "name"
	PayloadUserID = "user_id"
)
