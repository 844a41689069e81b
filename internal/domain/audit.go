package domain

import "time"

// AuditEvent names a security-relevant transition.
type AuditEvent string

const (
	EventLogin                    AuditEvent = "login"
	EventLoginFailed              AuditEvent = "login_failed"
	EventLoginBlocked             AuditEvent = "login_blocked"
	EventLogout                   AuditEvent = "logout"
	EventAccountCreated           AuditEvent = "account_created"
	EventSignupBlocked            AuditEvent = "signup_blocked"
	EventSignupRateLimited        AuditEvent = "signup_rate_limited"
	EventSignupDuplicate          AuditEvent = "signup_duplicate"
	EventSignupError              AuditEvent = "signup_error"
	EventEmailVerified            AuditEvent = "email_verified"
	EventEmailVerificationFailed  AuditEvent = "email_verification_failed"
	EventEmailVerificationBlocked AuditEvent = "email_verification_blocked"
	EventEmailVerificationError   AuditEvent = "email_verification_error"
	EventResendSent               AuditEvent = "email_verification_resend"
	EventResendSkipped            AuditEvent = "email_verification_resend_skipped"
	EventResendThrottled          AuditEvent = "email_verification_resend_throttled"
	EventResetRequested           AuditEvent = "password_reset_requested"
	EventResetThrottled           AuditEvent = "password_reset_throttled"
	EventResetNonexistent         AuditEvent = "password_reset_nonexistent"
	EventResetBlocked             AuditEvent = "password_reset_blocked"
	EventResetCompleted           AuditEvent = "password_reset_completed"
	EventResetFailed              AuditEvent = "password_reset_failed"
	EventResetError               AuditEvent = "password_reset_error"
	EventPasswordChanged          AuditEvent = "password_changed"
	EventPasswordChangeFailed     AuditEvent = "password_change_failed"
	EventAccountUpgraded          AuditEvent = "account_upgraded"
	EventAccountUpgradeFailed     AuditEvent = "account_upgrade_failed"
	EventIPBlocked                AuditEvent = "ip_blocked"
	EventIPUnblocked              AuditEvent = "ip_unblocked"
)

// AuditLog is append-only. There is no update or delete path.
type AuditLog struct {
	LogID     string            `json:"id" dynamodbav:"log_id"`
	UserID    *string           `json:"user_id" dynamodbav:"user_id,omitempty"`
	Event     AuditEvent        `json:"event" dynamodbav:"event"`
	Metadata  map[string]string `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
	IP        string            `json:"ip" dynamodbav:"ip"`
	UserAgent string            `json:"user_agent" dynamodbav:"user_agent"`
	CreatedAt time.Time         `json:"created" dynamodbav:"created_at"`
}

// RequestMeta carries caller attributes every flow needs for audit and rate limiting.
type RequestMeta struct {
	IP        string
	UserAgent string
}
