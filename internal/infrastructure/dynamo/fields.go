package dynamo

// DynamoDB attribute names used in expressions across all repos.
// Using constants prevents silent runtime bugs caused by key typos.
const (
	fieldUserID              = "user_id"
	fieldEmail               = "email"
	fieldPasswordHash        = "password_hash"
	fieldEmailVerified       = "email_verified"
	fieldSignupMethod        = "signup_method"
	fieldLastLoginAt         = "last_login_at"
	fieldBillingCustomerID   = "billing_customer_id"
	fieldLoginCount          = "login_count"
	fieldFailedLoginAttempts = "failed_login_attempts"
	fieldUpdatedAt           = "updated_at"
	fieldEnable              = "enable"
	fieldIdentifier          = "identifier"
	fieldToken               = "token"
	fieldExpiresAt           = "expires_at"
	fieldUsed                = "used"
	fieldUsedAt              = "used_at"
	fieldLogID               = "log_id"
	fieldBucketKey           = "key"
	fieldAttempts            = "attempts"
	fieldWindowStart         = "window_start"
	fieldIssuedAt            = "issued_at"
	fieldIP                  = "ip"
	fieldResourceID          = "resource_id"
	fieldAnonID              = "anon_id"
	fieldOwnerID             = "owner_id"
	fieldClaimedAt           = "claimed_at"
	fieldMessageID           = "message_id"
	fieldStatus              = "status"
	fieldNextAttemptAt       = "next_attempt_at"
	fieldLastError           = "last_error"
	fieldSessionID           = "session_id"
)

// Index names.
const (
	indexAuditByUser  = "user_id-created_at-index"
	indexResourceAnon = "anon_id-index"
	indexOutboxDue    = "status-next_attempt_at-index"
)
