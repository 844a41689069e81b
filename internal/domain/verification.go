package domain

import "time"

// TokenKind separates the verification and password-reset namespaces.
type TokenKind string

const (
	TokenVerification  TokenKind = "verification"
	TokenPasswordReset TokenKind = "password_reset"
)

// VerificationToken is keyed by (Identifier, Token). Identifier is the
// normalized email. ExpiresAt doubles as the DynamoDB TTL attribute.
type VerificationToken struct {
	Identifier string `json:"identifier" dynamodbav:"identifier"`
	Token      string `json:"-" dynamodbav:"token"`
	ExpiresAt  int64  `json:"expires_at" dynamodbav:"expires_at"`
	CreatedAt  int64  `json:"created_at" dynamodbav:"created_at"`
}

// PasswordResetToken is keyed by (Email, Token). A used token never
// authorizes a second reset.
type PasswordResetToken struct {
	Email     string `json:"email" dynamodbav:"email"`
	Token     string `json:"-" dynamodbav:"token"`
	ExpiresAt int64  `json:"expires_at" dynamodbav:"expires_at"`
	CreatedAt int64  `json:"created_at" dynamodbav:"created_at"`
	Used      bool   `json:"used" dynamodbav:"used"`
	UsedAt    int64  `json:"used_at,omitempty" dynamodbav:"used_at,omitempty"`
}

// IssuedToken is what the Token Issuer hands back to its caller.
type IssuedToken struct {
	Kind    TokenKind
	Email   string
	Token   string
	Expires time.Time
}
