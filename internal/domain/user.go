package domain

import "time"

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// SignupMethod records which entry path created the account.
type SignupMethod string

const (
	SignupEmailOnly SignupMethod = "email_only"
	SignupPassword  SignupMethod = "password"
)

// CredentialState is derived from EmailVerified and PasswordHash.
type CredentialState string

const (
	StateUnverifiedNoPassword   CredentialState = "UNVERIFIED_NO_PASSWORD"
	StateUnverifiedWithPassword CredentialState = "UNVERIFIED_WITH_PASSWORD"
	StateVerifiedNoPassword     CredentialState = "VERIFIED_NO_PASSWORD"
	StateVerifiedWithPassword   CredentialState = "VERIFIED_WITH_PASSWORD"
)

type User struct {
	UserID              string       `json:"id" dynamodbav:"user_id"`
	Email               string       `json:"email" dynamodbav:"email"`
	Name                string       `json:"name,omitempty" dynamodbav:"name,omitempty"`
	PasswordHash        string       `json:"-" dynamodbav:"password_hash,omitempty"`
	Role                string       `json:"role" dynamodbav:"role"`
	EmailVerified       *time.Time   `json:"email_verified" dynamodbav:"email_verified,omitempty"`
	SignupMethod        SignupMethod `json:"signup_method" dynamodbav:"signup_method"`
	LoginCount          int          `json:"login_count" dynamodbav:"login_count"`
	FailedLoginAttempts int          `json:"-" dynamodbav:"failed_login_attempts"`
	LastLoginAt         *time.Time   `json:"last_login_at,omitempty" dynamodbav:"last_login_at,omitempty"`
	BillingCustomerID   string       `json:"-" dynamodbav:"billing_customer_id,omitempty"`
	CreatedAt           time.Time    `json:"created" dynamodbav:"created_at"`
	UpdatedAt           time.Time    `json:"updated" dynamodbav:"updated_at"`
}

func (u *User) HasPassword() bool { return u.PasswordHash != "" }

func (u *User) IsVerified() bool { return u.EmailVerified != nil }

func (u *User) State() CredentialState {
	switch {
	case u.IsVerified() && u.HasPassword():
		return StateVerifiedWithPassword
	case u.IsVerified():
		return StateVerifiedNoPassword
	case u.HasPassword():
		return StateUnverifiedWithPassword
	default:
		return StateUnverifiedNoPassword
	}
}

// UserPatch is a partial update of a User. Nil fields are left untouched.
// Increment flags are applied atomically by the store.
type UserPatch struct {
	PasswordHash             *string
	EmailVerified            *time.Time
	SignupMethod             *SignupMethod
	LastLoginAt              *time.Time
	BillingCustomerID        *string
	ResetFailedLoginAttempts bool
	IncrementLoginCount      bool
	IncrementFailedAttempts  bool

	// RequireNoPassword makes the patch conditional on the user having no
	// password hash yet.
	RequireNoPassword bool
}

// Apply mutates u in place. Used by stores that hold users in memory.
func (p UserPatch) Apply(u *User, now time.Time) {
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.EmailVerified != nil {
		t := *p.EmailVerified
		u.EmailVerified = &t
	}
	if p.SignupMethod != nil {
		u.SignupMethod = *p.SignupMethod
	}
	if p.LastLoginAt != nil {
		t := *p.LastLoginAt
		u.LastLoginAt = &t
	}
	if p.BillingCustomerID != nil {
		u.BillingCustomerID = *p.BillingCustomerID
	}
	if p.ResetFailedLoginAttempts {
		u.FailedLoginAttempts = 0
	}
	if p.IncrementLoginCount {
		u.LoginCount++
	}
	if p.IncrementFailedAttempts {
		u.FailedLoginAttempts++
	}
	u.UpdatedAt = now
}
