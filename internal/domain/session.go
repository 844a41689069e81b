package domain

import "time"

// Session binds a bearer token to a revocable server-side record. Disabling
// it ends the session before the token expires.
type Session struct {
	SessionID string    `json:"id" dynamodbav:"session_id"`
	UserID    string    `json:"user_id" dynamodbav:"user_id"`
	Enable    bool      `json:"enable" dynamodbav:"enable"`
	ExpiresAt int64     `json:"expires_at" dynamodbav:"expires_at"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt time.Time `json:"updated" dynamodbav:"updated_at"`
	User      *User     `json:"user,omitempty" dynamodbav:"-"`
}

func (s *Session) ActiveAt(now time.Time) bool {
	return s.Enable && s.ExpiresAt >= now.Unix()
}
