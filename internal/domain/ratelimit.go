package domain

import "time"

// Budget is an attempt allowance over a fixed window.
type Budget struct {
	MaxAttempts int
	Window      time.Duration
}

// RateLimitCounter is the stored state of one (ip, operation) bucket.
type RateLimitCounter struct {
	Key         string `dynamodbav:"key"`
	Attempts    int    `dynamodbav:"attempts"`
	WindowStart int64  `dynamodbav:"window_start"` // unix millis
	ExpiresAt   int64  `dynamodbav:"expires_at"`   // TTL, unix seconds
}

// Decision is the result of a check-and-consume.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// IPBlock denies every flow for an address. Zero ExpiresAt means permanent.
type IPBlock struct {
	IP        string    `json:"ip" dynamodbav:"ip"`
	Reason    string    `json:"reason" dynamodbav:"reason"`
	ExpiresAt int64     `json:"expires_at,omitempty" dynamodbav:"expires_at,omitempty"`
	CreatedAt time.Time `json:"created" dynamodbav:"created_at"`
}

func (b *IPBlock) ActiveAt(now time.Time) bool {
	return b.ExpiresAt == 0 || b.ExpiresAt > now.Unix()
}
