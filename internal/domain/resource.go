package domain

import "time"

// AnonymousResource was created before its author had an account. OwnerID is
// empty until claimed.
type AnonymousResource struct {
	ResourceID string     `json:"id" dynamodbav:"resource_id"`
	AnonID     string     `json:"anon_id" dynamodbav:"anon_id"`
	OwnerID    string     `json:"owner_id,omitempty" dynamodbav:"owner_id,omitempty"`
	Kind       string     `json:"kind" dynamodbav:"kind"`
	ClaimedAt  *time.Time `json:"claimed_at,omitempty" dynamodbav:"claimed_at,omitempty"`
	CreatedAt  time.Time  `json:"created" dynamodbav:"created_at"`
}
