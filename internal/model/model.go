package model

import "time"

// ExpiryThreshold is how long before its real expiry a cached access token stops being used.
const ExpiryThreshold = 5 * time.Minute

// OAuthToken is the cached Drive access token and its absolute expiry.
type OAuthToken struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// ValidAt reports whether the token can still be used at now.
// Comparison is done in epoch milliseconds, the precision the token is persisted with.
func (t OAuthToken) ValidAt(now time.Time) bool {
	if t.AccessToken == "" || t.ExpiresAt.IsZero() {
		return false
	}
	return now.UnixMilli()+ExpiryThreshold.Milliseconds() < t.ExpiresAt.UnixMilli()
}

// SyncLease represents an in-progress Drive sync run (lock) held by one owner.
type SyncLease struct {
	ResourceID string `json:"resource_id" dynamodbav:"resource_id"`
	OwnerID    string `json:"owner_id" dynamodbav:"owner_id"`
	ExpiresAt  int64  `json:"expires_at" dynamodbav:"expires_at"` // TTL (Unix timestamp)
}

// StateItem is one key/value row of persisted local state.
type StateItem struct {
	Key       string    `json:"state_key" dynamodbav:"state_key"`
	Value     string    `json:"value" dynamodbav:"value"`
	UpdatedAt time.Time `json:"updated_at" dynamodbav:"updated_at"`
}
