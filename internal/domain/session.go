package domain

import "time"

// Session is a persisted login. ExpiresAtTTL mirrors ExpiresAt in Unix seconds
// so the DynamoDB TTL sweeper can purge dead sessions.
type Session struct {
	SessionID    string     `json:"id" dynamodbav:"session_id"`
	Token        string     `json:"-" dynamodbav:"token"`
	UserID       string     `json:"userId" dynamodbav:"user_id"`
	CreatedAt    time.Time  `json:"createdAt" dynamodbav:"created_at"`
	ExpiresAt    time.Time  `json:"expiresAt" dynamodbav:"expires_at"`
	ExpiresAtTTL int64      `json:"-" dynamodbav:"expires_at_ttl"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty" dynamodbav:"last_used_at,omitempty"`
	UserAgent    *string    `json:"userAgent,omitempty" dynamodbav:"user_agent,omitempty"`
	IPAddress    *string    `json:"ipAddress,omitempty" dynamodbav:"ip_address,omitempty"`
}

// SessionMetadata is the optional client information recorded with a new session.
type SessionMetadata struct {
	UserAgent *string
	IPAddress *string
}
