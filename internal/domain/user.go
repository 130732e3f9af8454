package domain

import "time"

// User is the identity a session resolves to. Owned by the durable store.
type User struct {
	UserID      string    `json:"id" dynamodbav:"user_id"`
	Email       string    `json:"email" dynamodbav:"email"`
	DisplayName *string   `json:"displayName,omitempty" dynamodbav:"display_name,omitempty"`
	IsActive    bool      `json:"isActive" dynamodbav:"is_active"`
	CreatedAt   time.Time `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" dynamodbav:"updated_at"`
}
