package domain

import "time"

// UserRegisteredEvent represents the payload for agrisense.identity.user.registered messages.
type UserRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        *string
	Phone        *string
	Role         string
	RegisteredAt time.Time
	Metadata     map[string]any
}

// PasswordChangedEvent represents the payload for agrisense.identity.password.changed messages.
type PasswordChangedEvent struct {
	EventID       string
	UserID        string
	ChangedAt     time.Time
	ChangedBy     string
	TokensRevoked int
	Metadata      map[string]any
}

// PasswordResetRequestedEvent represents the payload for agrisense.identity.password.reset_requested messages.
type PasswordResetRequestedEvent struct {
	EventID           string
	UserID            string
	RequestedAt       time.Time
	MaskedDestination string
	IPAddress         *string
	ExpiresAt         time.Time
	Metadata          map[string]any
}

// EmailVerifiedEvent represents the payload for agrisense.identity.email.verified messages.
type EmailVerifiedEvent struct {
	EventID    string
	UserID     string
	VerifiedAt time.Time
	Metadata   map[string]any
}

// SessionsInvalidatedEvent represents the payload for agrisense.identity.sessions.invalidated messages.
type SessionsInvalidatedEvent struct {
	EventID       string
	UserID        string
	Reason        string
	TokensRevoked int
	RevokedAt     time.Time
	Metadata      map[string]any
}
