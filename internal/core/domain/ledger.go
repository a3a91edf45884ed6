package domain

import "time"

// TokenKind distinguishes the purposes a ledger secret can serve.
// Every issued secret is scoped to exactly one kind; the kind decides
// the default lifetime and the invalidation rules applied on issuance.
type TokenKind string

const (
	TokenKindRefresh           TokenKind = "refresh"
	TokenKindPasswordReset     TokenKind = "password_reset"
	TokenKindEmailVerification TokenKind = "email_verification"
)

// Default lifetimes per token kind.
const (
	RefreshTokenTTL      = 7 * 24 * time.Hour
	PasswordResetTTL     = time.Hour
	EmailVerificationTTL = 24 * time.Hour
)

// Valid reports whether the kind is one of the known token purposes.
func (k TokenKind) Valid() bool {
	switch k {
	case TokenKindRefresh, TokenKindPasswordReset, TokenKindEmailVerification:
		return true
	}
	return false
}

// DefaultTTL returns the standard lifetime for the kind.
func (k TokenKind) DefaultTTL() time.Duration {
	switch k {
	case TokenKindPasswordReset:
		return PasswordResetTTL
	case TokenKindEmailVerification:
		return EmailVerificationTTL
	default:
		return RefreshTokenTTL
	}
}

// SessionToken is one row of the session ledger: a purpose-scoped secret
// the server has issued and must be able to invalidate. Only a SHA-256
// hash of the secret is stored; the raw value never touches persistence.
type SessionToken struct {
	ID         string
	UserID     string
	Kind       TokenKind
	SecretHash string
	IssuedAt   time.Time
	ExpiresAt  time.Time
	Valid      bool
	ClientIP   *string
	UserAgent  *string
}

// IsExpired reports whether the record's lifetime has elapsed at the supplied moment.
func (t SessionToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// IsUsable reports whether the record may still be redeemed: it must not
// have been invalidated and must not be past its expiry.
func (t SessionToken) IsUsable(at time.Time) bool {
	return t.Valid && !t.IsExpired(at)
}

// Invalidate flips the record to the terminal invalid state.
// Returns true when the record changed state; records are never resurrected.
func (t *SessionToken) Invalidate() bool {
	if !t.Valid {
		return false
	}
	t.Valid = false
	return true
}
