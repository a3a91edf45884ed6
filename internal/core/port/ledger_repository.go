package port

import (
	"context"

	"github.com/tejash-sr/agri/internal/core/domain"
)

// LedgerRepository manages the session ledger: every refresh, password-reset,
// and email-verification secret the service has issued and may need to revoke.
type LedgerRepository interface {
	// Create inserts a new valid record. For password-reset and
	// email-verification kinds it first invalidates every valid record of
	// the same kind for the user, keeping at most one active secret per
	// purpose; both steps commit atomically.
	Create(ctx context.Context, token domain.SessionToken) error

	// FindValid returns the record matching the secret hash and kind only
	// while it is valid and unexpired. A record found past its expiry is
	// invalidated as a side effect before reporting a miss (lazy expiry).
	FindValid(ctx context.Context, secretHash string, kind domain.TokenKind) (*domain.SessionToken, error)

	// Invalidate marks the record invalid. Idempotent: invalidating an
	// already-invalid record is not an error.
	Invalidate(ctx context.Context, id string) error

	// InvalidateAllForUser invalidates every valid record for the user,
	// optionally restricted to one kind (nil means all kinds). Returns the
	// number of records transitioned.
	InvalidateAllForUser(ctx context.Context, userID string, kind *domain.TokenKind) (int, error)

	// Consume atomically invalidates the valid, unexpired record matching
	// the secret hash and kind and returns it. Of two concurrent consumers
	// of the same secret exactly one wins; the loser observes
	// repository.ErrNotFound.
	Consume(ctx context.Context, secretHash string, kind domain.TokenKind) (*domain.SessionToken, error)

	// Rotate atomically invalidates the valid refresh record matching
	// oldSecretHash and inserts the replacement. Exactly one of two
	// concurrent rotations of the same secret wins; the loser observes
	// repository.ErrNotFound. The old record is never left invalid without
	// the replacement committed.
	Rotate(ctx context.Context, oldSecretHash string, replacement domain.SessionToken) (*domain.SessionToken, error)
}
