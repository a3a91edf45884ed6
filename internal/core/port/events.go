package port

import (
	"context"

	"github.com/tejash-sr/agri/internal/core/domain"
)

// EventPublisher publishes identity domain events to the message bus.
type EventPublisher interface {
	PublishUserRegistered(ctx context.Context, event domain.UserRegisteredEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
	PublishEmailVerified(ctx context.Context, event domain.EmailVerifiedEvent) error
	PublishSessionsInvalidated(ctx context.Context, event domain.SessionsInvalidatedEvent) error
}
