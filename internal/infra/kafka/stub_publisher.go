package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tejash-sr/agri/internal/core/domain"
	"github.com/tejash-sr/agri/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no
// broker is configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishUserRegistered logs user.registered events.
func (p *StubPublisher) PublishUserRegistered(_ context.Context, event domain.UserRegisteredEvent) error {
	payload := map[string]any{
		"user_id":       event.UserID,
		"email":         event.Email,
		"phone":         event.Phone,
		"role":          event.Role,
		"registered_at": event.RegisteredAt,
		"metadata":      event.Metadata,
	}
	p.logEvent("user.registered", event.UserID, event.RegisteredAt, payload)
	return nil
}

// PublishPasswordChanged logs password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	payload := map[string]any{
		"user_id":        event.UserID,
		"changed_at":     event.ChangedAt,
		"changed_by":     event.ChangedBy,
		"tokens_revoked": event.TokensRevoked,
		"metadata":       event.Metadata,
	}
	p.logEvent("password.changed", event.UserID, event.ChangedAt, payload)
	return nil
}

// PublishPasswordResetRequested logs password.reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := map[string]any{
		"user_id":            event.UserID,
		"requested_at":       event.RequestedAt,
		"masked_destination": event.MaskedDestination,
		"ip_address":         event.IPAddress,
		"expires_at":         event.ExpiresAt,
		"metadata":           event.Metadata,
	}
	p.logEvent("password.reset_requested", event.UserID, event.RequestedAt, payload)
	return nil
}

// PublishEmailVerified logs email.verified events.
func (p *StubPublisher) PublishEmailVerified(_ context.Context, event domain.EmailVerifiedEvent) error {
	payload := map[string]any{
		"user_id":     event.UserID,
		"verified_at": event.VerifiedAt,
		"metadata":    event.Metadata,
	}
	p.logEvent("email.verified", event.UserID, event.VerifiedAt, payload)
	return nil
}

// PublishSessionsInvalidated logs sessions.invalidated events.
func (p *StubPublisher) PublishSessionsInvalidated(_ context.Context, event domain.SessionsInvalidatedEvent) error {
	payload := map[string]any{
		"user_id":        event.UserID,
		"reason":         event.Reason,
		"tokens_revoked": event.TokensRevoked,
		"revoked_at":     event.RevokedAt,
		"metadata":       event.Metadata,
	}
	p.logEvent("sessions.invalidated", event.UserID, event.RevokedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
