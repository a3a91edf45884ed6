package handlers

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tejash-sr/agri/internal/infra/logger"
)

// NotificationDispatcher delivers verification and reset secrets to users.
type NotificationDispatcher interface {
	SendEmailVerification(ctx context.Context, payload VerificationNotification) error
	SendPasswordReset(ctx context.Context, payload PasswordResetNotification) error
}

// VerificationNotification captures data needed to deliver an email verification token.
type VerificationNotification struct {
	Email    string
	FullName string
	DevToken string
	Expires  time.Time
}

// PasswordResetNotification captures data needed to deliver password reset credentials.
type PasswordResetNotification struct {
	Email    string
	DevToken string
	Expires  time.Time
}

type noopDispatcher struct{}

func (noopDispatcher) SendEmailVerification(ctx context.Context, payload VerificationNotification) error {
	return nil
}

func (noopDispatcher) SendPasswordReset(ctx context.Context, payload PasswordResetNotification) error {
	return nil
}

// LoggingNotificationDispatcher records dispatch events for observability
// without delivering them. Contact details are masked before logging.
type LoggingNotificationDispatcher struct {
	logger *zap.Logger
}

// NewLoggingNotificationDispatcher constructs a notification dispatcher backed by structured logging.
func NewLoggingNotificationDispatcher(log *zap.Logger) NotificationDispatcher {
	if log == nil {
		return noopDispatcher{}
	}
	return &LoggingNotificationDispatcher{logger: log}
}

func (d *LoggingNotificationDispatcher) SendEmailVerification(ctx context.Context, payload VerificationNotification) error {
	if d == nil || d.logger == nil {
		return nil
	}

	d.logger.Info("dispatch email verification",
		zap.String("email", logger.MaskEmail(payload.Email)),
		zap.Time("expires_at", payload.Expires),
	)
	return nil
}

func (d *LoggingNotificationDispatcher) SendPasswordReset(ctx context.Context, payload PasswordResetNotification) error {
	if d == nil || d.logger == nil {
		return nil
	}

	d.logger.Info("dispatch password reset",
		zap.String("email", logger.MaskEmail(payload.Email)),
		zap.Time("expires_at", payload.Expires),
	)
	return nil
}
