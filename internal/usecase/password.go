package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tejash-sr/agri/internal/core/domain"
	"github.com/tejash-sr/agri/internal/core/port"
	"github.com/tejash-sr/agri/internal/infra/logger"
	"github.com/tejash-sr/agri/internal/infra/security"
	"github.com/tejash-sr/agri/internal/repository"
)

// PasswordService coordinates password change, recovery, and reset.
type PasswordService struct {
	users             port.UserRepository
	ledger            port.LedgerRepository
	passwordValidator *security.PasswordValidator
	events            port.EventPublisher
	log               *zap.Logger
	now               func() time.Time
}

// NewPasswordService constructs a password service.
func NewPasswordService(
	users port.UserRepository,
	ledger port.LedgerRepository,
	validator *security.PasswordValidator,
	events port.EventPublisher,
	log *zap.Logger,
) *PasswordService {
	if validator == nil {
		validator = security.DefaultPasswordValidator(8, 0)
	}
	return &PasswordService{
		users:             users,
		ledger:            ledger,
		passwordValidator: validator,
		events:            events,
		log:               log,
		now:               func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *PasswordService) WithClock(now func() time.Time) *PasswordService {
	if now != nil {
		s.now = now
	}
	return s
}

// Change replaces the password after verifying the current one. Every ledger
// secret the user holds is invalidated so stolen refresh or reset tokens die
// with the old password.
func (s *PasswordService) Change(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("lookup user: %w", err)
	}

	if !security.VerifyPassword(currentPassword, user.PasswordHash) {
		return ErrInvalidCredentials
	}

	if err := s.validateNewPassword(newPassword, currentPassword); err != nil {
		return err
	}

	revoked, err := s.applyNewPassword(ctx, user.ID, newPassword)
	if err != nil {
		return err
	}

	s.publishChanged(ctx, user.ID, "user", revoked)
	return nil
}

// Forgot starts password recovery. The outcome is identical whether or not
// the email is registered, so the endpoint cannot be used to probe accounts.
// The raw reset secret is returned for delivery; it is never logged.
func (s *PasswordService) Forgot(ctx context.Context, email string, info RequestInfo) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", nil
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}

	if !user.IsActive {
		return "", nil
	}

	rawToken, err := security.GenerateSecureToken(32)
	if err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(domain.PasswordResetTTL)
	record := domain.SessionToken{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Kind:       domain.TokenKindPasswordReset,
		SecretHash: security.HashToken(rawToken),
		IssuedAt:   now,
		ExpiresAt:  expiresAt,
		Valid:      true,
		ClientIP:   info.clientIP(),
		UserAgent:  info.userAgent(),
	}

	if err := s.ledger.Create(ctx, record); err != nil {
		return "", fmt.Errorf("store reset token: %w", err)
	}

	if s.events != nil {
		event := domain.PasswordResetRequestedEvent{
			EventID:           uuid.NewString(),
			UserID:            user.ID,
			RequestedAt:       now,
			MaskedDestination: logger.MaskEmail(user.Email),
			IPAddress:         info.clientIP(),
			ExpiresAt:         expiresAt,
		}
		if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
			logger.WithContext(ctx).Warn("publish reset requested failed", zap.Error(err))
		}
	}

	return rawToken, nil
}

// Reset redeems a recovery secret and sets a new password. The secret is
// single-use, and every other ledger secret the user holds is invalidated.
func (s *PasswordService) Reset(ctx context.Context, rawToken, newPassword string) error {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return ErrInvalidToken
	}

	secretHash := security.HashToken(rawToken)
	if _, err := s.ledger.FindValid(ctx, secretHash, domain.TokenKindPasswordReset); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("lookup reset token: %w", err)
	}

	// A policy rejection leaves the secret redeemable for another attempt,
	// so the new password is validated before the secret is spent.
	if err := s.validateNewPassword(newPassword, ""); err != nil {
		return err
	}

	// Consume is the single-use arbiter: when two resets race on the same
	// secret, the loser stops here without touching the password.
	record, err := s.ledger.Consume(ctx, secretHash, domain.TokenKindPasswordReset)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidToken
		}
		return fmt.Errorf("consume reset token: %w", err)
	}

	revoked, err := s.applyNewPassword(ctx, record.UserID, newPassword)
	if err != nil {
		return err
	}

	s.publishChanged(ctx, record.UserID, "password_reset", revoked)
	return nil
}

func (s *PasswordService) validateNewPassword(newPassword, currentPassword string) error {
	rules := s.passwordValidator
	if currentPassword != "" {
		rules = security.NewPasswordValidator(
			s.passwordValidator,
			security.RequireDifferentFrom(currentPassword),
		)
	}
	if err := rules.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicyViolation, err)
	}
	return nil
}

// applyNewPassword persists the hash and revokes every outstanding secret,
// refresh tokens included.
func (s *PasswordService) applyNewPassword(ctx context.Context, userID, newPassword string) (int, error) {
	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	if err := s.users.UpdatePassword(ctx, userID, passwordHash, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, fmt.Errorf("update password: %w", err)
	}

	revoked, err := s.ledger.InvalidateAllForUser(ctx, userID, nil)
	if err != nil {
		return 0, fmt.Errorf("invalidate user secrets: %w", err)
	}

	return revoked, nil
}

func (s *PasswordService) publishChanged(ctx context.Context, userID, changedBy string, revoked int) {
	if s.events == nil {
		return
	}

	event := domain.PasswordChangedEvent{
		EventID:       uuid.NewString(),
		UserID:        userID,
		ChangedAt:     s.now(),
		ChangedBy:     changedBy,
		TokensRevoked: revoked,
	}
	if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
		logger.WithContext(ctx).Warn("publish password changed failed", zap.Error(err))
	}
}
