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
	"github.com/tejash-sr/agri/internal/repository"
)

// ErrUserNotFound indicates the referenced account does not exist or is gone.
var ErrUserNotFound = errors.New("user not found")

// UserService exposes profile reads and updates.
type UserService struct {
	users  port.UserRepository
	ledger port.LedgerRepository
	events port.EventPublisher
	log    *zap.Logger
	now    func() time.Time
}

// NewUserService constructs a user service.
func NewUserService(
	users port.UserRepository,
	ledger port.LedgerRepository,
	events port.EventPublisher,
	log *zap.Logger,
) *UserService {
	return &UserService{
		users:  users,
		ledger: ledger,
		events: events,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (s *UserService) WithClock(now func() time.Time) *UserService {
	if now != nil {
		s.now = now
	}
	return s
}

// Get returns the user with credential material stripped.
func (s *UserService) Get(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	sanitized := user.Sanitized()
	return &sanitized, nil
}

// UpdateProfile applies the provided field changes and returns the updated
// user. An empty update is a no-op, not an error. Changing the phone number
// resets its verified flag.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, update domain.ProfileUpdate) (*domain.User, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}

	if !update.IsEmpty() {
		if err := s.users.UpdateProfile(ctx, userID, update, s.now()); err != nil {
			switch {
			case errors.Is(err, repository.ErrNotFound):
				return nil, ErrUserNotFound
			case errors.Is(err, repository.ErrDuplicate):
				return nil, ErrDuplicateIdentity
			}
			return nil, fmt.Errorf("update profile: %w", err)
		}
	}

	return s.Get(ctx, userID)
}

// Deactivate soft-deletes the account and revokes every outstanding secret.
func (s *UserService) Deactivate(ctx context.Context, userID string) error {
	if err := s.users.Deactivate(ctx, userID, s.now()); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("deactivate user: %w", err)
	}

	revoked, err := s.ledger.InvalidateAllForUser(ctx, userID, nil)
	if err != nil {
		return fmt.Errorf("invalidate user secrets: %w", err)
	}

	if revoked > 0 && s.events != nil {
		event := domain.SessionsInvalidatedEvent{
			EventID:       uuid.NewString(),
			UserID:        userID,
			Reason:        "account_deactivated",
			TokensRevoked: revoked,
			RevokedAt:     s.now(),
		}
		if err := s.events.PublishSessionsInvalidated(ctx, event); err != nil {
			logger.WithContext(ctx).Warn("publish sessions invalidated failed", zap.Error(err))
		}
	}

	return nil
}
