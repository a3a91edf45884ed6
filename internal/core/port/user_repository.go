package port

import (
	"context"
	"time"

	"github.com/tejash-sr/agri/internal/core/domain"
)

// UserRepository exposes persistence behavior for users.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate, at time.Time) error
	SetEmailVerified(ctx context.Context, id string, at time.Time) error
	Deactivate(ctx context.Context, id string, at time.Time) error
}
