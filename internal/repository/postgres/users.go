package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tejash-sr/agri/internal/core/domain"
	"github.com/tejash-sr/agri/internal/core/port"
	"github.com/tejash-sr/agri/internal/repository"
)

var userColumns = []string{
	"id",
	"email",
	"phone",
	"password_hash",
	"full_name",
	"role",
	"is_active",
	"email_verified",
	"phone_verified",
	"avatar_url",
	"address",
	"city",
	"district",
	"state",
	"pincode",
	"latitude",
	"longitude",
	"language",
	"preferred_unit",
	"notifications_enabled",
	"created_at",
	"updated_at",
	"last_login_at",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository wires a PostgreSQL-backed user repository.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new user row. A unique violation on email or phone maps
// to repository.ErrDuplicate.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	query := r.builder.Insert("users").
		Columns(userColumns...).
		Values(
			user.ID,
			user.Email,
			user.Phone,
			user.PasswordHash,
			user.FullName,
			user.Role,
			user.IsActive,
			user.EmailVerified,
			user.PhoneVerified,
			user.AvatarURL,
			user.Address,
			user.City,
			user.District,
			user.State,
			user.Pincode,
			user.Latitude,
			user.Longitude,
			user.Language,
			user.PreferredUnit,
			user.Notifications,
			user.CreatedAt,
			user.UpdatedAt,
			user.LastLoginAt,
		)

	sqlText, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert user sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, sqlText, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicate
		}
		return storageErr("insert user", err)
	}

	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"id": id})
}

// GetByEmail retrieves a user by email, case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Expr("lower(email) = lower(?)", strings.TrimSpace(email)))
}

// GetByPhone retrieves a user by phone number.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.getOne(ctx, squirrel.Eq{"phone": phone})
}

func (r *UserRepository) getOne(ctx context.Context, pred any) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("users").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	row := r.exec.QueryRow(ctx, stmt, args...)

	var user domain.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Phone,
		&user.PasswordHash,
		&user.FullName,
		&user.Role,
		&user.IsActive,
		&user.EmailVerified,
		&user.PhoneVerified,
		&user.AvatarURL,
		&user.Address,
		&user.City,
		&user.District,
		&user.State,
		&user.Pincode,
		&user.Latitude,
		&user.Longitude,
		&user.Language,
		&user.PreferredUnit,
		&user.Notifications,
		&user.CreatedAt,
		&user.UpdatedAt,
		&user.LastLoginAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, storageErr("scan user", err)
	}

	return &user, nil
}

// UpdatePassword replaces a user's password hash and stamps the change time.
func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("users").
		Set("password_hash", passwordHash).
		Set("updated_at", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return storageErr("update password", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdateLastLogin stamps the time of a successful authentication.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("users").
		Set("last_login_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update last login sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return storageErr("update last login", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdateProfile applies the non-nil fields of the update to the user row.
func (r *UserRepository) UpdateProfile(ctx context.Context, id string, update domain.ProfileUpdate, at time.Time) error {
	if update.IsEmpty() {
		return nil
	}

	query := r.builder.Update("users").Set("updated_at", at)

	if update.FullName != nil {
		query = query.Set("full_name", *update.FullName)
	}
	if update.Phone != nil {
		query = query.Set("phone", *update.Phone).Set("phone_verified", false)
	}
	if update.AvatarURL != nil {
		query = query.Set("avatar_url", *update.AvatarURL)
	}
	if update.Address != nil {
		query = query.Set("address", *update.Address)
	}
	if update.City != nil {
		query = query.Set("city", *update.City)
	}
	if update.District != nil {
		query = query.Set("district", *update.District)
	}
	if update.State != nil {
		query = query.Set("state", *update.State)
	}
	if update.Pincode != nil {
		query = query.Set("pincode", *update.Pincode)
	}
	if update.Latitude != nil {
		query = query.Set("latitude", *update.Latitude)
	}
	if update.Longitude != nil {
		query = query.Set("longitude", *update.Longitude)
	}
	if update.Language != nil {
		query = query.Set("language", *update.Language)
	}
	if update.PreferredUnit != nil {
		query = query.Set("preferred_unit", *update.PreferredUnit)
	}
	if update.Notifications != nil {
		query = query.Set("notifications_enabled", *update.Notifications)
	}

	stmt, args, err := query.Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update profile sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return repository.ErrDuplicate
		}
		return storageErr("update profile", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetEmailVerified marks the user's email address as confirmed.
func (r *UserRepository) SetEmailVerified(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("users").
		Set("email_verified", true).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set email verified sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return storageErr("set email verified", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Deactivate marks a user as inactive (soft delete).
func (r *UserRepository) Deactivate(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("users").
		Set("is_active", false).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate user sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return storageErr("deactivate user", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

var _ port.UserRepository = (*UserRepository)(nil)
