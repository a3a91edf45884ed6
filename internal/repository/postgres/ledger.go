package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/tejash-sr/agri/internal/core/domain"
	"github.com/tejash-sr/agri/internal/core/port"
	"github.com/tejash-sr/agri/internal/repository"
)

var ledgerColumns = []string{
	"id",
	"user_id",
	"kind",
	"secret_hash",
	"issued_at",
	"expires_at",
	"valid",
	"client_ip",
	"user_agent",
}

// LedgerRepository implements port.LedgerRepository on the session_tokens table.
type LedgerRepository struct {
	pool    pgPool
	builder squirrel.StatementBuilderType
	now     func() time.Time
}

// NewLedgerRepository wires a PostgreSQL-backed session ledger.
func NewLedgerRepository(pool pgPool) *LedgerRepository {
	return &LedgerRepository{
		pool:    pool,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the time source. Intended for tests.
func (r *LedgerRepository) WithClock(now func() time.Time) *LedgerRepository {
	if now != nil {
		r.now = now
	}
	return r
}

// Create inserts a new valid ledger record. For password-reset and
// email-verification kinds the previous valid records of the same kind are
// invalidated in the same transaction, keeping one active secret per purpose.
func (r *LedgerRepository) Create(ctx context.Context, token domain.SessionToken) error {
	if token.Kind == domain.TokenKindRefresh {
		stmt, args, err := r.insertQuery(token).ToSql()
		if err != nil {
			return fmt.Errorf("build insert ledger sql: %w", err)
		}
		if _, err := r.pool.Exec(ctx, stmt, args...); err != nil {
			return storageErr("insert ledger record", err)
		}
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return storageErr("begin ledger create", err)
	}
	defer tx.Rollback(ctx)

	invalidateStmt, invalidateArgs, err := r.builder.Update("session_tokens").
		Set("valid", false).
		Where(squirrel.Eq{"user_id": token.UserID, "kind": token.Kind, "valid": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build invalidate same kind sql: %w", err)
	}

	if _, err := tx.Exec(ctx, invalidateStmt, invalidateArgs...); err != nil {
		return storageErr(fmt.Sprintf("invalidate previous %s records", token.Kind), err)
	}

	insertStmt, insertArgs, err := r.insertQuery(token).ToSql()
	if err != nil {
		return fmt.Errorf("build insert ledger sql: %w", err)
	}

	if _, err := tx.Exec(ctx, insertStmt, insertArgs...); err != nil {
		return storageErr("insert ledger record", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return storageErr("commit ledger create", err)
	}

	return nil
}

func (r *LedgerRepository) insertQuery(token domain.SessionToken) squirrel.InsertBuilder {
	return r.builder.Insert("session_tokens").
		Columns(ledgerColumns...).
		Values(
			token.ID,
			token.UserID,
			token.Kind,
			token.SecretHash,
			token.IssuedAt,
			token.ExpiresAt,
			token.Valid,
			token.ClientIP,
			token.UserAgent,
		)
}

// FindValid returns the record matching the secret hash and kind while it is
// still usable. A record found past its expiry is invalidated before the
// lookup reports a miss, so expiry needs no background sweeper.
func (r *LedgerRepository) FindValid(ctx context.Context, secretHash string, kind domain.TokenKind) (*domain.SessionToken, error) {
	stmt, args, err := r.builder.
		Select(ledgerColumns...).
		From("session_tokens").
		Where(squirrel.Eq{"secret_hash": secretHash, "kind": kind, "valid": true}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select ledger sql: %w", err)
	}

	row := r.pool.QueryRow(ctx, stmt, args...)

	token, err := scanSessionToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, storageErr("scan ledger record", err)
	}

	if token.IsExpired(r.now()) {
		if err := r.Invalidate(ctx, token.ID); err != nil {
			return nil, err
		}
		return nil, repository.ErrNotFound
	}

	return token, nil
}

// Invalidate marks the record invalid. Invalidating an already-invalid or
// missing record is not an error.
func (r *LedgerRepository) Invalidate(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("session_tokens").
		Set("valid", false).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build invalidate ledger sql: %w", err)
	}

	if _, err := r.pool.Exec(ctx, stmt, args...); err != nil {
		return storageErr("invalidate ledger record", err)
	}

	return nil
}

// InvalidateAllForUser invalidates every valid record for the user,
// optionally restricted to one kind. Returns the number of records changed.
func (r *LedgerRepository) InvalidateAllForUser(ctx context.Context, userID string, kind *domain.TokenKind) (int, error) {
	query := r.builder.Update("session_tokens").
		Set("valid", false).
		Where(squirrel.Eq{"user_id": userID, "valid": true})

	if kind != nil {
		query = query.Where(squirrel.Eq{"kind": *kind})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build invalidate all sql: %w", err)
	}

	ct, err := r.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, storageErr("invalidate user ledger records", err)
	}

	return int(ct.RowsAffected()), nil
}

// Consume invalidates the valid, unexpired record matching the secret hash
// and kind and returns it. The conditional update with RETURNING makes the
// redemption single-use: of two consumers racing on the same secret, one
// gets the row and the other repository.ErrNotFound.
func (r *LedgerRepository) Consume(ctx context.Context, secretHash string, kind domain.TokenKind) (*domain.SessionToken, error) {
	stmt, args, err := r.builder.Update("session_tokens").
		Set("valid", false).
		Where(squirrel.Eq{
			"secret_hash": secretHash,
			"kind":        kind,
			"valid":       true,
		}).
		Where(squirrel.Expr("expires_at > ?", r.now())).
		Suffix("RETURNING " + strings.Join(ledgerColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build consume ledger sql: %w", err)
	}

	token, err := scanSessionToken(r.pool.QueryRow(ctx, stmt, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, storageErr("consume ledger record", err)
	}

	return token, nil
}

// Rotate invalidates the valid refresh record matching oldSecretHash and
// inserts the replacement in one transaction. The conditional update is the
// arbiter under concurrency: of two rotations racing on the same secret,
// exactly one update reports a changed row; the other returns
// repository.ErrNotFound and must not issue credentials.
func (r *LedgerRepository) Rotate(ctx context.Context, oldSecretHash string, replacement domain.SessionToken) (*domain.SessionToken, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, storageErr("begin ledger rotate", err)
	}
	defer tx.Rollback(ctx)

	claimStmt, claimArgs, err := r.builder.Update("session_tokens").
		Set("valid", false).
		Where(squirrel.Eq{
			"secret_hash": oldSecretHash,
			"kind":        domain.TokenKindRefresh,
			"valid":       true,
		}).
		Where(squirrel.Expr("expires_at > ?", r.now())).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build claim refresh sql: %w", err)
	}

	ct, err := tx.Exec(ctx, claimStmt, claimArgs...)
	if err != nil {
		return nil, storageErr("claim refresh record", err)
	}

	if ct.RowsAffected() == 0 {
		return nil, repository.ErrNotFound
	}

	insertStmt, insertArgs, err := r.insertQuery(replacement).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert replacement sql: %w", err)
	}

	if _, err := tx.Exec(ctx, insertStmt, insertArgs...); err != nil {
		return nil, storageErr("insert replacement record", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageErr("commit ledger rotate", err)
	}

	return &replacement, nil
}

func scanSessionToken(row pgx.Row) (*domain.SessionToken, error) {
	var token domain.SessionToken
	if err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.Kind,
		&token.SecretHash,
		&token.IssuedAt,
		&token.ExpiresAt,
		&token.Valid,
		&token.ClientIP,
		&token.UserAgent,
	); err != nil {
		return nil, err
	}
	return &token, nil
}

var _ port.LedgerRepository = (*LedgerRepository)(nil)
