package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tejash-sr/agri/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// pgPool adds transaction support on top of pgExecutor. Satisfied by
// *pgxpool.Pool and by pgxmock pools in tests.
type pgPool interface {
	pgExecutor
	Begin(ctx context.Context) (pgx.Tx, error)
}

// storageErr wraps a statement failure, classifying connection-level
// problems as repository.ErrUnavailable so transports can distinguish a
// storage outage from an internal fault.
func storageErr(op string, err error) error {
	if isConnectivityErr(err) {
		return fmt.Errorf("%s: %w: %v", op, repository.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnectivityErr(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 covers connection exceptions; 57P01..57P03 are server
		// shutdown states; 53300 is the connection slot limit.
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08":
			return true
		case pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03":
			return true
		case pgErr.Code == "53300":
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err)
}
