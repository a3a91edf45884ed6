package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/tejash-sr/agri/internal/infra/config"
	"github.com/tejash-sr/agri/internal/repository/postgres/migrations"
)

// RunMigrations applies the embedded schema migrations using goose over a
// short-lived database/sql connection.
func RunMigrations(ctx context.Context, cfg config.PostgresSettings) error {
	db, err := sql.Open("pgx", DSN(cfg))
	if err != nil {
		return fmt.Errorf("open migration connection: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}
