package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// RunMigrations runs all pending database migrations.
func RunMigrations(dbURL string, schema string) error {
	slog.Info("Running database migrations...")

	db, err := openForMigrations(dbURL, schema)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := goose.Up(db, "migrations"); err != nil {
		return err
	}

	slog.Info("Database migrations completed successfully")
	return nil
}

// MigrationStatus prints the applied/pending state of every migration.
func MigrationStatus(dbURL string, schema string) error {
	db, err := openForMigrations(dbURL, schema)
	if err != nil {
		return err
	}
	defer db.Close()

	return goose.Status(db, "migrations")
}

func openForMigrations(dbURL string, schema string) (*sql.DB, error) {
	// Use default schema if not specified
	if schema == "" {
		schema = "public"
	}

	// Migrations run over database/sql, so open with the pgx stdlib driver
	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		return nil, err
	}

	// Verify connectivity before running migrations
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	if err := ensureSchemaExists(db, schema); err != nil {
		db.Close()
		return nil, err
	}

	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func ensureSchemaExists(db *sql.DB, schema string) error {
	// Create schema if it doesn't exist
	query := "CREATE SCHEMA IF NOT EXISTS " + pgx.Identifier{schema}.Sanitize()
	_, err := db.Exec(query)
	if err != nil {
		return err
	}

	// Set search_path to the schema to ensure migrations run there
	setPathQuery := "SET search_path TO " + pgx.Identifier{schema}.Sanitize()
	_, err = db.Exec(setPathQuery)
	if err != nil {
		return err
	}
	slog.Info("Schema is ready", "schema", schema)

	return nil
}
