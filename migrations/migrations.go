// Package migrations embeds the goose SQL migrations for each supported storage driver.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// FS holds the migrations; the directory names match the goose dialect names.
//
//go:embed clickhouse/*.sql postgres/*.sql
var FS embed.FS

// Up applies all pending embedded migrations for the dialect ("clickhouse" or "postgres").
func Up(db *sql.DB, dialect string) error {
	if err := use(dialect); err != nil {
		return err
	}
	return goose.Up(db, dialect)
}

// Down rolls back the most recent embedded migration for the dialect.
func Down(db *sql.DB, dialect string) error {
	if err := use(dialect); err != nil {
		return err
	}
	return goose.Down(db, dialect)
}

// Status prints the status of the embedded migrations for the dialect.
func Status(db *sql.DB, dialect string) error {
	if err := use(dialect); err != nil {
		return err
	}
	return goose.Status(db, dialect)
}

func use(dialect string) error {
	switch dialect {
	case "clickhouse", "postgres":
	default:
		return fmt.Errorf("unsupported migration dialect %q", dialect)
	}
	goose.SetBaseFS(FS)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return nil
}

// Version returns the current migration version recorded in the database.
func Version(db *sql.DB, dialect string) (int64, error) {
	if err := use(dialect); err != nil {
		return 0, err
	}
	return goose.GetDBVersion(db)
}
