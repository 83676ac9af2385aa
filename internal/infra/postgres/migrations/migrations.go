// Package migrations holds the Postgres schema, applied with bun's migrator.
package migrations

import (
	"context"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

// execSQL returns a migration step that runs a SQL script.
func execSQL(script string) migrate.MigrationFunc {
	return func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, script)
		return err
	}
}
