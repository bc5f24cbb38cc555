package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry applied by the migrate CLI subcommand and by
// server startup when Postgres is configured.
var Migrations = migrate.NewMigrations()
