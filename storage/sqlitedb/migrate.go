package sqlitedb

import (
	"database/sql"
	"embed"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/johejo/golang-migrate-extra/source/iofs"
	"github.com/pkg/errors"

	"weft/outbound-queue/log"
)

const migrationsTable = "outbound_queue_schema_migrations"

//go:embed migrations/*.sql
var migrationFiles embed.FS

func migrateDatabase(db *sql.DB, skipMigrations bool) error {
	if skipMigrations {
		log.Logger.Info("skipping database migrations because they are disabled")
		return nil
	}

	log.Logger.Debug("checking database migrations")

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return errors.Wrap(err, "sqlitedb: unable to create migration instance from database")
	}

	d, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return errors.Wrap(err, "sqlitedb: unable to load migration files from embedded filesystem")
	}

	m, err := migrate.NewWithInstance("iofs", d, "outbound-queue", driver)
	if err != nil {
		return errors.Wrap(err, "sqlitedb: failed to load migration files from source driver")
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "sqlitedb: failed to migrate database")
	}

	log.Logger.Debug("database is up-to-date, all migrations applied")

	return nil
}
