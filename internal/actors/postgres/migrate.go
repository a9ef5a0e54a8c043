package postgres

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

// MigrateArgs are the arguments to apply the schema migrations.
type MigrateArgs struct {
	// URL is the postgres connection url.
	URL string

	// Dir is the directory holding the migration files.
	Dir string

	// Down rolls every migration back instead of applying them.
	Down bool
}

// Migrate applies (or rolls back) the schema migrations found in args.Dir.
// Having nothing to migrate is not an error.
func Migrate(args MigrateArgs) error {
	db, err := sql.Open("postgres", args.URL)
	if err != nil {
		return fmt.Errorf("error opening db connection: %w", err)
	}
	defer db.Close()

	driver, err := migratepostgres.WithInstance(db, &migratepostgres.Config{})
	if err != nil {
		return fmt.Errorf("error invoking withInstance: %w", err)
	}

	dir, err := filepath.Abs(args.Dir)
	if err != nil {
		return fmt.Errorf("error resolving migrations dir: %w", err)
	}
	migrationsDir := "file://" + filepath.ToSlash(dir)
	log.WithField("dir", migrationsDir).Info("using migrations")

	m, err := migrate.NewWithDatabaseInstance(migrationsDir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("NewWithDatabaseInstance error: %w", err)
	}

	if args.Down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("error migrating (down=%t): %w", args.Down, err)
	}
	return nil
}
