// Package migrate applies the embedded session and audit migrations using golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"auth-session/backend/internal/db"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// ErrNilVersion is returned by Version when no migration has been applied.
var ErrNilVersion = migrate.ErrNilVersion

// Run applies migrations in the given direction using the provided DSN.
// direction must be "up" or "down". steps > 0 moves at most that many versions; 0 means all.
// Returns nil when there is nothing to do.
func Run(dsn string, direction string, steps int) error {
	if err := validate(dsn, direction, steps); err != nil {
		return err
	}
	m, err := open(dsn)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()

	switch {
	case steps > 0 && direction == "up":
		err = m.Steps(steps)
	case steps > 0:
		err = m.Steps(-steps)
	case direction == "up":
		err = m.Up()
	default:
		err = m.Down()
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Version reports the current schema version and whether the last migration left it dirty.
func Version(dsn string) (version uint, dirty bool, err error) {
	if strings.TrimSpace(dsn) == "" {
		return 0, false, errors.New("DATABASE_URL is not set")
	}
	m, err := open(dsn)
	if err != nil {
		return 0, false, err
	}
	defer func() { _, _ = m.Close() }()
	return m.Version()
}

func validate(dsn, direction string, steps int) error {
	if strings.TrimSpace(dsn) == "" {
		return errors.New("DATABASE_URL is not set")
	}
	if direction != "up" && direction != "down" {
		return fmt.Errorf("direction must be up or down, got %q", direction)
	}
	if steps < 0 {
		return fmt.Errorf("steps must not be negative, got %d", steps)
	}
	return nil
}

func open(dsn string) (*migrate.Migrate, error) {
	sourceDriver, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return m, nil
}
