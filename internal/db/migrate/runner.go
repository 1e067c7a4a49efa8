// Package migrate runs database migrations from embedded SQL files using golang-migrate.
package migrate

import (
	"errors"
	"fmt"
	"strconv"

	"saas-control-plane/backend/internal/db"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

// ErrNoChange is returned when Up/Down has nothing to do (already at target version).
var ErrNoChange = migrate.ErrNoChange

// Direction values accepted by Run. A positive or negative integer string applies that many steps.
const (
	DirectionUp   = "up"
	DirectionDown = "down"
)

// Source returns the embedded migration source driver.
func Source() (source.Driver, error) {
	d, err := iofs.New(db.MigrationFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate source: %w", err)
	}
	return d, nil
}

// Run applies migrations in the given direction using the provided DSN.
// direction is "up", "down", or a signed step count such as "-1". Returns nil on success;
// already being at the target version is not an error.
func Run(dsn string, direction string) error {
	if dsn == "" {
		return errors.New("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}
	steps, err := parseDirection(direction)
	if err != nil {
		return err
	}

	sourceDriver, err := Source()
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	switch {
	case direction == DirectionUp:
		err = m.Up()
	case direction == DirectionDown:
		err = m.Down()
	default:
		err = m.Steps(steps)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Version reports the applied schema version and whether the last migration left it dirty.
// A database with no migrations applied reports version 0.
func Version(dsn string) (version uint, dirty bool, err error) {
	if dsn == "" {
		return 0, false, errors.New("DATABASE_URL is not set")
	}
	sourceDriver, err := Source()
	if err != nil {
		return 0, false, err
	}
	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, dsn)
	if err != nil {
		return 0, false, fmt.Errorf("migrate: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func parseDirection(direction string) (int, error) {
	switch direction {
	case DirectionUp, DirectionDown:
		return 0, nil
	}
	n, err := strconv.Atoi(direction)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("direction must be up, down or a non-zero step count, got %q", direction)
	}
	return n, nil
}
