package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	alertdomain "github.com/watchkeep/watchkeep/internal/alert/domain"
	ledgerdomain "github.com/watchkeep/watchkeep/internal/ledger/domain"
	"gorm.io/gorm"
)

//go:embed sql
var embeddedMigrations embed.FS

const migrationsDir = "sql"

// Run creates or updates the schema. Postgres goes through versioned SQL
// migrations; the embedded and mysql engines use the model definitions
// directly. Idempotent either way.
func Run(conn *gorm.DB) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}

	if conn.Dialector.Name() == "postgres" {
		sqlDB, err := conn.DB()
		if err != nil {
			return err
		}
		return runVersioned(sqlDB)
	}
	return autoMigrate(conn)
}

func autoMigrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&alertdomain.Alert{},
		&alertdomain.AlertAction{},
		&alertdomain.ThresholdRule{},
		&alertdomain.MetricSample{},
		&ledgerdomain.UserProfile{},
		&ledgerdomain.RevenueEvent{},
		&ledgerdomain.ReferralAttribution{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func runVersioned(db *sql.DB) error {
	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not close the migrator here, it would close the shared *sql.DB.

	return nil
}
