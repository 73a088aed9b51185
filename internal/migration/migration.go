package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	ledgerdomain "github.com/smallbiznis/loyara/internal/ledger/domain"
	merchantdomain "github.com/smallbiznis/loyara/internal/merchant/domain"
	ruledomain "github.com/smallbiznis/loyara/internal/rule/domain"
	userdomain "github.com/smallbiznis/loyara/internal/user/domain"
	walletdomain "github.com/smallbiznis/loyara/internal/wallet/domain"
)

// RunMigrations applies the versioned SQL migrations. Postgres only; other
// dialects go through AutoMigrate.
func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

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
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}

// AutoMigrate creates the schema from the models for mysql and sqlite,
// where the versioned postgres migrations do not apply.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&merchantdomain.Merchant{},
		&ruledomain.Rule{},
		&userdomain.User{},
		&walletdomain.Wallet{},
		&walletdomain.PointBatch{},
		&ledgerdomain.Transaction{},
	)
}
