package cmd

import (
	"fmt"

	"github.com/amacdonaldai/gen-bionic/db"
	"github.com/amacdonaldai/gen-bionic/internal/config"
)

// runMigrate applies pending database migrations and exits.
func runMigrate() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	fmt.Println("migrations applied")
	return nil
}
