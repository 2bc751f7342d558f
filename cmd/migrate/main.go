package main

import (
	"log/slog"
	"os"

	"collab-service/internal/config"
	"collab-service/internal/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if cfg.Store.Kind != config.StoreSQL {
		slog.Info("Nothing to migrate", "store", cfg.Store.Kind)
		return
	}

	slog.Info("Starting database migration...", "driver", cfg.Store.Driver)

	db, err := database.NewSQLConnection(cfg.Store)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := database.Migrate(db); err != nil {
		slog.Error("Migration failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Database migration completed successfully!")
}
