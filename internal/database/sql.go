package database

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"collab-service/internal/config"
	"collab-service/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLConnection opens the document store selected by DB_DRIVER and
// migrates the collaboration schema.
func NewSQLConnection(cfg config.StoreConfig) (*gorm.DB, error) {
	dialector, err := dialectorFor(cfg.Driver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		PrepareStmt:                              false,
		SkipDefaultTransaction:                   true,
		AllowGlobalUpdate:                        false,
		Logger:                                   logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	if err := Migrate(db); err != nil {
		return nil, err
	}

	slog.Info("Document store connected", "driver", cfg.Driver)
	return db, nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, error) {
	switch driver {
	case config.DriverPostgres:
		return postgres.Open(dsn), nil
	case config.DriverMySQL:
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Migrate creates or updates the users, documents and collaborators tables.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Document{},
		&models.Collaborator{},
	)
	if err != nil {
		if strings.Contains(err.Error(), "already exists") {
			slog.Info("Tables already exist, continuing with existing schema")
			return nil
		}
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}
