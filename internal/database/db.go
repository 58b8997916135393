package database

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect establishes a connection to the PostgreSQL database and returns
// the handle. Callers pass the handle into each component explicitly; there
// is no package-level instance.
func Connect(dsn string, logLevel logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

// AutoMigrate runs database migrations
func AutoMigrate(db *gorm.DB) error {
	log.Println("Running database migrations...")

	err := db.AutoMigrate(
		&Severity{},
		&IncidentType{},
		&Department{},
		&User{},
		&Occurrence{},
		&OccurrenceAssignment{},
		&OccurrenceMessage{},
		&NotificationPreference{},
		&Notification{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// InitializeDefaults seeds the severity scale and incident taxonomy on a
// fresh database. Existing rows are left untouched.
func InitializeDefaults(db *gorm.DB) error {
	log.Println("Initializing default database records...")

	if err := SeedTaxonomy(db); err != nil {
		return fmt.Errorf("failed to seed incident taxonomy: %w", err)
	}

	return nil
}
