package database

import (
	"fmt"
	"log"
	"time"

	"contest-lifecycle/internal/config"
	"contest-lifecycle/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Connect opens the configured store and keeps it as the package default
func Connect(cfg *config.Config) error {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case config.DriverSQLite:
		dialector = sqlite.Open(cfg.Database.SQLitePath)
	default:
		dialector = postgres.Open(cfg.GetDSN())
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.Database.Driver == config.DriverSQLite {
		// SQLite allows a single writer; queue on the pool rather than on SQLITE_BUSY.
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get sql handle: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	DB = db
	log.Printf("Database connection established successfully (%s)", cfg.Database.Driver)
	return nil
}

// Models lists every table the service owns, in migration order
func Models() []interface{} {
	return []interface{}{
		&models.ContestTemplate{},
		&models.ContestInstance{},
		&models.TransitionLogEntry{},
		&models.StandingsSnapshot{},
		&models.StandingsIngestion{},
		&models.SettlementRecord{},
		&models.AdminLog{},
	}
}

// Migrate runs automatic migrations for all models
func Migrate(db *gorm.DB) error {
	for _, model := range Models() {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migration failed for %T: %w", model, err)
		}
	}
	return nil
}

// AutoMigrate migrates the package default connection
func AutoMigrate() error {
	if err := Migrate(DB); err != nil {
		return err
	}
	log.Println("Database migrations completed successfully")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
