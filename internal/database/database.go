package database

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/gdg-garage/garage-rsvp-api/internal/config"
	"github.com/gdg-garage/garage-rsvp-api/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newLogger logs slow queries and failures. Missing rows are an expected
// outcome of lookups and are not reported.
func newLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// Open connects to the configured database and migrates the schema.
func Open(cfg *config.Config) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         newLogger(log.New(os.Stdout, "\r\n", log.LstdFlags)),
	}

	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case config.DriverMySQL:
		if cfg.DatabaseDSN == "" {
			return nil, fmt.Errorf("DATABASE_DSN is required for the mysql driver")
		}
		dialector = mysql.Open(cfg.DatabaseDSN)
	case config.DriverSQLite, "":
		dialector = sqlite.Open(sqliteDSN(cfg.DatabasePath))
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.DatabaseDriver != config.DriverMySQL {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("sqlite pool: %w", err)
		}
		// Every :memory: connection is its own database, and sqlite has a
		// single writer anyway.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Connect is Open for process startup: any failure is fatal.
func Connect(cfg *config.Config) *gorm.DB {
	db, err := Open(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return db
}

func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Event{},
		&models.RSVP{},
		&models.RSVPHistory{},
		&models.APIKey{},
	)
	if err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}

func sqliteDSN(path string) string {
	if path == "" {
		path = ":memory:"
	}
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_txlock=immediate&_busy_timeout=5000&_foreign_keys=1"
}
