package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/inkwell/internal/notes"
	"github.com/MarcoPoloResearchLab/inkwell/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	errMissingPath = errors.New("database path is required")
	errMissingDSN  = errors.New("database dsn is required")
)

// Config selects and locates the backing store.
type Config struct {
	Driver string
	Path   string
	DSN    string
}

// Open connects to the configured store, migrates the schema and applies
// pending named migrations.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := connect(cfg)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&users.User{}, &notes.Note{}, &notes.SharedNote{}, &migrationRecord{}); err != nil {
		return nil, err
	}
	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized", zap.String("driver", driverName(cfg.Driver)))
	return db, nil
}

func connect(cfg Config) (*gorm.DB, error) {
	switch driverName(cfg.Driver) {
	case DriverSQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, errMissingPath
		}
		db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{TranslateError: true})
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, errMissingDSN
		}
		return gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{TranslateError: true})
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func driverName(driver string) string {
	normalized := strings.ToLower(strings.TrimSpace(driver))
	if normalized == "" {
		return DriverSQLite
	}
	return normalized
}
