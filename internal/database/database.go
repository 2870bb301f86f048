// Package database opens the GORM connections and owns the schema.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"zola/internal/config"
	"zola/internal/middleware"
	"zola/internal/models"
)

// DB is the primary connection once Connect succeeded.
var DB *gorm.DB

var replica *gorm.DB

// GetReadDB returns the read replica, or nil when reads go to the primary.
func GetReadDB() *gorm.DB {
	return replica
}

// PersistentModels lists the migrated models. Join tables come with them.
func PersistentModels() []interface{} {
	return []interface{}{
		&models.Tag{},
		&models.User{},
		&models.Writer{},
		&models.Book{},
		&models.Reader{},
		&models.Comment{},
	}
}

// Migrate brings the schema up to date.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(PersistentModels()...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func postgresDSN(host, port, user, password, name, sslMode string) string {
	if sslMode == "" {
		sslMode = "disable"
	}
	return strings.Join([]string{
		"host=" + host,
		"port=" + port,
		"user=" + user,
		"password=" + password,
		"dbname=" + name,
		"sslmode=" + sslMode,
	}, " ")
}

func dialector(cfg *config.Config, host string) gorm.Dialector {
	if cfg.DBDriver == "sqlite" {
		return sqlite.Open(cfg.SQLitePath + "?_foreign_keys=on")
	}
	return postgres.Open(postgresDSN(host, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode))
}

// Open connects to the configured database without touching the schema.
func Open(cfg *config.Config) (*gorm.DB, error) {
	return open(cfg, cfg.DBHost)
}

func open(cfg *config.Config, host string) (*gorm.DB, error) {
	db, err := gorm.Open(dialector(cfg, host), &gorm.Config{Logger: newQueryLogger(middleware.Logger)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql.DB: %w", err)
	}

	if cfg.DBDriver == "sqlite" {
		// one writer at a time
		sqlDB.SetMaxOpenConns(1)
		return db, nil
	}
	if cfg.DBMaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.DBMaxOpenConns)
	}
	if cfg.DBMaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.DBMaxIdleConns)
	}
	if cfg.DBConnMaxLifetimeMin > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeMin) * time.Minute)
	}
	return db, nil
}

// Connect opens the primary, migrates it outside production and attaches
// the read replica when DB_READ_HOST is set. A replica that fails to open
// is logged and skipped.
func Connect(cfg *config.Config) (*gorm.DB, error) {
	db, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	middleware.Logger.Info("Database connected", slog.String("driver", cfg.DBDriver))

	if !cfg.IsProduction() {
		if err := Migrate(db); err != nil {
			return nil, err
		}
	}

	if cfg.DBDriver == "postgres" && cfg.DBReadHost != "" {
		r, err := open(cfg, cfg.DBReadHost)
		if err != nil {
			middleware.Logger.Warn("Read replica unavailable, reads go to primary",
				slog.String("host", cfg.DBReadHost),
				slog.String("error", err.Error()),
			)
		} else {
			replica = r
		}
	}

	DB = db
	return DB, nil
}

// Ping checks the primary for health reporting.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
