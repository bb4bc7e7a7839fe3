package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"pickings/internal/config"
)

const healthCheckTimeout = 10 * time.Second

// Manager owns the gorm connection used by the SQL store backend
type Manager struct {
	config *config.DatabaseConfig
	gormDB *gorm.DB
	sqlDB  *sql.DB
	logger *zerolog.Logger
}

// GORMConfig is shared by every connection the manager opens
var GORMConfig = &gorm.Config{
	Logger:                 logger.Default.LogMode(logger.Silent),
	SkipDefaultTransaction: true,
	PrepareStmt:            true,
	NamingStrategy: schema.NamingStrategy{
		SingularTable: false,
	},
}

// Dialector picks the gorm driver for cfg.Driver
func Dialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres", "":
		return postgres.Open(cfg.DSN()), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN()), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// Open connects, sizes the pool and verifies the connection
func Open(cfg *config.DatabaseConfig, log *zerolog.Logger) (*Manager, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, GORMConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite takes one writer at a time
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(orDefault(cfg.MaxOpenConns, config.DefaultMaxOpenConns))
		sqlDB.SetMaxIdleConns(orDefault(cfg.MaxIdleConns, config.DefaultMaxIdleConns))
	}
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	m := &Manager{config: cfg, gormDB: db, sqlDB: sqlDB, logger: log}
	if err := m.HealthCheck(context.Background()); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database health check failed: %w", err)
	}

	if log != nil {
		log.Info().Str("driver", cfg.Driver).Msg("database connected")
	}
	return m, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// HealthCheck runs a trivial query with a bounded timeout
func (m *Manager) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	var result int
	return m.gormDB.WithContext(ctx).Raw("SELECT 1").Scan(&result).Error
}

// GetGormDB returns the GORM database instance
func (m *Manager) GetGormDB() *gorm.DB {
	return m.gormDB
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.sqlDB.Close()
}
