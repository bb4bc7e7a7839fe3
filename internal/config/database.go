package config

import (
	"fmt"
	"time"
)

// Default pool sizes for the SQL backend
const (
	DefaultMaxOpenConns    = 20
	DefaultMaxIdleConns    = 10
	DefaultConnMaxLifetime = 30 * time.Minute
	DefaultConnMaxIdleTime = 15 * time.Minute
)

// DSN builds the driver-specific connection string
func (c DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// TableNames returns the logical-to-physical sheet name mapping
func (c StoreConfig) TableNames() map[string]string {
	return map[string]string{
		"pickings":         c.Tables.Pickings,
		"detalle_pickings": c.Tables.Details,
		"usuarios":         c.Tables.Users,
	}
}
