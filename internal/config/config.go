package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. PICKINGS_SERVER_PORT.
const EnvPrefix = "PICKINGS"

// Store backends.
const (
	BackendSheets = "sheets"
	BackendSQL    = "sql"
	BackendMemory = "memory"
)

// AppConfig represents the main application configuration
type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Worker   WorkerConfig   `mapstructure:"worker"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	Host         string        `mapstructure:"host"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	BodyLimitMB  int           `mapstructure:"body_limit_mb"`
	RateLimit    int           `mapstructure:"rate_limit"`
	RateWindow   time.Duration `mapstructure:"rate_window"`
}

// StoreConfig selects and configures the tabular store backend
type StoreConfig struct {
	Backend         string       `mapstructure:"backend"`
	SpreadsheetID   string       `mapstructure:"spreadsheet_id"`
	CredentialsFile string       `mapstructure:"credentials_file"`
	Tables          TablesConfig `mapstructure:"tables"`
}

// TablesConfig maps the logical tables onto sheet names
type TablesConfig struct {
	Pickings string `mapstructure:"pickings"`
	Details  string `mapstructure:"details"`
	Users    string `mapstructure:"users"`
}

// DatabaseConfig represents the SQL backend connection
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// RedisConfig represents Redis configuration
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	PoolSize int           `mapstructure:"pool_size"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// CacheConfig represents the read cache
type CacheConfig struct {
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// RetryConfig tunes the store accessor
type RetryConfig struct {
	MaxRetries        int `mapstructure:"max_retries"`
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// TracingConfig represents OpenTelemetry configuration
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Exporter    string `mapstructure:"exporter"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
}

// WorkerConfig represents the background worker
type WorkerConfig struct {
	Concurrency int    `mapstructure:"concurrency"`
	AuditCron   string `mapstructure:"audit_cron"`
	AuditRepair bool   `mapstructure:"audit_repair"`
}

// ConfigLoader reads AppConfig from a config file and the environment
type ConfigLoader struct {
	viper *viper.Viper
}

// NewConfigLoader creates a loader searching ./config.yaml and ./config/config.yaml
func NewConfigLoader() *ConfigLoader {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return &ConfigLoader{viper: v}
}

// SetConfigFile points the loader at an explicit file
func (l *ConfigLoader) SetConfigFile(path string) {
	l.viper.SetConfigFile(path)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.body_limit_mb", 10)
	v.SetDefault("server.rate_limit", 120)
	v.SetDefault("server.rate_window", time.Minute)

	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.spreadsheet_id", "")
	v.SetDefault("store.credentials_file", "")
	v.SetDefault("store.tables.pickings", "pickings")
	v.SetDefault("store.tables.details", "detalle_pickings")
	v.SetDefault("store.tables.users", "usuarios")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "pickings")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "pickings.db")
	v.SetDefault("database.max_open_conns", DefaultMaxOpenConns)
	v.SetDefault("database.max_idle_conns", DefaultMaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", DefaultConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", DefaultConnMaxIdleTime)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.timeout", 5*time.Second)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 60*time.Second)

	v.SetDefault("retry.max_retries", 3)
	// Sheets allows 60 read requests per minute per user
	v.SetDefault("retry.requests_per_minute", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.exporter", "stdout")
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "pickings")

	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.audit_cron", "0 * * * *")
	v.SetDefault("worker.audit_repair", true)
}

// Load reads, unmarshals and validates the configuration
func (l *ConfigLoader) Load() (*AppConfig, error) {
	if err := l.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, using defaults
	}

	var config AppConfig
	if err := l.viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// LoadConfig loads application configuration from the default locations
func LoadConfig() (*AppConfig, error) {
	return NewConfigLoader().Load()
}

// validateConfig validates the configuration values
func validateConfig(config *AppConfig) error {
	if config.Server.Port < 1 || config.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	switch config.Store.Backend {
	case BackendSheets:
		if config.Store.SpreadsheetID == "" {
			return fmt.Errorf("store.spreadsheet_id cannot be empty for the sheets backend")
		}
		if config.Store.CredentialsFile == "" {
			return fmt.Errorf("store.credentials_file cannot be empty for the sheets backend")
		}
	case BackendSQL:
		switch config.Database.Driver {
		case "postgres":
			if config.Database.Host == "" {
				return fmt.Errorf("database.host cannot be empty")
			}
			if config.Database.DBName == "" {
				return fmt.Errorf("database.dbname cannot be empty")
			}
		case "sqlite":
			if config.Database.Path == "" {
				return fmt.Errorf("database.path cannot be empty")
			}
		default:
			return fmt.Errorf("database.driver must be postgres or sqlite, got %q", config.Database.Driver)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend must be one of sheets, sql, memory, got %q", config.Store.Backend)
	}

	if config.Store.Tables.Pickings == "" || config.Store.Tables.Details == "" || config.Store.Tables.Users == "" {
		return fmt.Errorf("store.tables entries cannot be empty")
	}

	switch config.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", config.Cache.Backend)
	}
	if config.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	if config.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries cannot be negative")
	}

	if config.Worker.Concurrency < 1 {
		return fmt.Errorf("worker.concurrency must be at least 1")
	}

	return nil
}
