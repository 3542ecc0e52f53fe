package db

import (
	"sync"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config holds MySQL/GORM database configuration
type Config struct {
	// Connection Settings
	Host     string `json:"host" yaml:"host" mapstructure:"host"`
	Port     int    `json:"port" yaml:"port" mapstructure:"port"`
	Database string `json:"database" yaml:"database" mapstructure:"database"`
	Username string `json:"username" yaml:"username" mapstructure:"username"`
	Password string `json:"password" yaml:"password" mapstructure:"password"`

	// Connection Pool Settings
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time" yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`

	// MySQL Specific Settings
	Charset   string `json:"charset" yaml:"charset" mapstructure:"charset"`       // Default: utf8mb4
	Collation string `json:"collation" yaml:"collation" mapstructure:"collation"` // Default: utf8mb4_unicode_ci
	TimeZone  string `json:"timezone" yaml:"timezone" mapstructure:"timezone"`    // Default: UTC

	// GORM Settings
	DisableForeignKeyConstraintWhenMigrating bool          `json:"disable_foreign_key_constraint_when_migrating" yaml:"disable_foreign_key_constraint_when_migrating" mapstructure:"disable_foreign_key_constraint_when_migrating"`
	PrepareStmt                              bool          `json:"prepare_stmt" yaml:"prepare_stmt" mapstructure:"prepare_stmt"`
	QueryTimeout                             time.Duration `json:"query_timeout" yaml:"query_timeout" mapstructure:"query_timeout"`

	// SSL Configuration
	SSL SSLConfig `json:"ssl" yaml:"ssl" mapstructure:"ssl"`

	// Logging Configuration
	Logging LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`
}

// SSLConfig holds SSL/TLS configuration for MySQL
type SSLConfig struct {
	Enabled    bool   `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	CertFile   string `json:"cert_file" yaml:"cert_file" mapstructure:"cert_file"`
	KeyFile    string `json:"key_file" yaml:"key_file" mapstructure:"key_file"`
	CAFile     string `json:"ca_file" yaml:"ca_file" mapstructure:"ca_file"`
	SkipVerify bool   `json:"skip_verify" yaml:"skip_verify" mapstructure:"skip_verify"` // Skip certificate verification (not recommended for production)
	ServerName string `json:"server_name" yaml:"server_name" mapstructure:"server_name"`
}

// LoggingConfig controls database logging behavior
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" mapstructure:"level"` // silent, error, warn, info

	SlowQueryThreshold time.Duration `json:"slow_query_threshold" yaml:"slow_query_threshold" mapstructure:"slow_query_threshold"`
	LogQueryParameters bool          `json:"log_query_parameters" yaml:"log_query_parameters" mapstructure:"log_query_parameters"`
	Colorful           bool          `json:"colorful" yaml:"colorful" mapstructure:"colorful"`
}

// Model is the minimal contract an entity type needs to be registered with a Manager
type Model interface {
	TableName() string
}

// Manager owns the connection pool shared by every unit of work and the
// registry of entity types that repositories may be created for.
type Manager struct {
	config *Config
	db     *gorm.DB
	logger logger.Interface
	dbName string

	mu     sync.RWMutex
	models map[string]Model
	order  []string
}
