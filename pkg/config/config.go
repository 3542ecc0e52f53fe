// Package config loads database and cache settings from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/ammar0144/specstore/pkg/db"
	"github.com/ammar0144/specstore/pkg/redis"
)

// EnvPrefix prefixes every environment override, e.g.
// SPECSTORE_DATABASE_PASSWORD overrides database.password.
const EnvPrefix = "SPECSTORE"

// Config is the complete configuration of a store
type Config struct {
	Database db.Config    `mapstructure:"database"`
	Redis    redis.Config `mapstructure:"redis"`
}

// Load reads the configuration. With an empty path it looks for
// specstore.yaml in ./config and the working directory and falls back to
// defaults and environment variables when no file exists.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("specstore")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks both sections
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// setDefaults registers every key so environment variables can override keys
// the file does not mention.
func setDefaults(v *viper.Viper) {
	d := db.DefaultConfig()
	v.SetDefault("database.host", d.Host)
	v.SetDefault("database.port", d.Port)
	v.SetDefault("database.database", d.Database)
	v.SetDefault("database.username", d.Username)
	v.SetDefault("database.password", d.Password)
	v.SetDefault("database.max_open_conns", d.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", d.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", d.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", d.ConnMaxIdleTime)
	v.SetDefault("database.charset", d.Charset)
	v.SetDefault("database.collation", d.Collation)
	v.SetDefault("database.timezone", d.TimeZone)
	v.SetDefault("database.disable_foreign_key_constraint_when_migrating", d.DisableForeignKeyConstraintWhenMigrating)
	v.SetDefault("database.prepare_stmt", d.PrepareStmt)
	v.SetDefault("database.query_timeout", d.QueryTimeout)
	v.SetDefault("database.ssl.enabled", d.SSL.Enabled)
	v.SetDefault("database.ssl.cert_file", d.SSL.CertFile)
	v.SetDefault("database.ssl.key_file", d.SSL.KeyFile)
	v.SetDefault("database.ssl.ca_file", d.SSL.CAFile)
	v.SetDefault("database.ssl.skip_verify", d.SSL.SkipVerify)
	v.SetDefault("database.ssl.server_name", d.SSL.ServerName)
	v.SetDefault("database.logging.level", d.Logging.Level)
	v.SetDefault("database.logging.slow_query_threshold", d.Logging.SlowQueryThreshold)
	v.SetDefault("database.logging.log_query_parameters", d.Logging.LogQueryParameters)
	v.SetDefault("database.logging.colorful", d.Logging.Colorful)

	r := redis.DefaultConfig()
	v.SetDefault("redis.enabled", r.Enabled)
	v.SetDefault("redis.key_prefix", r.KeyPrefix)
	v.SetDefault("redis.default_ttl", r.DefaultTTL)
	v.SetDefault("redis.host", r.Host)
	v.SetDefault("redis.port", r.Port)
	v.SetDefault("redis.password", r.Password)
	v.SetDefault("redis.database", r.Database)
	v.SetDefault("redis.pool_size", r.PoolSize)
	v.SetDefault("redis.min_idle_conns", r.MinIdleConns)
	v.SetDefault("redis.max_conn_age", r.MaxConnAge)
	v.SetDefault("redis.pool_timeout", r.PoolTimeout)
	v.SetDefault("redis.idle_timeout", r.IdleTimeout)
	v.SetDefault("redis.read_timeout", r.ReadTimeout)
	v.SetDefault("redis.write_timeout", r.WriteTimeout)
	v.SetDefault("redis.dial_timeout", r.DialTimeout)
	v.SetDefault("redis.cluster.enabled", r.Cluster.Enabled)
	v.SetDefault("redis.cluster.addresses", []string{})
	v.SetDefault("redis.cluster.username", r.Cluster.Username)
	v.SetDefault("redis.cluster.password", r.Cluster.Password)
	v.SetDefault("redis.compression.enabled", r.Compression.Enabled)
	v.SetDefault("redis.compression.threshold", r.Compression.Threshold)
	v.SetDefault("redis.enable_metrics", r.EnableMetrics)
}
