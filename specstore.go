// Package specstore is a data-access layer over GORM: specifications describe
// queries, generic repositories execute them, and a unit of work commits the
// staged changes of one operation atomically, with an optional Redis
// read-through cache.
package specstore

import (
	"context"

	"gorm.io/gorm"

	"github.com/ammar0144/specstore/pkg/db"
	"github.com/ammar0144/specstore/pkg/redis"
	"github.com/ammar0144/specstore/pkg/repository"
	"github.com/ammar0144/specstore/pkg/specification"
)

// Config represents database configuration
type Config = db.Config

// RedisConfig represents Redis configuration
type RedisConfig = redis.Config

// Entity interface that all repository entities must implement
type Entity = repository.Entity

// UnitOfWork is the operation-scoped owner of repositories and staged changes
type UnitOfWork = repository.UnitOfWork

// Repository provides the generic repository interface
type Repository[T Entity] interface {
	repository.Repository[T]
}

// NewManager creates a new MySQL database manager
func NewManager(config *Config) (*db.Manager, error) {
	return db.NewManager(config)
}

// DefaultConfig returns a database configuration with pool and driver defaults
func DefaultConfig() *Config {
	return db.DefaultConfig()
}

// NewManagerWithDialector creates a database manager over any gorm dialector
func NewManagerWithDialector(dialector gorm.Dialector, config *Config) (*db.Manager, error) {
	return db.NewManagerWithDialector(dialector, config)
}

// NewRedisManager creates a new Redis manager
func NewRedisManager(config *RedisConfig) (*redis.Manager, error) {
	return redis.NewManager(config)
}

// NewUnitOfWork starts a unit of work.
// If redisManager is nil, operates in database-only mode
func NewUnitOfWork(dbManager *db.Manager, redisManager *redis.Manager) *UnitOfWork {
	return repository.NewUnitOfWork(dbManager, redisManager)
}

// RepositoryFor returns the repository for T from u
func RepositoryFor[T Entity](u *UnitOfWork) *repository.GenericRepository[T] {
	return repository.RepositoryFor[T](u)
}

// ListAs runs a projection specification and returns its rows
func ListAs[T Entity, R any](ctx context.Context, repo *repository.GenericRepository[T], spec *specification.Specification[T, R]) ([]R, error) {
	return repository.ListAs(ctx, repo, spec)
}

// GetEntityAs runs a projection specification and returns its first row, or
// nil when nothing matches
func GetEntityAs[T Entity, R any](ctx context.Context, repo *repository.GenericRepository[T], spec *specification.Specification[T, R]) (*R, error) {
	return repository.GetEntityAs(ctx, repo, spec)
}
