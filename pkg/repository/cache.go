package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ammar0144/specstore/pkg/redis"
)

// Cache key constants for consistent key generation
const (
	cacheKeySeparator  = ":"
	cacheKeyHashLength = 12 // Balance between uniqueness and key length
)

// readCache is the optional read-through cache of one repository. Keys have
// the form <prefix>:<database>:<table>:<operation>:<hash>.
type readCache struct {
	redis  *redis.Manager
	logger logger.Interface
	dbName string
	table  string
}

func (c *readCache) enabled() bool {
	return c.redis.Enabled()
}

// key fingerprints the statement gorm would execute, so two specifications
// composing the same SQL and bind variables share an entry.
func (c *readCache) key(operation string, stmt *gorm.Statement, extra ...string) string {
	vars, err := json.Marshal(stmt.Vars)
	if err != nil {
		// Fallback to string representation if marshal fails
		vars = []byte(fmt.Sprintf("%v", stmt.Vars))
	}

	combined := stmt.SQL.String() + cacheKeySeparator + string(vars) + cacheKeySeparator + strings.Join(extra, ",")
	hash := fmt.Sprintf("%016x", xxhash.Sum64String(combined))
	return c.redis.Key(c.dbName, c.table, operation, hash[:cacheKeyHashLength])
}

// pattern matches every key of the given table
func (c *readCache) pattern(table string) string {
	return c.redis.Key(c.dbName, table, "*")
}

// loadThrough serves the value from cache when present and otherwise loads it
// and stores it. Cache failures are logged and never fail the read.
func loadThrough[V any](ctx context.Context, c *readCache, key func() string, load func() (V, error)) (V, error) {
	if !c.enabled() {
		return load()
	}

	cacheKey := key()

	var cached V
	err := c.redis.GetValue(ctx, cacheKey, &cached)
	if err == nil {
		return cached, nil
	}
	switch {
	case redis.IsKeyNotFound(err):
	case redis.IsConnectionFailed(err):
		c.logger.Error(ctx, "cache unreachable, reading %s from the store: %v", c.table, err)
	default:
		c.logger.Warn(ctx, "cache read %s failed: %v", cacheKey, err)
	}

	value, err := load()
	if err != nil {
		return value, err
	}

	if err := c.redis.SetValue(ctx, cacheKey, value); err != nil {
		c.logger.Warn(ctx, "cache write %s failed: %v", cacheKey, err)
	}
	return value, nil
}

func dryRun(query *gorm.DB) *gorm.DB {
	return query.Session(&gorm.Session{DryRun: true})
}
