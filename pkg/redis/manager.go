package redis

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	cacheKeySeparator = ":"

	// first byte of every value written by SetValue
	encodingRaw  byte = 0
	encodingGzip byte = 1
)

// Manager manages Redis connections and cache operations
type Manager struct {
	config  *Config
	client  redis.UniversalClient
	metrics *Metrics
}

// NewManager creates a new Redis cache manager
func NewManager(config *Config) (*Manager, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	manager := &Manager{config: config}
	if config.EnableMetrics {
		manager.metrics = NewMetrics()
	}

	manager.initializeClient()
	return manager, nil
}

// initializeClient sets up the Redis client based on configuration
func (m *Manager) initializeClient() {
	if !m.config.Enabled {
		return // Skip initialization if cache is disabled
	}

	if m.config.IsClusterMode() {
		m.client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:           m.config.Cluster.Addresses,
			Username:        m.config.Cluster.Username,
			Password:        m.config.Cluster.Password,
			PoolSize:        m.config.PoolSize,
			MinIdleConns:    m.config.MinIdleConns,
			ConnMaxLifetime: m.config.MaxConnAge,
			PoolTimeout:     m.config.PoolTimeout,
			ConnMaxIdleTime: m.config.IdleTimeout,
			ReadTimeout:     m.config.ReadTimeout,
			WriteTimeout:    m.config.WriteTimeout,
			DialTimeout:     m.config.DialTimeout,
		})
		return
	}

	m.client = redis.NewClient(&redis.Options{
		Addr:            m.config.GetAddr(),
		Password:        m.config.Password,
		DB:              m.config.Database,
		PoolSize:        m.config.PoolSize,
		MinIdleConns:    m.config.MinIdleConns,
		ConnMaxLifetime: m.config.MaxConnAge,
		PoolTimeout:     m.config.PoolTimeout,
		ConnMaxIdleTime: m.config.IdleTimeout,
		ReadTimeout:     m.config.ReadTimeout,
		WriteTimeout:    m.config.WriteTimeout,
		DialTimeout:     m.config.DialTimeout,
	})
}

// Config returns the manager's configuration
func (m *Manager) Config() *Config {
	return m.config
}

// Enabled reports whether cache operations will reach Redis
func (m *Manager) Enabled() bool {
	return m != nil && m.config.Enabled && m.client != nil
}

// Key joins parts onto the configured key prefix
func (m *Manager) Key(parts ...string) string {
	return m.config.KeyPrefix + cacheKeySeparator + strings.Join(parts, cacheKeySeparator)
}

// Close closes the Redis connection
func (m *Manager) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

// Ping tests the Redis connection
// Returns nil if cache is disabled (not an error condition)
// Returns ErrConnectionFailed if ping fails
func (m *Manager) Ping(ctx context.Context) error {
	if !m.config.Enabled {
		return nil
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}

	if err := m.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	return nil
}

// checkClient validates that cache is enabled and client is initialized
func (m *Manager) checkClient() error {
	if !m.config.Enabled {
		return ErrCacheDisabled
	}
	if m.client == nil {
		return ErrClientNotInitialized
	}
	return nil
}

// Get retrieves a raw value from cache
func (m *Manager) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.checkClient(); err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := m.client.Get(ctx, key).Bytes()
	m.metrics.observe(opGet, time.Since(start))

	if errors.Is(err, redis.Nil) {
		m.metrics.lookup(false, nil)
		return nil, ErrKeyNotFound
	}
	m.metrics.lookup(true, err)
	if err != nil {
		return nil, commandError("get", err)
	}
	return data, nil
}

// Set stores a raw value in cache with the default TTL
func (m *Manager) Set(ctx context.Context, key string, value []byte) error {
	return m.SetWithTTL(ctx, key, value, m.config.DefaultTTL)
}

// SetWithTTL stores a raw value in cache with custom TTL
func (m *Manager) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	start := time.Now()
	err := m.client.Set(ctx, key, value, ttl).Err()
	m.metrics.observe(opSet, time.Since(start))

	if err != nil {
		m.metrics.failed()
		return commandError("set", err)
	}
	return nil
}

// Delete removes keys from cache
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	if err := m.checkClient(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}

	start := time.Now()
	err := m.client.Del(ctx, keys...).Err()
	m.metrics.observe(opDelete, time.Since(start))

	if err != nil {
		return commandError("delete", err)
	}
	return nil
}

// commandError wraps a failed command. Anything other than a server reply or
// a cancelled context means the server could not be reached and is reported
// as ErrConnectionFailed.
func commandError(command string, err error) error {
	var reply redis.Error
	if errors.As(err, &reply) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("redis %s error: %w", command, err)
	}
	return fmt.Errorf("%w: redis %s: %w", ErrConnectionFailed, command, err)
}

// InvalidatePattern removes keys matching a pattern using SCAN instead of KEYS
// SCAN is non-blocking and production-safe, unlike KEYS which blocks the Redis server
func (m *Manager) InvalidatePattern(ctx context.Context, pattern string) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	if cluster, ok := m.client.(*redis.ClusterClient); ok {
		return cluster.ForEachMaster(ctx, func(ctx context.Context, node *redis.Client) error {
			return m.scanAndDelete(ctx, node, pattern)
		})
	}
	return m.scanAndDelete(ctx, m.client, pattern)
}

// scanAndDelete collects every key matching pattern before deleting any, so
// the deletes cannot disturb the SCAN cursor
func (m *Manager) scanAndDelete(ctx context.Context, client redis.Cmdable, pattern string) error {
	const scanBatchSize = 100

	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := client.Scan(ctx, cursor, pattern, scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("failed to scan keys with pattern %s: %w", pattern, err)
		}
		keys = append(keys, batch...)

		// cursor == 0 means we've iterated through all keys
		cursor = next
		if cursor == 0 {
			break
		}
	}

	// Delete keys in batches to avoid large atomic operations
	for batch := range slices.Chunk(slices.Compact(slices.Sorted(slices.Values(keys))), scanBatchSize) {
		if err := client.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("failed to delete batch: %w", err)
		}
		m.metrics.invalidated()
	}
	return nil
}

// SetValue encodes value with msgpack, compressing it when it crosses the
// configured threshold, and stores it with the default TTL.
func (m *Manager) SetValue(ctx context.Context, key string, value any) error {
	return m.SetValueWithTTL(ctx, key, value, m.config.DefaultTTL)
}

// SetValueWithTTL is SetValue with a custom TTL
func (m *Manager) SetValueWithTTL(ctx context.Context, key string, value any, ttl time.Duration) error {
	if err := m.checkClient(); err != nil {
		return err
	}

	encoded, err := msgpack.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}

	header := encodingRaw
	if m.config.Compression.Enabled && len(encoded) > m.config.Compression.Threshold {
		compressed, err := compressData(encoded)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
		}
		if len(compressed) < len(encoded) {
			m.metrics.compressed(len(encoded) - len(compressed))
			encoded = compressed
			header = encodingGzip
		}
	}

	data := make([]byte, 0, len(encoded)+1)
	data = append(data, header)
	data = append(data, encoded...)
	return m.SetWithTTL(ctx, key, data, ttl)
}

// GetValue loads a value written by SetValue into target.
// Returns ErrKeyNotFound on a cache miss.
func (m *Manager) GetValue(ctx context.Context, key string, target any) error {
	data, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty value for key %s", ErrSerializationFailed, key)
	}

	payload := data[1:]
	switch data[0] {
	case encodingRaw:
	case encodingGzip:
		if payload, err = decompressData(payload); err != nil {
			return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
		}
	default:
		return fmt.Errorf("%w: unknown encoding %d for key %s", ErrSerializationFailed, data[0], key)
	}

	if err := msgpack.Unmarshal(payload, target); err != nil {
		return fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return nil
}

// GetMetrics returns current cache performance metrics
func (m *Manager) GetMetrics() MetricsSnapshot {
	return m.metrics.Snapshot()
}

// ResetMetrics resets all performance metrics counters
func (m *Manager) ResetMetrics() {
	m.metrics.Reset()
}

// compressData compresses data using gzip
func compressData(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// decompressData decompresses gzip data
func decompressData(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	return io.ReadAll(reader)
}
