package db

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type author struct {
	ID   int `gorm:"primaryKey"`
	Name string
}

func (author) TableName() string { return "authors" }

type book struct {
	ID       int `gorm:"primaryKey"`
	AuthorID int
	Author   author
	Title    string
}

func (book) TableName() string { return "books" }

func newSQLiteManager(t *testing.T) *Manager {
	t.Helper()

	cfg := DefaultConfig()
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	cfg.Logging.Level = "silent"

	m, err := NewManagerWithDialector(sqlite.Open(":memory:"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestNewManagerWithDialector(t *testing.T) {
	m := newSQLiteManager(t)

	require.NoError(t, m.Ping(context.Background()))
	assert.NotEmpty(t, m.DatabaseName())
	assert.NotNil(t, m.Logger())
	assert.Equal(t, 1, m.Config().MaxOpenConns)

	stats, err := m.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.MaxOpenConnections)

	sqlDB, err := m.SqlDB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.PingContext(context.Background()))
}

func TestNewManagerWithDialector_RejectsInvalidInput(t *testing.T) {
	_, err := NewManagerWithDialector(nil, DefaultConfig())
	assert.Error(t, err)

	_, err = NewManagerWithDialector(sqlite.Open(":memory:"), nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.MaxOpenConns = 0
	_, err = NewManagerWithDialector(sqlite.Open(":memory:"), cfg)
	assert.ErrorContains(t, err, "max_open_conns")
}

func TestNewManager_RejectsInvalidConfig(t *testing.T) {
	_, err := NewManager(nil)
	assert.Error(t, err)

	_, err = NewDefaultManager("", "shop", "app", "secret")
	assert.ErrorContains(t, err, "host is required")
}

func TestManager_RegistryAndMigration(t *testing.T) {
	m := newSQLiteManager(t)

	m.Register(&author{}, &book{})
	m.Register(&author{})

	assert.Equal(t, []string{"authors", "books"}, m.Tables())
	assert.True(t, m.IsRegistered("books"))
	assert.False(t, m.IsRegistered("reviews"))

	require.NoError(t, m.AutoMigrate(context.Background()))
	assert.True(t, m.DB().Migrator().HasTable("authors"))
	assert.True(t, m.DB().Migrator().HasTable("books"))
}

func TestManager_AutoMigrateWithoutModels(t *testing.T) {
	m := newSQLiteManager(t)
	assert.NoError(t, m.AutoMigrate(context.Background()))
	assert.Empty(t, m.Tables())
}
