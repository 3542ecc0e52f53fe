package repository

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"

	"github.com/ammar0144/specstore/pkg/db"
	"github.com/ammar0144/specstore/pkg/redis"
)

type gadget struct {
	BaseEntity
	Name  string
	Brand string
	Price int
	Parts []part `gorm:"foreignKey:GadgetID"`
}

func (gadget) TableName() string { return "gadgets" }

type part struct {
	BaseEntity
	GadgetID int
	Label    string
}

func (part) TableName() string { return "parts" }

func (part) RelatedTables() []string { return []string{"gadgets"} }

// unregistered is never registered with the test manager
type unregistered struct {
	BaseEntity
}

func (unregistered) TableName() string { return "unregistered" }

var brands = []string{"Acme", "Globex", "Initech"}

func newTestManager(t *testing.T) *db.Manager {
	t.Helper()

	cfg := db.DefaultConfig()
	cfg.MaxOpenConns = 1
	cfg.MaxIdleConns = 1
	cfg.PrepareStmt = false
	cfg.Logging.Level = "silent"

	manager, err := db.NewManagerWithDialector(sqlite.Open(":memory:"), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })

	manager.Register(&gadget{}, &part{})
	require.NoError(t, manager.AutoMigrate(context.Background()))
	return manager
}

func newTestRedis(t *testing.T) (*redis.Manager, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)

	cfg := redis.DefaultConfig()
	cfg.KeyPrefix = "test"
	cfg.Host = mr.Host()
	cfg.Port = port

	manager, err := redis.NewManager(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return manager, mr
}

// seedGadgets stores n gadgets named "Gadget 01".."Gadget n" with brands
// cycling through brands and price i*10
func seedGadgets(t *testing.T, manager *db.Manager, n int) {
	t.Helper()

	uow := NewUnitOfWork(manager, nil)
	defer uow.Close()

	repo := RepositoryFor[gadget](uow)
	for i := 1; i <= n; i++ {
		repo.Add(&gadget{
			Name:  fmt.Sprintf("Gadget %02d", i),
			Brand: brands[(i-1)%len(brands)],
			Price: i * 10,
		})
	}

	changed, err := uow.Commit(context.Background())
	require.NoError(t, err)
	require.True(t, changed)
}

func names(gadgets []*gadget) []string {
	out := make([]string, len(gadgets))
	for i, g := range gadgets {
		out[i] = g.Name
	}
	return out
}

// recoverError runs fn and returns the error it panicked with
func recoverError(t *testing.T, fn func()) (err error) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a panic")
		var ok bool
		err, ok = r.(error)
		require.True(t, ok, "panic value %v is not an error", r)
	}()
	fn()
	return nil
}
