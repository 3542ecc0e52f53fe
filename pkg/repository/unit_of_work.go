package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ammar0144/specstore/pkg/db"
	"github.com/ammar0144/specstore/pkg/redis"
)

// UnitOfWork owns the session of one logical operation: the repositories it
// hands out share its pending changes and identity map, and Commit persists
// everything they staged in one transaction.
//
// A UnitOfWork is not meant to be shared between operations. RepositoryFor is
// safe for concurrent use and Commit calls are serialized.
type UnitOfWork struct {
	id        string
	dbManager *db.Manager
	redis     *redis.Manager
	logger    logger.Interface
	session   *session

	commitMu sync.Mutex

	reposMu sync.Mutex
	repos   map[any]any
}

// repoKey is the registry key of the repository for T
type repoKey[T Entity] struct{}

// NewUnitOfWork starts a unit of work. redisManager may be nil to disable the
// read-through cache.
func NewUnitOfWork(dbManager *db.Manager, redisManager *redis.Manager) *UnitOfWork {
	if dbManager == nil {
		panic("repository: unit of work requires a database manager")
	}
	return &UnitOfWork{
		id:        uuid.NewString(),
		dbManager: dbManager,
		redis:     redisManager,
		logger:    dbManager.Logger(),
		session:   newSession(),
		repos:     make(map[any]any),
	}
}

// ID identifies the unit of work in logs
func (u *UnitOfWork) ID() string {
	return u.id
}

// RepositoryFor returns the repository for T, creating it on first use.
// Every call on the same unit of work returns the same instance.
//
// Panics with ErrDisposed after Close and with ErrUnregisteredEntity when
// T's table was never registered with the database manager.
func RepositoryFor[T Entity](u *UnitOfWork) *GenericRepository[T] {
	u.session.ensureOpen()

	var model T
	if table := model.TableName(); !u.dbManager.IsRegistered(table) {
		panic(fmt.Errorf("%w: %s", ErrUnregisteredEntity, table))
	}

	u.reposMu.Lock()
	defer u.reposMu.Unlock()

	if u.repos == nil {
		panic(ErrDisposed)
	}

	key := repoKey[T]{}
	if repo, ok := u.repos[key]; ok {
		return repo.(*GenericRepository[T])
	}

	repo := newGenericRepository[T](u.session, u.dbManager, u.redis)
	u.repos[key] = repo
	return repo
}

// Commit applies every staged change, plus updates for tracked entities that
// were modified in place, in one transaction. It returns false without
// touching the store when there is nothing to apply.
//
// A rejected change rolls back the whole transaction and is returned as a
// *CommitError; the staged changes are kept, with the keys the store had
// assigned to staged inserts reset to zero.
func (u *UnitOfWork) Commit(ctx context.Context) (bool, error) {
	u.session.ensureOpen()

	u.commitMu.Lock()
	defer u.commitMu.Unlock()

	changes := u.session.pending()
	if len(changes) == 0 {
		return false, nil
	}

	var assigned []generatedKey
	for _, c := range changes {
		if c.kind == changeAdd {
			assigned = append(assigned, generatedKeys(u.dbManager.DB(), c.entity)...)
		}
	}

	start := time.Now()
	var rows int64
	err := u.dbManager.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, c := range changes {
			n, err := c.apply(tx)
			if err != nil {
				return err
			}
			rows += n
		}
		return nil
	})
	if err != nil {
		var commitErr *CommitError
		if !errors.As(err, &commitErr) {
			err = &CommitError{Op: "commit", Kind: classify(err), Err: err}
		}
		if resetErr := resetKeys(assigned); resetErr != nil {
			u.logger.Error(ctx, "unit of work %s: %v", u.id, resetErr)
		}
		u.logger.Warn(ctx, "unit of work %s: commit rejected: %v", u.id, err)
		return false, err
	}

	u.session.accept(changes)
	u.invalidate(ctx, changes)

	u.logger.Info(ctx, "unit of work %s: committed %d change(s), %d row(s) in %s", u.id, len(changes), rows, time.Since(start))
	return rows > 0, nil
}

// invalidate drops the cached queries of every table the changes touched and
// of the tables their entities declare as related
func (u *UnitOfWork) invalidate(ctx context.Context, changes []change) {
	if !u.redis.Enabled() {
		return
	}

	cache := &readCache{redis: u.redis, dbName: u.dbManager.DatabaseName()}

	seen := make(map[string]bool)
	var tables []string
	add := func(table string) {
		if !seen[table] {
			seen[table] = true
			tables = append(tables, table)
		}
	}
	for _, c := range changes {
		add(c.table)
		if related, ok := c.entity.(RelationshipAware); ok {
			for _, table := range related.RelatedTables() {
				add(table)
			}
		}
	}

	for _, table := range tables {
		if err := u.redis.InvalidatePattern(ctx, cache.pattern(table)); err != nil {
			u.logger.Warn(ctx, "unit of work %s: invalidate cache of %s: %v", u.id, table, err)
		}
	}
}

// Close releases the session. Later use of the unit of work or of any
// repository obtained from it panics with ErrDisposed. Close is idempotent.
func (u *UnitOfWork) Close() error {
	if !u.session.close() {
		return nil
	}

	u.reposMu.Lock()
	u.repos = nil
	u.reposMu.Unlock()
	return nil
}
