package repository

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/ammar0144/specstore/pkg/db"
	"github.com/ammar0144/specstore/pkg/redis"
	"github.com/ammar0144/specstore/pkg/specification"
)

// GenericRepository executes specifications for one entity type against the
// store, resolving every entity it reads through the identity map of its
// unit of work and staging mutations there.
type GenericRepository[T Entity] struct {
	db        *gorm.DB
	dbManager *db.Manager
	session   *session
	cache     *readCache
	tableName string
	schema    *schema.Schema
}

func newGenericRepository[T Entity](s *session, dbManager *db.Manager, redisManager *redis.Manager) *GenericRepository[T] {
	var model T
	tableName := model.TableName()
	if tableName == "" {
		panic(fmt.Sprintf("entity type %T returned empty TableName()", model))
	}

	// relationships are needed to refresh tracked entities; without a schema
	// a refresh simply replaces the whole value
	stmt := &gorm.Statement{DB: dbManager.DB()}
	if err := stmt.Parse(&model); err != nil {
		dbManager.Logger().Warn(context.Background(), "parse schema of %s: %v", tableName, err)
	}

	return &GenericRepository[T]{
		db:        dbManager.DB(),
		dbManager: dbManager,
		session:   s,
		cache: &readCache{
			redis:  redisManager,
			logger: dbManager.Logger(),
			dbName: dbManager.DatabaseName(),
			table:  tableName,
		},
		tableName: tableName,
		schema:    stmt.Schema,
	}
}

// withQueryTimeout wraps a context with the configured query timeout
func (r *GenericRepository[T]) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if cfg := r.dbManager.Config(); cfg != nil && cfg.QueryTimeout > 0 {
		return context.WithTimeout(ctx, cfg.QueryTimeout)
	}
	return ctx, func() {}
}

// query starts a statement over T that hides rows with a staged delete
func (r *GenericRepository[T]) query(ctx context.Context) *gorm.DB {
	query := r.db.WithContext(ctx).Model(new(T))
	if ids := r.session.pendingDeletes(r.tableName); len(ids) > 0 {
		query = query.Clauses(clause.Where{Exprs: []clause.Expression{
			clause.Not(clause.IN{Column: clause.PrimaryColumn, Values: ids}),
		}})
	}
	return query
}

// ============================================================================
// READ OPERATIONS
// ============================================================================

// GetByID returns the entity with the given id, or nil when there is none.
// An entity already tracked by the unit of work is returned without a query.
func (r *GenericRepository[T]) GetByID(ctx context.Context, id int) (*T, error) {
	r.session.ensureOpen()

	if r.session.isDeleted(r.tableName, id) {
		return nil, nil
	}
	if tracked, ok := r.session.lookup(r.tableName, id); ok {
		return tracked.(*T), nil
	}

	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	var entity T
	result := r.db.WithContext(ctx).First(&entity, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil // Not found, not an error
		}
		return nil, fmt.Errorf("database error: %w", result.Error)
	}

	return resolve(r.session, &entity, r.refresh), nil
}

// GetAll materializes every row of the table. It is intentionally unpaged.
func (r *GenericRepository[T]) GetAll(ctx context.Context) ([]*T, error) {
	r.session.ensureOpen()

	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	var rows []T
	if err := r.query(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	return resolveAll(r.session, rows, r.refresh), nil
}

// GetEntityWithSpec returns the first entity of the composed query, or nil
func (r *GenericRepository[T]) GetEntityWithSpec(ctx context.Context, spec *specification.Specification[T, T]) (*T, error) {
	r.session.ensureOpen()

	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	rows, err := first(ctx, r, spec)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return resolve(r.session, &rows[0], r.refresh), nil
}

// List materializes the composed query
func (r *GenericRepository[T]) List(ctx context.Context, spec *specification.Specification[T, T]) ([]*T, error) {
	r.session.ensureOpen()

	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	rows, err := list(ctx, r, spec)
	if err != nil {
		return nil, err
	}
	return resolveAll(r.session, rows, r.refresh), nil
}

// Count returns the number of rows matching the criteria of spec. Paging,
// ordering and projection do not affect it.
func (r *GenericRepository[T]) Count(ctx context.Context, spec *specification.Specification[T, T]) (int, error) {
	return count(ctx, r, spec)
}

// Exists reports whether a row with the given id exists without loading it
func (r *GenericRepository[T]) Exists(ctx context.Context, id int) (bool, error) {
	r.session.ensureOpen()

	if r.session.isDeleted(r.tableName, id) {
		return false, nil
	}

	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	var n int64
	err := r.query(ctx).
		Clauses(clause.Where{Exprs: []clause.Expression{clause.Eq{Column: clause.PrimaryColumn, Value: id}}}).
		Limit(1).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("database error: %w", err)
	}
	return n > 0, nil
}

// refresh copies the values just read into a tracked instance, keeping the
// associations it already holds when the new read did not load them.
func (r *GenericRepository[T]) refresh(current, fresh *T) {
	if r.schema == nil {
		*current = *fresh
		return
	}

	ctx := context.Background()
	dst, src := reflect.ValueOf(current).Elem(), reflect.ValueOf(fresh).Elem()

	kept := make(map[*schema.Field]any)
	for _, rel := range r.schema.Relationships.Relations {
		if _, zero := rel.Field.ValueOf(ctx, src); !zero {
			continue
		}
		if value, zero := rel.Field.ValueOf(ctx, dst); !zero {
			kept[rel.Field] = value
		}
	}

	*current = *fresh
	for field, value := range kept {
		if err := field.Set(ctx, dst, value); err != nil {
			r.cache.logger.Warn(ctx, "refresh %s.%s: %v", r.tableName, field.Name, err)
		}
	}
}

// ============================================================================
// STAGED COMMANDS
// ============================================================================

// Add stages entity for insertion, including its associations
func (r *GenericRepository[T]) Add(entity *T) {
	r.stage(changeAdd, entity)
}

// AddRange stages several entities for insertion
func (r *GenericRepository[T]) AddRange(entities ...*T) {
	for _, entity := range entities {
		r.stage(changeAdd, entity)
	}
}

// Update stages a rewrite of every column of entity's row
func (r *GenericRepository[T]) Update(entity *T) {
	r.stage(changeUpdate, entity)
}

// Delete stages removal of entity's row. Until commit, reads through the
// unit of work no longer return it.
func (r *GenericRepository[T]) Delete(entity *T) {
	r.stage(changeDelete, entity)
}

func (r *GenericRepository[T]) stage(kind changeKind, entity *T) {
	r.session.ensureOpen()
	if entity == nil {
		panic(fmt.Sprintf("repository: cannot %s a nil %s entity", kind, r.tableName))
	}
	r.session.stage(kind, entity, r.tableName, func() int { return (*entity).GetID() })
}

// InvalidateCache drops every cached query of this repository's table
func (r *GenericRepository[T]) InvalidateCache(ctx context.Context) error {
	if !r.cache.enabled() {
		return nil
	}
	return r.cache.redis.InvalidatePattern(ctx, r.cache.pattern(r.tableName))
}

// ============================================================================
// PROJECTED READS
// ============================================================================

// ListAs materializes a projected specification
func ListAs[T Entity, R any](ctx context.Context, repo *GenericRepository[T], spec *specification.Specification[T, R]) ([]R, error) {
	repo.session.ensureOpen()

	ctx, cancel := repo.withQueryTimeout(ctx)
	defer cancel()

	return list(ctx, repo, spec)
}

// GetEntityAs returns the first row of a projected specification, or nil
func GetEntityAs[T Entity, R any](ctx context.Context, repo *GenericRepository[T], spec *specification.Specification[T, R]) (*R, error) {
	repo.session.ensureOpen()

	ctx, cancel := repo.withQueryTimeout(ctx)
	defer cancel()

	rows, err := first(ctx, repo, spec)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

// ============================================================================
// SHARED EXECUTION
// ============================================================================

func list[T Entity, R any](ctx context.Context, r *GenericRepository[T], spec *specification.Specification[T, R]) ([]R, error) {
	query := specification.Evaluate(r.query(ctx), spec)

	key := func() string {
		var dest []R
		return r.cache.key("list", dryRun(query).Find(&dest).Statement, spec.Includes()...)
	}

	return loadThrough(ctx, r.cache, key, func() ([]R, error) {
		var rows []R
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		return rows, nil
	})
}

func first[T Entity, R any](ctx context.Context, r *GenericRepository[T], spec *specification.Specification[T, R]) ([]R, error) {
	query := specification.Evaluate(r.query(ctx), spec).Limit(1)

	key := func() string {
		var dest []R
		return r.cache.key("first", dryRun(query).Find(&dest).Statement, spec.Includes()...)
	}

	return loadThrough(ctx, r.cache, key, func() ([]R, error) {
		var rows []R
		if err := query.Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("database error: %w", err)
		}
		return rows, nil
	})
}

func count[T Entity, R any](ctx context.Context, r *GenericRepository[T], spec *specification.Specification[T, R]) (int, error) {
	r.session.ensureOpen()

	ctx, cancel := r.withQueryTimeout(ctx)
	defer cancel()

	query := specification.EvaluateCount(r.query(ctx), spec)

	key := func() string {
		var n int64
		return r.cache.key("count", dryRun(query).Count(&n).Statement)
	}

	return loadThrough(ctx, r.cache, key, func() (int, error) {
		var n int64
		if err := query.Count(&n).Error; err != nil {
			return 0, fmt.Errorf("database error: %w", err)
		}
		return int(n), nil
	})
}
