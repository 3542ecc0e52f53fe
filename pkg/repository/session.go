package repository

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/vmihailenco/msgpack/v5"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"
)

type changeKind int

const (
	changeAdd changeKind = iota + 1
	changeUpdate
	changeDelete
)

func (k changeKind) String() string {
	switch k {
	case changeAdd:
		return "add"
	case changeUpdate:
		return "update"
	case changeDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// change is one staged mutation. entity is always a pointer to an entity struct.
type change struct {
	kind   changeKind
	entity any
	table  string
	id     func() int
}

// apply writes the change inside tx and returns the rows it affected
func (c change) apply(tx *gorm.DB) (int64, error) {
	var result *gorm.DB
	switch c.kind {
	case changeAdd:
		result = tx.Create(c.entity)
	case changeUpdate:
		// every column of the row, never the associations
		result = tx.Model(c.entity).Select("*").Omit(clause.Associations).Updates(c.entity)
	case changeDelete:
		result = tx.Delete(c.entity)
	}

	if result.Error != nil {
		return 0, &CommitError{Op: c.kind.String(), Table: c.table, ID: c.id(), Kind: classify(result.Error), Err: result.Error}
	}
	if c.kind != changeAdd && result.RowsAffected == 0 {
		return 0, &CommitError{Op: c.kind.String(), Table: c.table, ID: c.id(), Kind: ErrConcurrencyConflict}
	}
	return result.RowsAffected, nil
}

type identity struct {
	table string
	id    int
}

func compareIdentity(a, b identity) int {
	if c := cmp.Compare(a.table, b.table); c != 0 {
		return c
	}
	return cmp.Compare(a.id, b.id)
}

type trackedEntity struct {
	entity   any
	id       func() int
	snapshot []byte
}

// modified reports whether the entity differs from its last known store state
func (t *trackedEntity) modified() bool {
	if t.snapshot == nil {
		return false
	}
	return !bytes.Equal(t.snapshot, snapshot(t.entity))
}

func snapshot(entity any) []byte {
	data, err := msgpack.Marshal(entity)
	if err != nil {
		return nil
	}
	return data
}

// session owns the pending changes and the identity map of one unit of work.
// Repositories created from the same unit of work share it.
type session struct {
	mu       sync.Mutex
	closed   atomic.Bool
	changes  []*change
	byEntity map[any]*change
	tracked  map[identity]*trackedEntity
}

func newSession() *session {
	return &session{
		byEntity: make(map[any]*change),
		tracked:  make(map[identity]*trackedEntity),
	}
}

func (s *session) ensureOpen() {
	if s.closed.Load() {
		panic(ErrDisposed)
	}
}

func (s *session) close() bool {
	if s.closed.Swap(true) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = nil
	s.byEntity = nil
	s.tracked = nil
	return true
}

// stage records a mutation of entity. Restaging the same instance folds the
// two mutations into one: a delete cancels a pending add, an update keeps a
// pending add, and an add or update revives a pending delete as an update.
func (s *session) stage(kind changeKind, entity any, table string, id func() int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byEntity[entity]
	if !ok {
		c := &change{kind: kind, entity: entity, table: table, id: id}
		s.changes = append(s.changes, c)
		s.byEntity[entity] = c
		return
	}

	switch {
	case existing.kind == kind:
	case existing.kind == changeAdd && kind == changeDelete:
		s.remove(existing)
	case existing.kind == changeAdd:
	case kind == changeDelete:
		existing.kind = changeDelete
	default:
		existing.kind = changeUpdate
	}
}

func (s *session) remove(c *change) {
	delete(s.byEntity, c.entity)
	s.changes = slices.DeleteFunc(s.changes, func(other *change) bool { return other == c })
}

// pending returns the staged changes in staging order, followed by updates
// for tracked entities whose values changed since they were read.
func (s *session) pending() []change {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]change, 0, len(s.changes))
	for _, c := range s.changes {
		out = append(out, *c)
	}

	var detected []identity
	for key, t := range s.tracked {
		if _, staged := s.byEntity[t.entity]; staged {
			continue
		}
		if t.modified() {
			detected = append(detected, key)
		}
	}
	slices.SortFunc(detected, compareIdentity)
	for _, key := range detected {
		t := s.tracked[key]
		out = append(out, change{kind: changeUpdate, entity: t.entity, table: key.table, id: t.id})
	}

	return out
}

// accept makes committed changes the new known store state
func (s *session) accept(committed []change) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range committed {
		if staged, ok := s.byEntity[c.entity]; ok && staged.kind == c.kind {
			s.remove(staged)
		}

		key := identity{table: c.table, id: c.id()}
		if c.kind == changeDelete {
			delete(s.tracked, key)
			continue
		}
		s.tracked[key] = &trackedEntity{entity: c.entity, id: c.id, snapshot: snapshot(c.entity)}
	}
}

// pendingDeletes returns the ids of table with a staged delete
func (s *session) pendingDeletes(table string) []any {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []any
	for _, c := range s.changes {
		if c.kind == changeDelete && c.table == table {
			ids = append(ids, c.id())
		}
	}
	return ids
}

func (s *session) isDeleted(table string, id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.changes {
		if c.kind == changeDelete && c.table == table && c.id() == id {
			return true
		}
	}
	return false
}

func (s *session) lookup(table string, id int) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tracked[identity{table: table, id: id}]
	if !ok {
		return nil, false
	}
	return t.entity, true
}

// resolve returns the tracked instance for fresh's identity, tracking fresh
// when the row is new to the session. A tracked instance without local
// modifications is refreshed with the values just read through refresh.
func resolve[T Entity](s *session, fresh *T, refresh func(current, fresh *T)) *T {
	key := identity{table: (*fresh).TableName(), id: (*fresh).GetID()}

	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tracked[key]; ok {
		current := t.entity.(*T)
		if _, staged := s.byEntity[t.entity]; !staged && !t.modified() {
			refresh(current, fresh)
			t.snapshot = snapshot(current)
		}
		return current
	}

	s.tracked[key] = &trackedEntity{
		entity:   fresh,
		id:       func() int { return (*fresh).GetID() },
		snapshot: snapshot(fresh),
	}
	return fresh
}

func resolveAll[T Entity](s *session, rows []T, refresh func(current, fresh *T)) []*T {
	out := make([]*T, len(rows))
	for i := range rows {
		out[i] = resolve(s, &rows[i], refresh)
	}
	return out
}

// generatedKey is a zero primary key the store assigns on insert
type generatedKey struct {
	field *schema.Field
	owner reflect.Value
}

// visited identifies a struct value; an embedded first field shares its
// parent's address
type visited struct {
	addr uintptr
	typ  reflect.Type
}

// generatedKeys lists the zero primary keys of entity and of the association
// rows gorm inserts with it. A rolled back insert leaves the keys it assigned
// in place; reset puts them back to zero so a retry inserts fresh rows.
func generatedKeys(db *gorm.DB, entity any) []generatedKey {
	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(entity); err != nil {
		return nil
	}

	var keys []generatedKey
	seen := make(map[visited]bool)
	collectKeys(stmt.Schema, reflect.ValueOf(entity), seen, &keys)
	return keys
}

func collectKeys(sch *schema.Schema, rv reflect.Value, seen map[visited]bool, keys *[]generatedKey) {
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return
		}
		rv = rv.Elem()
	}
	if sch == nil || rv.Kind() != reflect.Struct || !rv.CanAddr() {
		return
	}
	visit := visited{addr: rv.Addr().Pointer(), typ: rv.Type()}
	if seen[visit] {
		return
	}
	seen[visit] = true

	ctx := context.Background()
	if pk := sch.PrioritizedPrimaryField; pk != nil {
		if _, zero := pk.ValueOf(ctx, rv); zero {
			*keys = append(*keys, generatedKey{field: pk, owner: rv})
		}
	}

	for _, rel := range sch.Relationships.Relations {
		value := rel.Field.ReflectValueOf(ctx, rv)
		switch value.Kind() {
		case reflect.Slice, reflect.Array:
			for i := range value.Len() {
				collectKeys(rel.FieldSchema, value.Index(i), seen, keys)
			}
		default:
			collectKeys(rel.FieldSchema, value, seen, keys)
		}
	}
}

func resetKeys(keys []generatedKey) error {
	ctx := context.Background()
	for _, k := range keys {
		if err := k.field.Set(ctx, k.owner, reflect.Zero(k.field.FieldType).Interface()); err != nil {
			return fmt.Errorf("reset %s.%s: %w", k.field.Schema.Table, k.field.Name, err)
		}
	}
	return nil
}
