package specification

import (
	"fmt"

	"gorm.io/gorm/clause"
)

// query is the mutable state options write to during construction
type query struct {
	criteria    *ConditionGroup
	orderBy     string
	orderByDesc string
	skip        int
	take        int
	paged       bool
	distinct    bool
	includes    []string
}

// Option configures a specification while it is being constructed
type Option func(*query)

// Specification describes a query over entities of type T whose rows are
// materialized as R. Entity specifications have R == T; projections select a
// subset of columns into R.
//
// A Specification is immutable once New or NewProjection returns, so a single
// instance may be shared by concurrent requests.
type Specification[T, R any] struct {
	q       query
	columns []string
}

// New builds a specification that returns entities unmodified
func New[T any](opts ...Option) *Specification[T, T] {
	return &Specification[T, T]{q: build(opts)}
}

// NewProjection builds a specification whose rows are read into R from the
// given columns of T. Filtering and ordering still refer to T's columns.
// Panics if no column is given.
func NewProjection[T, R any](columns []string, opts ...Option) *Specification[T, R] {
	if len(columns) == 0 {
		panic("specification: projection requires at least one column")
	}
	return &Specification[T, R]{
		q:       build(opts),
		columns: append([]string(nil), columns...),
	}
}

func build(opts []Option) query {
	q := query{criteria: &ConditionGroup{Operator: And}}
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// Where adds an AND condition
// SECURITY: field is NOT escaped. User input goes in value only.
func Where(field string, operator Operator, value any) Option {
	return func(q *query) {
		q.criteria.Where(field, operator, value)
	}
}

// OrWhere adds an OR condition.
// For predictable behavior, this wraps the existing conditions in an OR group
func OrWhere(field string, operator Operator, value any) Option {
	return func(q *query) {
		// If no existing conditions, treat as regular Where
		if len(q.criteria.Conditions) == 0 {
			q.criteria.Where(field, operator, value)
			return
		}

		newCondition := Condition{Field: field, Operator: operator, Value: snapshotValue(value)}

		// If the root is already an OR group, just append
		if q.criteria.Operator == Or {
			q.criteria.Conditions = append(q.criteria.Conditions, newCondition)
			return
		}

		// Otherwise, wrap existing AND conditions in a group and create OR root
		existingGroup := &ConditionGroup{
			Conditions: q.criteria.Conditions,
			Operator:   And,
		}
		q.criteria = &ConditionGroup{
			Conditions: []any{existingGroup, newCondition},
			Operator:   Or,
		}
	}
}

// WhereGroup adds a grouped condition
func WhereGroup(operator LogicalOperator, fn func(*ConditionGroup)) Option {
	return func(q *query) {
		q.criteria.Group(operator, fn)
	}
}

// OrderBy sorts ascending by column. It takes precedence over OrderByDescending.
func OrderBy(column string) Option {
	return func(q *query) {
		q.orderBy = column
	}
}

// OrderByDescending sorts descending by column
func OrderByDescending(column string) Option {
	return func(q *query) {
		q.orderByDesc = column
	}
}

// Paging skips skip rows and takes at most take rows of the ordered result.
// Panics if skip < 0 or take < 1.
func Paging(skip, take int) Option {
	if skip < 0 {
		panic(fmt.Sprintf("specification: skip must not be negative, got %d", skip))
	}
	if take < 1 {
		panic(fmt.Sprintf("specification: take must be at least 1, got %d", take))
	}
	return func(q *query) {
		q.skip = skip
		q.take = take
		q.paged = true
	}
}

// Page is Paging expressed as a 1-based page index and a page size
func Page(index, size int) Option {
	if index < 1 {
		panic(fmt.Sprintf("specification: page index must be at least 1, got %d", index))
	}
	if size < 1 {
		panic(fmt.Sprintf("specification: page size must be at least 1, got %d", size))
	}
	return Paging((index-1)*size, size)
}

// Distinct collapses duplicate result rows
func Distinct() Option {
	return func(q *query) {
		q.distinct = true
	}
}

// Include eager loads the named associations. Ignored by projections.
func Include(relations ...string) Option {
	return func(q *query) {
		q.includes = append(q.includes, relations...)
	}
}

// Criteria returns the filter expression, or nil when every row matches
func (s *Specification[T, R]) Criteria() clause.Expression {
	return s.q.criteria.Expression()
}

// HasCriteria reports whether the specification filters rows
func (s *Specification[T, R]) HasCriteria() bool {
	return !s.q.criteria.IsEmpty()
}

// Conditions returns a copy of the condition tree
func (s *Specification[T, R]) Conditions() *ConditionGroup {
	return s.q.criteria.clone()
}

func (s *Specification[T, R]) OrderBy() string {
	return s.q.orderBy
}

func (s *Specification[T, R]) OrderByDescending() string {
	return s.q.orderByDesc
}

// Paging returns the skip/take pair and whether paging is enabled
func (s *Specification[T, R]) Paging() (skip, take int, enabled bool) {
	return s.q.skip, s.q.take, s.q.paged
}

func (s *Specification[T, R]) IsDistinct() bool {
	return s.q.distinct
}

func (s *Specification[T, R]) Includes() []string {
	return append([]string(nil), s.q.includes...)
}

// Columns returns the projected columns, or nil for entity specifications
func (s *Specification[T, R]) Columns() []string {
	return append([]string(nil), s.columns...)
}

func (s *Specification[T, R]) IsProjection() bool {
	return len(s.columns) > 0
}
