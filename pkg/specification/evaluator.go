package specification

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Evaluate composes spec onto base without executing it. base must already be
// scoped to T, e.g. db.WithContext(ctx).Model(new(T)).
//
// Steps are applied in a fixed order: filter, order, skip/take, projection or
// eager loading, distinct. SQL evaluates DISTINCT before OFFSET/LIMIT, so a
// paged distinct query pages over the distinct rows.
func Evaluate[T, R any](base *gorm.DB, spec *Specification[T, R]) *gorm.DB {
	if spec == nil {
		panic("specification: nil specification")
	}

	query := applyCriteria(base, spec)

	switch {
	case spec.q.orderBy != "":
		query = query.Order(orderColumn(spec.q.orderBy, false))
	case spec.q.orderByDesc != "":
		query = query.Order(orderColumn(spec.q.orderByDesc, true))
	}

	if spec.q.paged {
		query = query.Offset(spec.q.skip).Limit(spec.q.take)
	}

	if spec.IsProjection() {
		query = query.Select(spec.Columns())
	} else {
		for _, relation := range spec.q.includes {
			query = query.Preload(relation)
		}
	}

	if spec.q.distinct {
		query = query.Distinct()
	}

	return query
}

// EvaluateCount composes the count query for spec: criteria only, so the
// count always reflects the candidate set before paging and projection.
func EvaluateCount[T, R any](base *gorm.DB, spec *Specification[T, R]) *gorm.DB {
	if spec == nil {
		panic("specification: nil specification")
	}
	return applyCriteria(base, spec)
}

func applyCriteria[T, R any](base *gorm.DB, spec *Specification[T, R]) *gorm.DB {
	expr := spec.Criteria()
	if expr == nil {
		return base
	}
	return base.Clauses(clause.Where{Exprs: []clause.Expression{expr}})
}

func orderColumn(column string, desc bool) clause.OrderByColumn {
	return clause.OrderByColumn{
		Column: clause.Column{Name: column, Raw: true},
		Desc:   desc,
	}
}
