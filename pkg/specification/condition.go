package specification

import (
	"bytes"
	"fmt"
	"reflect"

	"gorm.io/gorm/clause"
)

// Criteria are rendered as gorm clause expressions and never as raw SQL text
// assembled from values.
//
// SECURITY WARNING:
// Field names are NOT escaped or validated. They are written into the
// statement as-is, so they must be hardcoded identifiers or expressions
// (e.g. "brand", "LOWER(name)"). Values are always bound parameters.
//
// Example - SAFE:
//   specification.Where("buyer_email", specification.Equal, email)
//
// Example - UNSAFE (DO NOT DO THIS):
//   specification.Where(userProvidedColumn, specification.Equal, v)

// Operator represents SQL comparison operators
type Operator string

const (
	Equal              Operator = "="
	NotEqual           Operator = "!="
	GreaterThan        Operator = ">"
	GreaterThanOrEqual Operator = ">="
	LessThan           Operator = "<"
	LessThanOrEqual    Operator = "<="
	Like               Operator = "LIKE"
	NotLike            Operator = "NOT LIKE"
	In                 Operator = "IN"
	NotIn              Operator = "NOT IN"
	IsNull             Operator = "IS NULL"
	IsNotNull          Operator = "IS NOT NULL"
	Between            Operator = "BETWEEN"
	NotBetween         Operator = "NOT BETWEEN"
)

// LogicalOperator for combining conditions
type LogicalOperator string

const (
	And LogicalOperator = "AND"
	Or  LogicalOperator = "OR"
)

// Condition is a single predicate over one column or column expression
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

// ConditionGroup represents grouped conditions with logical operators.
// Conditions holds Condition values and nested *ConditionGroup values.
type ConditionGroup struct {
	Conditions []any
	Operator   LogicalOperator
}

// Where adds a condition to the group
func (g *ConditionGroup) Where(field string, operator Operator, value any) *ConditionGroup {
	g.Conditions = append(g.Conditions, Condition{
		Field:    field,
		Operator: operator,
		Value:    snapshotValue(value),
	})
	return g
}

// Group adds a nested condition group
func (g *ConditionGroup) Group(operator LogicalOperator, fn func(*ConditionGroup)) *ConditionGroup {
	group := &ConditionGroup{Operator: operator}
	fn(group)
	g.Conditions = append(g.Conditions, group)
	return g
}

// IsEmpty reports whether the group, including nested groups, has no condition
func (g *ConditionGroup) IsEmpty() bool {
	if g == nil {
		return true
	}
	for _, item := range g.Conditions {
		switch cond := item.(type) {
		case Condition:
			return false
		case *ConditionGroup:
			if !cond.IsEmpty() {
				return false
			}
		}
	}
	return true
}

// clone copies the group tree so a published specification never shares
// mutable slices with the caller.
func (g *ConditionGroup) clone() *ConditionGroup {
	if g == nil {
		return nil
	}
	out := &ConditionGroup{Operator: g.Operator, Conditions: make([]any, 0, len(g.Conditions))}
	for _, item := range g.Conditions {
		if nested, ok := item.(*ConditionGroup); ok {
			out.Conditions = append(out.Conditions, nested.clone())
			continue
		}
		if cond, ok := item.(Condition); ok {
			cond.Value = snapshotValue(cond.Value)
			item = cond
		}
		out.Conditions = append(out.Conditions, item)
	}
	return out
}

// Expression renders the group. Empty groups render to nil.
func (g *ConditionGroup) Expression() clause.Expression {
	if g == nil {
		return nil
	}

	exprs := make([]clause.Expression, 0, len(g.Conditions))
	for _, item := range g.Conditions {
		switch cond := item.(type) {
		case Condition:
			exprs = append(exprs, cond.Expression())
		case *ConditionGroup:
			if expr := cond.Expression(); expr != nil {
				exprs = append(exprs, expr)
			}
		}
	}

	switch {
	case len(exprs) == 0:
		return nil
	case len(exprs) == 1:
		// a one-element OR group would be joined to its neighbours with OR
		return exprs[0]
	case g.Operator == Or:
		return clause.Or(exprs...)
	default:
		return clause.And(exprs...)
	}
}

// Expression renders the condition with its value bound as parameters
func (c Condition) Expression() clause.Expression {
	switch c.Operator {
	case IsNull, IsNotNull:
		return clause.Expr{SQL: fmt.Sprintf("%s %s", c.Field, c.Operator)}
	case In, NotIn:
		return c.inExpression()
	case Between, NotBetween:
		return c.betweenExpression()
	default:
		return clause.Expr{SQL: fmt.Sprintf("%s %s ?", c.Field, c.Operator), Vars: []any{c.Value}}
	}
}

// inExpression expands one placeholder per element. An empty set never
// matches for IN and always matches for NOT IN.
func (c Condition) inExpression() clause.Expression {
	if c.Value == nil {
		return emptySetExpression(c.Operator)
	}

	vars, ok := expand(c.Value)
	if !ok {
		// Single value, treat as a one-element set
		return clause.Expr{SQL: fmt.Sprintf("%s %s (?)", c.Field, c.Operator), Vars: []any{c.Value}}
	}
	if len(vars) == 0 {
		return emptySetExpression(c.Operator)
	}

	return clause.Expr{SQL: fmt.Sprintf("%s %s ?", c.Field, c.Operator), Vars: []any{vars}}
}

// expand copies the elements of a slice or array value. Byte slices are
// single values.
func expand(value any) ([]any, bool) {
	if _, ok := value.([]byte); ok {
		return nil, false
	}
	v := reflect.ValueOf(value)
	if v.Kind() != reflect.Slice && v.Kind() != reflect.Array {
		return nil, false
	}

	vars := make([]any, v.Len())
	for i := range vars {
		vars[i] = v.Index(i).Interface()
	}
	return vars, true
}

// snapshotValue detaches a condition value from the caller's backing array
func snapshotValue(value any) any {
	if b, ok := value.([]byte); ok {
		return bytes.Clone(b)
	}
	if vars, ok := expand(value); ok {
		return vars
	}
	return value
}

func emptySetExpression(op Operator) clause.Expression {
	if op == In {
		return clause.Expr{SQL: "1 = 0"}
	}
	return clause.Expr{SQL: "1 = 1"}
}

// betweenExpression expects a slice or array with exactly two bounds;
// anything else renders a condition that never matches.
func (c Condition) betweenExpression() clause.Expression {
	if c.Value == nil {
		return clause.Expr{SQL: "1 = 0"}
	}

	bounds, ok := expand(c.Value)
	if !ok || len(bounds) != 2 {
		return clause.Expr{SQL: "1 = 0"}
	}

	return clause.Expr{
		SQL:  fmt.Sprintf("%s %s ? AND ?", c.Field, c.Operator),
		Vars: bounds,
	}
}
