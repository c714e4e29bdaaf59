package baas

import (
	"fmt"
	"strings"
	"time"
)

// Op is a filter operator. The names follow the managed backend's REST
// filter syntax.
type Op string

const (
	OpEq  Op = "eq"
	OpNeq Op = "neq"
	OpIn  Op = "in"
	OpGte Op = "gte"
	OpLte Op = "lte"
)

// Filter is one column predicate. For OpIn, Values holds the candidates and
// Value is unused.
type Filter struct {
	Column string
	Op     Op
	Value  string
	Values []string
}

// Order is one ORDER BY term.
type Order struct {
	Column string
	Desc   bool
}

// Query is the read/write predicate subset the application uses. Build it
// with NewQuery and chain:
//
//	q := baas.NewQuery().Eq("slug", slug).Single()
//
// A nil *Query means "all rows" for Select and is rejected by Update and
// Delete implementations.
type Query struct {
	Columns string
	Filters []Filter
	Orders  []Order
	Limit   int
	single  bool
}

func NewQuery() *Query {
	return &Query{}
}

// Select restricts the returned columns (comma-separated). Default "*".
func (q *Query) Select(columns string) *Query {
	q.Columns = columns
	return q
}

func (q *Query) Eq(column string, value any) *Query  { return q.add(column, OpEq, value) }
func (q *Query) Neq(column string, value any) *Query { return q.add(column, OpNeq, value) }
func (q *Query) Gte(column string, value any) *Query { return q.add(column, OpGte, value) }
func (q *Query) Lte(column string, value any) *Query { return q.add(column, OpLte, value) }

func (q *Query) In(column string, values []string) *Query {
	q.Filters = append(q.Filters, Filter{Column: column, Op: OpIn, Values: values})
	return q
}

func (q *Query) Order(column string, desc bool) *Query {
	q.Orders = append(q.Orders, Order{Column: column, Desc: desc})
	return q
}

func (q *Query) LimitTo(n int) *Query {
	q.Limit = n
	return q
}

// Single asks for exactly one row. Zero rows is reported as an *Error with
// CodeNoRows; more than one row is also an error.
func (q *Query) Single() *Query {
	q.single = true
	return q
}

func (q *Query) IsSingle() bool {
	return q != nil && q.single
}

// SelectColumns returns the column list, defaulting to "*".
func (q *Query) SelectColumns() string {
	if q == nil || q.Columns == "" {
		return "*"
	}
	return q.Columns
}

func (q *Query) add(column string, op Op, value any) *Query {
	q.Filters = append(q.Filters, Filter{Column: column, Op: op, Value: FormatValue(value)})
	return q
}

// FormatValue renders a filter operand the way both backends expect it:
// times as RFC 3339 in UTC, everything else with fmt.
func FormatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.UTC().Format(time.RFC3339Nano)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

func (q *Query) String() string {
	if q == nil {
		return "<all>"
	}
	var b strings.Builder
	for i, f := range q.Filters {
		if i > 0 {
			b.WriteString(" and ")
		}
		if f.Op == OpIn {
			fmt.Fprintf(&b, "%s in (%s)", f.Column, strings.Join(f.Values, ","))
			continue
		}
		fmt.Fprintf(&b, "%s %s %s", f.Column, f.Op, f.Value)
	}
	return b.String()
}
