package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgeflare/pgcrud/pkg/entity"
)

// Comparison operators a Condition may carry.
const (
	OpEq         = "="
	OpNe         = "<>"
	OpLt         = "<"
	OpLte        = "<="
	OpGt         = ">"
	OpGte        = ">="
	OpLike       = "like"
	OpILike      = "ilike"
	OpNotLike    = "not like"
	OpNotILike   = "not ilike"
	OpBetween    = "between"
	OpNotBetween = "not between"
	OpIn         = "in"
	OpNotIn      = "not in"
	OpIsNull     = "is null"
	OpIsNotNull  = "is not null"
	OpAnyILike   = "any ilike" // OR of ILIKE over Fields
)

var knownOps = map[string]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLte: true, OpGt: true, OpGte: true,
	OpLike: true, OpILike: true, OpNotLike: true, OpNotILike: true,
	OpBetween: true, OpNotBetween: true, OpIn: true, OpNotIn: true,
	OpIsNull: true, OpIsNotNull: true, OpAnyILike: true,
}

// Condition is one ANDed clause of a Query.
type Condition struct {
	Field  string
	Op     string
	Value  any
	Values []any    // in, not in, between, not between
	Fields []string // any ilike
}

// Order is one ORDER BY term.
type Order struct {
	Field string
	Desc  bool
}

// Query collects conditions, ordering, pagination and eager-load
// directives for one collection. Builder methods record the first invalid
// call in Err, which Fetch, First and Count return.
type Query struct {
	Schema     *entity.Schema
	Conditions []Condition
	Orders     []Order
	Page       int // 1-based; 0 disables pagination
	PageSize   int
	Relations  []string
	Err        error

	runner Runner
}

// NewQuery returns a builder executed by r.
func NewQuery(s *entity.Schema, r Runner) *Query {
	return &Query{Schema: s, runner: r}
}

// Where adds a comparison. A slice value is bound as a list; a scalar given
// to in/not in becomes a one-element list.
func (q *Query) Where(field, op string, value any) *Query {
	op = normalizeOp(op)
	if !knownOps[op] {
		q.fail(fmt.Errorf("unsupported operator %q", op))
		return q
	}
	c := Condition{Field: field, Op: op}
	switch v := value.(type) {
	case []any:
		c.Values = v
	default:
		if op == OpIn || op == OpNotIn {
			c.Values = []any{v}
		} else {
			c.Value = v
		}
	}
	if (op == OpBetween || op == OpNotBetween) && len(c.Values) != 2 {
		q.fail(fmt.Errorf("%s on %s needs exactly two values", op, field))
		return q
	}
	if c.Values != nil && !acceptsList(op) {
		q.fail(fmt.Errorf("%s on %s takes a single value", op, field))
		return q
	}
	q.Conditions = append(q.Conditions, c)
	return q
}

func (q *Query) WhereIn(field string, values []any) *Query {
	q.Conditions = append(q.Conditions, Condition{Field: field, Op: OpIn, Values: values})
	return q
}

func (q *Query) WhereNotIn(field string, values []any) *Query {
	q.Conditions = append(q.Conditions, Condition{Field: field, Op: OpNotIn, Values: values})
	return q
}

func (q *Query) WhereNull(field string) *Query {
	q.Conditions = append(q.Conditions, Condition{Field: field, Op: OpIsNull})
	return q
}

func (q *Query) WhereNotNull(field string) *Query {
	q.Conditions = append(q.Conditions, Condition{Field: field, Op: OpIsNotNull})
	return q
}

// WhereAnyLike matches rows where at least one of fields case-insensitively
// matches pattern. It is a no-op without fields.
func (q *Query) WhereAnyLike(fields []string, pattern string) *Query {
	if len(fields) == 0 {
		return q
	}
	q.Conditions = append(q.Conditions, Condition{Op: OpAnyILike, Fields: fields, Value: pattern})
	return q
}

func (q *Query) OrderBy(field string, desc bool) *Query {
	q.Orders = append(q.Orders, Order{Field: field, Desc: desc})
	return q
}

// ForPage limits the result to one 1-based page.
func (q *Query) ForPage(page, size int) *Query {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	q.Page, q.PageSize = page, size
	return q
}

// With eager-loads a relation into each fetched record. A dotted path
// ("tags.widgets") loads nested relations; segments past the first are
// checked when the query runs.
func (q *Query) With(relation string) *Query {
	head, _ := SplitRelationPath(relation)
	if _, ok := q.Schema.Relation(head); !ok {
		q.fail(fmt.Errorf("%w: %s.%s", ErrUnknownRelation, q.Schema.Name, relation))
		return q
	}
	q.Relations = append(q.Relations, relation)
	return q
}

// SplitRelationPath splits a dotted relation path into its first segment and
// the remainder.
func SplitRelationPath(path string) (head, rest string) {
	head, rest, _ = strings.Cut(path, ".")
	return head, rest
}

// Offset returns the number of rows skipped by pagination.
func (q *Query) Offset() int {
	if q.Page < 1 {
		return 0
	}
	return (q.Page - 1) * q.PageSize
}

func (q *Query) Fetch(ctx context.Context) ([]Record, error) {
	if q.Err != nil {
		return nil, q.Err
	}
	return q.runner.Fetch(ctx, q)
}

// First returns the first matching record or ErrNotFound.
func (q *Query) First(ctx context.Context) (Record, error) {
	if q.Err != nil {
		return nil, q.Err
	}
	page := *q
	page.Page, page.PageSize = 1, 1
	rows, err := q.runner.Fetch(ctx, &page)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	return rows[0], nil
}

// Count returns the number of matching rows, ignoring ordering and
// pagination.
func (q *Query) Count(ctx context.Context) (int64, error) {
	if q.Err != nil {
		return 0, q.Err
	}
	return q.runner.Count(ctx, q)
}

func (q *Query) fail(err error) {
	if q.Err == nil {
		q.Err = err
	}
}

func normalizeOp(op string) string {
	op = strings.ToLower(strings.Join(strings.Fields(op), " "))
	if op == "!=" {
		return OpNe
	}
	return op
}

func acceptsList(op string) bool {
	switch op {
	case OpIn, OpNotIn, OpBetween, OpNotBetween:
		return true
	}
	return false
}
