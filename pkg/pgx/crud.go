package pgx

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/edgeflare/pgcrud/pkg/entity"
	"github.com/edgeflare/pgcrud/pkg/filter"
	"github.com/edgeflare/pgcrud/pkg/store"
	"github.com/jackc/pgx/v5"
)

type queryBuilder struct {
	schema    string
	table     string
	args      []any
	nextIndex int
}

func newQueryBuilder(s *entity.Schema) *queryBuilder {
	return newTableBuilder(s.DBSchema, s.Table)
}

func newTableBuilder(schema, table string) *queryBuilder {
	if schema == "" {
		schema = "public"
	}
	return &queryBuilder{schema: schema, table: table, nextIndex: 1}
}

// bind records value as the next argument and returns its placeholder.
func (qb *queryBuilder) bind(value any) string {
	placeholder := fmt.Sprintf("$%d", qb.nextIndex)
	qb.nextIndex++
	qb.args = append(qb.args, value)
	return placeholder
}

// bindText binds scalars in their text form. pgx sends strings in the text
// format, so PostgreSQL casts them to the column type; an int64 against a
// text column would have no encode plan.
func (qb *queryBuilder) bindText(value any) string {
	return qb.bind(textArg(value))
}

func textArg(value any) any {
	switch v := value.(type) {
	case int:
		return strconv.Itoa(v)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339Nano)
	}
	return value
}

func (qb *queryBuilder) tableIdentifier() string {
	return pgx.Identifier{qb.schema, qb.table}.Sanitize()
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// sortedKeys gives generated statements a stable column order.
func sortedKeys(r store.Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func (qb *queryBuilder) whereEquals(where store.Record) string {
	clauses := make([]string, 0, len(where))
	for _, k := range sortedKeys(where) {
		clauses = append(clauses, fmt.Sprintf("%s = %s", ident(k), qb.bindText(where[k])))
	}
	return strings.Join(clauses, " AND ")
}

func buildSelect(q *store.Query) (string, []any, error) {
	qb := newQueryBuilder(q.Schema)
	var sql strings.Builder
	sql.WriteString("SELECT * FROM ")
	sql.WriteString(qb.tableIdentifier())

	where, err := qb.conditions(q.Conditions)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		sql.WriteString(" WHERE ")
		sql.WriteString(where)
	}

	if len(q.Orders) > 0 {
		terms := make([]string, len(q.Orders))
		for i, o := range q.Orders {
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			terms[i] = ident(o.Field) + " " + dir + " NULLS LAST"
		}
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(terms, ", "))
	}

	if q.Page > 0 {
		sql.WriteString(" LIMIT " + qb.bind(q.PageSize))
		sql.WriteString(" OFFSET " + qb.bind(q.Offset()))
	}
	return sql.String(), qb.args, nil
}

func buildCount(q *store.Query) (string, []any, error) {
	qb := newQueryBuilder(q.Schema)
	sql := "SELECT count(*) FROM " + qb.tableIdentifier()
	where, err := qb.conditions(q.Conditions)
	if err != nil {
		return "", nil, err
	}
	if where != "" {
		sql += " WHERE " + where
	}
	return sql, qb.args, nil
}

func (qb *queryBuilder) conditions(conds []store.Condition) (string, error) {
	clauses := make([]string, 0, len(conds))
	for _, c := range conds {
		clause, err := qb.condition(c)
		if err != nil {
			return "", err
		}
		clauses = append(clauses, clause)
	}
	return strings.Join(clauses, " AND "), nil
}

func (qb *queryBuilder) condition(c store.Condition) (string, error) {
	col := ident(c.Field)
	switch c.Op {
	case store.OpIsNull:
		return col + " IS NULL", nil
	case store.OpIsNotNull:
		return col + " IS NOT NULL", nil

	case store.OpAnyILike:
		p := qb.bind(c.Value)
		terms := make([]string, len(c.Fields))
		for i, f := range c.Fields {
			terms[i] = fmt.Sprintf("%s::text ILIKE %s", ident(f), p)
		}
		return "(" + strings.Join(terms, " OR ") + ")", nil

	case store.OpIn, store.OpNotIn:
		if len(c.Values) == 0 {
			if c.Op == store.OpIn {
				return "FALSE", nil
			}
			return "TRUE", nil
		}
		placeholders := make([]string, len(c.Values))
		for i, v := range c.Values {
			placeholders[i] = qb.bindText(v)
		}
		return fmt.Sprintf("%s %s (%s)", col, strings.ToUpper(c.Op), strings.Join(placeholders, ", ")), nil

	case store.OpBetween, store.OpNotBetween:
		if len(c.Values) != 2 {
			return "", fmt.Errorf("%s on %s needs exactly two values", c.Op, c.Field)
		}
		return fmt.Sprintf("%s %s %s AND %s", col, strings.ToUpper(c.Op), qb.bindText(c.Values[0]), qb.bindText(c.Values[1])), nil

	case store.OpEq, store.OpNe:
		if re, ok := c.Value.(filter.Regex); ok {
			op := "~"
			if re.CaseInsensitive() {
				op += "*"
			}
			if c.Op == store.OpNe {
				op = "!" + op
			}
			return fmt.Sprintf("%s::text %s %s", col, op, qb.bind(re.Pattern)), nil
		}
		return fmt.Sprintf("%s %s %s", col, c.Op, qb.bindText(c.Value)), nil

	case store.OpLt, store.OpLte, store.OpGt, store.OpGte:
		return fmt.Sprintf("%s %s %s", col, c.Op, qb.bindText(c.Value)), nil

	case store.OpLike, store.OpILike, store.OpNotLike, store.OpNotILike:
		return fmt.Sprintf("%s::text %s %s", col, strings.ToUpper(c.Op), qb.bindText(c.Value)), nil
	}
	return "", fmt.Errorf("unsupported operator %q", c.Op)
}

func buildFindByKey(s *entity.Schema, key any) (string, []any) {
	qb := newQueryBuilder(s)
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s = %s LIMIT 1", qb.tableIdentifier(), ident(s.PrimaryKey), qb.bind(key))
	return sql, qb.args
}

func buildInsert(s *entity.Schema, attrs store.Record) (string, []any) {
	qb := newQueryBuilder(s)
	if len(attrs) == 0 {
		return fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", qb.tableIdentifier()), nil
	}
	keys := sortedKeys(attrs)
	columns := make([]string, len(keys))
	placeholders := make([]string, len(keys))
	for i, k := range keys {
		columns[i] = ident(k)
		placeholders[i] = qb.bind(attrs[k])
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		qb.tableIdentifier(),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
	)
	return sql, qb.args
}

// buildUpdate falls back to a plain select when there is nothing to set, so
// the caller still gets the current row back.
func buildUpdate(s *entity.Schema, where, attrs store.Record) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, fmt.Errorf("update %s: no WHERE conditions provided", s.Table)
	}
	qb := newQueryBuilder(s)
	if len(attrs) == 0 {
		sql := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT 1", qb.tableIdentifier(), qb.whereEquals(where))
		return sql, qb.args, nil
	}

	keys := sortedKeys(attrs)
	set := make([]string, len(keys))
	for i, k := range keys {
		set[i] = fmt.Sprintf("%s = %s", ident(k), qb.bind(attrs[k]))
	}
	sql := fmt.Sprintf(
		"UPDATE %s SET %s WHERE %s RETURNING *",
		qb.tableIdentifier(),
		strings.Join(set, ", "),
		qb.whereEquals(where),
	)
	return sql, qb.args, nil
}

func buildDelete(s *entity.Schema, where store.Record) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, fmt.Errorf("delete %s: no WHERE conditions provided", s.Table)
	}
	qb := newQueryBuilder(s)
	return fmt.Sprintf("DELETE FROM %s WHERE %s", qb.tableIdentifier(), qb.whereEquals(where)), qb.args, nil
}

func buildPivotDelete(s *entity.Schema, rel *entity.Relation, parentKey any) (string, []any) {
	qb := newTableBuilder(s.DBSchema, rel.PivotTable)
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", qb.tableIdentifier(), ident(rel.PivotForeignKey), qb.bind(parentKey))
	return sql, qb.args
}

func buildPivotInsert(s *entity.Schema, rel *entity.Relation, parentKey any, ids []any) (string, []any) {
	qb := newTableBuilder(s.DBSchema, rel.PivotTable)
	parent := qb.bind(parentKey)
	rows := make([]string, len(ids))
	for i, id := range ids {
		rows[i] = fmt.Sprintf("(%s, %s)", parent, qb.bind(id))
	}
	sql := fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES %s ON CONFLICT DO NOTHING",
		qb.tableIdentifier(),
		ident(rel.PivotForeignKey),
		ident(rel.PivotRelatedKey),
		strings.Join(rows, ", "),
	)
	return sql, qb.args
}

// buildHasMany selects the related rows of every parent key at once.
func buildHasMany(related *entity.Schema, rel *entity.Relation, parentKeys []any) (string, []any) {
	qb := newQueryBuilder(related)
	placeholders := make([]string, len(parentKeys))
	for i, k := range parentKeys {
		placeholders[i] = qb.bind(k)
	}
	sql := fmt.Sprintf("SELECT * FROM %s WHERE %s IN (%s)",
		qb.tableIdentifier(), ident(rel.ForeignKey), strings.Join(placeholders, ", "))
	return sql, qb.args
}

// pivotParentColumn carries the parent key of many-to-many rows and is
// stripped before records are returned.
const pivotParentColumn = "__pgcrud_parent"

func buildManyToMany(parent, related *entity.Schema, rel *entity.Relation, parentKeys []any) (string, []any) {
	qb := newQueryBuilder(related)
	pivot := pgx.Identifier{parent.DBSchema, rel.PivotTable}.Sanitize()
	placeholders := make([]string, len(parentKeys))
	for i, k := range parentKeys {
		placeholders[i] = qb.bind(k)
	}
	sql := fmt.Sprintf(
		"SELECT r.*, p.%s AS %s FROM %s r JOIN %s p ON p.%s = r.%s WHERE p.%s IN (%s)",
		ident(rel.PivotForeignKey), ident(pivotParentColumn),
		qb.tableIdentifier(), pivot,
		ident(rel.PivotRelatedKey), ident(related.PrimaryKey),
		ident(rel.PivotForeignKey), strings.Join(placeholders, ", "),
	)
	return sql, qb.args
}
