package pgx

import (
	"testing"
	"time"

	"github.com/edgeflare/pgcrud/pkg/entity"
	"github.com/edgeflare/pgcrud/pkg/filter"
	"github.com/edgeflare/pgcrud/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var widgets = &entity.Schema{
	Name:       "Widget",
	Table:      "widgets",
	DBSchema:   "public",
	PrimaryKey: "id",
	Search:     []string{"name", "description"},
	Relations: []*entity.Relation{
		{Name: "tags", Kind: entity.ManyToMany, Related: "Tag", PivotTable: "widget_tags", PivotForeignKey: "widget_id", PivotRelatedKey: "tag_id"},
		{Name: "parts", Kind: entity.OneToMany, Related: "Part", ForeignKey: "widget_id"},
	},
}

var tags = &entity.Schema{Name: "Tag", Table: "tags", DBSchema: "public", PrimaryKey: "id"}

func TestBuildSelect(t *testing.T) {
	tests := []struct {
		name     string
		build    func(q *store.Query) *store.Query
		wantSQL  string
		wantArgs []any
	}{
		{
			name:    "all",
			build:   func(q *store.Query) *store.Query { return q },
			wantSQL: `SELECT * FROM "public"."widgets"`,
		},
		{
			name: "list scenario",
			build: func(q *store.Query) *store.Query {
				return q.Where("status", "=", "active").OrderBy("createdAt", true).ForPage(2, 10)
			},
			wantSQL:  `SELECT * FROM "public"."widgets" WHERE "status" = $1 ORDER BY "createdAt" DESC NULLS LAST LIMIT $2 OFFSET $3`,
			wantArgs: []any{"active", 10, 10},
		},
		{
			name: "set membership and nulls",
			build: func(q *store.Query) *store.Query {
				return q.WhereIn("id", []any{int64(1), int64(2)}).WhereNotIn("status", []any{"x"}).WhereNull("deletedAt").WhereNotNull("name")
			},
			wantSQL:  `SELECT * FROM "public"."widgets" WHERE "id" IN ($1, $2) AND "status" NOT IN ($3) AND "deletedAt" IS NULL AND "name" IS NOT NULL`,
			wantArgs: []any{"1", "2", "x"},
		},
		{
			name:    "empty in list",
			build:   func(q *store.Query) *store.Query { return q.WhereIn("id", nil).WhereNotIn("id", nil) },
			wantSQL: `SELECT * FROM "public"."widgets" WHERE FALSE AND TRUE`,
		},
		{
			name: "range and named comparators",
			build: func(q *store.Query) *store.Query {
				return q.Where("price", ">=", int64(5)).Where("name", "not ilike", "%x%").Where("price", "between", []any{int64(1), int64(9)})
			},
			wantSQL:  `SELECT * FROM "public"."widgets" WHERE "price" >= $1 AND "name"::text NOT ILIKE $2 AND "price" BETWEEN $3 AND $4`,
			wantArgs: []any{"5", "%x%", "1", "9"},
		},
		{
			name: "regex",
			build: func(q *store.Query) *store.Query {
				return q.Where("name", "=", filter.Regex{Pattern: "^a", Flags: "i"}).Where("code", "!=", filter.Regex{Pattern: "z$"})
			},
			wantSQL:  `SELECT * FROM "public"."widgets" WHERE "name"::text ~* $1 AND "code"::text !~ $2`,
			wantArgs: []any{"^a", "z$"},
		},
		{
			name:     "search",
			build:    func(q *store.Query) *store.Query { return q.WhereAnyLike(widgets.Search, "%bolt%") },
			wantSQL:  `SELECT * FROM "public"."widgets" WHERE ("name"::text ILIKE $1 OR "description"::text ILIKE $1)`,
			wantArgs: []any{"%bolt%"},
		},
		{
			name:    "quoted identifiers",
			build:   func(q *store.Query) *store.Query { return q.OrderBy(`bad"name`, false) },
			wantSQL: `SELECT * FROM "public"."widgets" ORDER BY "bad""name" ASC NULLS LAST`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := tt.build(store.NewQuery(widgets, nil))
			require.NoError(t, q.Err)
			sql, args, err := buildSelect(q)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBuildSelectBindsFilterOperandsAsText(t *testing.T) {
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	q := store.NewQuery(widgets, nil).
		Where("code", "=", filter.Coerce("123").Data).
		Where("active", "!=", filter.Coerce("true").Data).
		Where("price", "<", filter.Coerce("1.5").Data).
		Where("created", ">=", filter.Coerce("2024-01-01").Data).
		WhereIn("id", []any{int64(1), 2})
	require.NoError(t, q.Err)

	sql, args, err := buildSelect(q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "public"."widgets" WHERE "code" = $1 AND "active" <> $2 AND "price" < $3 AND "created" >= $4 AND "id" IN ($5, $6)`, sql)
	assert.Equal(t, []any{"123", "true", "1.5", created.Format(time.RFC3339Nano), "1", "2"}, args)
	for _, arg := range args {
		assert.IsType(t, "", arg)
	}
}

func TestBuildCountIgnoresOrderAndPage(t *testing.T) {
	q := store.NewQuery(widgets, nil).Where("status", "=", "active").OrderBy("name", false).ForPage(3, 5)
	sql, args, err := buildCount(q)
	require.NoError(t, err)
	assert.Equal(t, `SELECT count(*) FROM "public"."widgets" WHERE "status" = $1`, sql)
	assert.Equal(t, []any{"active"}, args)
}

func TestBuildWrites(t *testing.T) {
	sql, args := buildInsert(widgets, store.Record{"price": int64(3), "name": "a"})
	assert.Equal(t, `INSERT INTO "public"."widgets" ("name", "price") VALUES ($1, $2) RETURNING *`, sql)
	assert.Equal(t, []any{"a", int64(3)}, args)

	sql, args = buildInsert(widgets, store.Record{})
	assert.Equal(t, `INSERT INTO "public"."widgets" DEFAULT VALUES RETURNING *`, sql)
	assert.Nil(t, args)

	sql, args, err := buildUpdate(widgets, store.Record{"id": int64(7)}, store.Record{"name": "b"})
	require.NoError(t, err)
	assert.Equal(t, `UPDATE "public"."widgets" SET "name" = $1 WHERE "id" = $2 RETURNING *`, sql)
	assert.Equal(t, []any{"b", "7"}, args)

	sql, _, err = buildUpdate(widgets, store.Record{"id": int64(7)}, nil)
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "public"."widgets" WHERE "id" = $1 LIMIT 1`, sql)

	_, _, err = buildUpdate(widgets, nil, store.Record{"name": "b"})
	assert.Error(t, err)

	sql, args, err = buildDelete(widgets, store.Record{"widget_id": int64(1), "line_no": int64(2)})
	require.NoError(t, err)
	assert.Equal(t, `DELETE FROM "public"."widgets" WHERE "line_no" = $1 AND "widget_id" = $2`, sql)
	assert.Equal(t, []any{"2", "1"}, args)

	_, _, err = buildDelete(widgets, store.Record{})
	assert.Error(t, err)

	sql, args = buildFindByKey(widgets, "42")
	assert.Equal(t, `SELECT * FROM "public"."widgets" WHERE "id" = $1 LIMIT 1`, sql)
	assert.Equal(t, []any{"42"}, args)
}

func TestBuildPivot(t *testing.T) {
	rel, _ := widgets.Relation("tags")

	sql, args := buildPivotDelete(widgets, rel, int64(1))
	assert.Equal(t, `DELETE FROM "public"."widget_tags" WHERE "widget_id" = $1`, sql)
	assert.Equal(t, []any{int64(1)}, args)

	sql, args = buildPivotInsert(widgets, rel, int64(1), []any{int64(4), int64(5)})
	assert.Equal(t, `INSERT INTO "public"."widget_tags" ("widget_id", "tag_id") VALUES ($1, $2), ($1, $3) ON CONFLICT DO NOTHING`, sql)
	assert.Equal(t, []any{int64(1), int64(4), int64(5)}, args)
}

func TestBuildEagerLoad(t *testing.T) {
	parts, _ := widgets.Relation("parts")
	partSchema := &entity.Schema{Name: "Part", Table: "parts", DBSchema: "public", PrimaryKey: "id"}
	sql, args := buildHasMany(partSchema, parts, []any{int64(1), int64(2)})
	assert.Equal(t, `SELECT * FROM "public"."parts" WHERE "widget_id" IN ($1, $2)`, sql)
	assert.Equal(t, []any{int64(1), int64(2)}, args)

	rel, _ := widgets.Relation("tags")
	sql, args = buildManyToMany(widgets, tags, rel, []any{int64(1)})
	assert.Equal(t, `SELECT r.*, p."widget_id" AS "__pgcrud_parent" FROM "public"."tags" r JOIN "public"."widget_tags" p ON p."tag_id" = r."id" WHERE p."widget_id" IN ($1)`, sql)
	assert.Equal(t, []any{int64(1)}, args)
}
