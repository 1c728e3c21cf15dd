package entity

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func widgetDefs() []Definition {
	return []Definition{
		{
			Name:     "Widget",
			Table:    "widgets",
			Fillable: []string{"name", "price"},
			Cascade:  []string{"tags", "parts"},
			Search:   []string{"name", "description"},
			Required: []string{"name"},
			Relations: []RelationDefinition{
				{Name: "tags", Kind: "manyToMany", Related: "Tag", PivotTable: "widget_tags", PivotForeignKey: "widget_id", PivotRelatedKey: "tag_id"},
				{Name: "parts", Kind: "oneToMany", Related: "Part", ForeignKey: "widget_id"},
			},
		},
		{Name: "Tag", Table: "tags"},
		{Name: "Part", Table: "parts", Fillable: []string{"label"}},
	}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"widgets":      "Widgets",
		"widget-items": "WidgetItems",
		"widget_items": "WidgetItems",
		"WidgetItems":  "WidgetItems",
		"widgetItems":  "WidgetItems",
		"a b":          "AB",
		"":             "",
	}
	for in, want := range tests {
		assert.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestRegistryResolve(t *testing.T) {
	r, err := NewRegistry(widgetDefs())
	require.NoError(t, err)

	s, err := r.Resolve("widget")
	require.NoError(t, err)
	assert.Equal(t, "Widget", s.Name)
	assert.Equal(t, "widgets", s.Table)
	assert.Equal(t, "public", s.DBSchema)
	assert.Equal(t, "id", s.PrimaryKey)
	assert.Equal(t, []string{"name", "price", "tags", "parts"}, s.Writable())
	assert.True(t, s.IsCascade("tags"))
	assert.False(t, s.IsCascade("name"))
	assert.True(t, s.HasColumn("anything"), "unknown columns accept every field")

	tags, ok := s.Relation("tags")
	require.True(t, ok)
	assert.Equal(t, ManyToMany, tags.Kind)
	assert.Equal(t, "Tag", tags.Related)

	parts, ok := s.Relation("parts")
	require.True(t, ok)
	assert.Equal(t, OneToMany, parts.Kind)
	assert.Equal(t, "id", parts.LocalKeyOf(s))

	again, err := r.Resolve("Widget")
	require.NoError(t, err)
	assert.Same(t, s, again, "resolved schemas are cached")
}

func TestRegistryResolveUnknown(t *testing.T) {
	r, err := NewRegistry(widgetDefs())
	require.NoError(t, err)

	_, err = r.Resolve("gadgets")
	assert.True(t, errors.Is(err, ErrCollectionNotFound))
}

func TestRegistryWritableWithoutAllowList(t *testing.T) {
	r, err := NewRegistry(widgetDefs())
	require.NoError(t, err)

	tag, err := r.Resolve("Tag")
	require.NoError(t, err)
	assert.Nil(t, tag.Writable())
}

func TestRegistryConcurrentResolve(t *testing.T) {
	r, err := NewRegistry(widgetDefs())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]*Schema, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.Resolve("widget")
			assert.NoError(t, err)
			results[i] = s
		}(i)
	}
	wg.Wait()
	for _, s := range results {
		assert.Same(t, results[0], s)
	}
}

func TestNewRegistryRejectsInvalidDefinitions(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
	}{
		{name: "missing name", defs: []Definition{{Table: "x"}}},
		{name: "duplicate", defs: []Definition{{Name: "a"}, {Name: "A"}}},
		{name: "unknown relation kind", defs: []Definition{{Name: "a", Relations: []RelationDefinition{{Name: "b", Kind: "hasOne", Related: "a"}}}}},
		{name: "unknown related", defs: []Definition{{Name: "a", Relations: []RelationDefinition{{Name: "b", Kind: "oneToMany", Related: "b"}}}}},
		{name: "pivot missing", defs: []Definition{{Name: "a", Relations: []RelationDefinition{{Name: "b", Kind: "manyToMany", Related: "a"}}}}},
		{name: "cascade not a relation", defs: []Definition{{Name: "a", Cascade: []string{"b"}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.defs)
			assert.ErrorIs(t, err, ErrInvalidDefinition)
		})
	}
}

type fakeIntrospector map[string]TableInfo

func (f fakeIntrospector) Table(schema, table string) (TableInfo, bool) {
	info, ok := f[schema+"."+table]
	return info, ok
}

func TestRegistryIntrospection(t *testing.T) {
	defs := []Definition{
		{
			Name:      "Order",
			Table:     "orders",
			Cascade:   []string{"lines"},
			Relations: []RelationDefinition{{Name: "lines", Kind: "hasMany", Related: "OrderLine"}},
		},
		{Name: "OrderLine", Table: "order_lines", CompositeKey: []string{"order_id", "line_no"}},
	}
	intro := fakeIntrospector{
		"public.orders": {Columns: []string{"order_no", "placed_at"}, PrimaryKeys: []string{"order_no"}},
		"public.order_lines": {
			Columns:     []string{"order_id", "line_no", "sku"},
			PrimaryKeys: []string{"order_id", "line_no"},
			ForeignKeys: []ForeignKey{{Column: "order_id", ReferencedSchema: "public", ReferencedTable: "orders", ReferencedColumn: "order_no"}},
		},
	}

	r, err := NewRegistry(defs, WithIntrospector(intro))
	require.NoError(t, err)

	order, err := r.Resolve("order")
	require.NoError(t, err)
	assert.Equal(t, "order_no", order.PrimaryKey)
	assert.True(t, order.HasColumn("placed_at"))
	assert.False(t, order.HasColumn("nope"))

	lines, ok := order.Relation("lines")
	require.True(t, ok)
	assert.Equal(t, "order_id", lines.ForeignKey)
	assert.Equal(t, []string{"order_id", "line_no"}, lines.CompositeKey, "composite key falls back to the related schema")

	line, err := r.Resolve("order-line")
	require.NoError(t, err)
	assert.Equal(t, "id", line.PrimaryKey, "composite primary keys are not collapsed")
}

func TestRegistryUninferableForeignKey(t *testing.T) {
	defs := []Definition{
		{Name: "a", Relations: []RelationDefinition{{Name: "bs", Kind: "oneToMany", Related: "b"}}},
		{Name: "b"},
	}
	r, err := NewRegistry(defs)
	require.NoError(t, err)

	_, err = r.Resolve("a")
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestRegistryValidators(t *testing.T) {
	custom := ValidatorFunc(func(context.Context, Operation, map[string]any) error { return nil })
	r, err := NewRegistry(widgetDefs(), WithValidator("part", custom))
	require.NoError(t, err)

	assert.NotNil(t, r.Validator("widget"))
	assert.NotNil(t, r.Validator("Part"))
	assert.Nil(t, r.Validator("tag"))
	assert.Equal(t, []string{"Part", "Tag", "Widget"}, r.Names())
}

func TestRequiredFields(t *testing.T) {
	v := RequiredFields{"name", "sku"}
	ctx := context.Background()

	err := v.Validate(ctx, OpCreate, map[string]any{"name": "x"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []FieldError{{Field: "sku", Message: "is required"}}, verr.Fields)

	assert.NoError(t, v.Validate(ctx, OpUpdate, map[string]any{"price": 3}))

	err = v.Validate(ctx, OpUpdate, map[string]any{"name": "  "})
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "name", verr.Fields[0].Field)

	assert.NoError(t, v.Validate(ctx, OpCreate, map[string]any{"name": "x", "sku": "y"}))
}
