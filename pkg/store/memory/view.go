package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"

	"github.com/edgeflare/pgcrud/pkg/entity"
	"github.com/edgeflare/pgcrud/pkg/filter"
	"github.com/edgeflare/pgcrud/pkg/store"
)

// view executes reads and writes against one dataset.
type view struct {
	resolver store.Resolver
	data     dataset
}

func (v *view) rows(sc *entity.Schema) []store.Record {
	return v.lookup(sc.DBSchema, sc.Table)
}

// lookup never creates tables; committed datasets are shared by readers.
func (v *view) lookup(dbSchema, name string) []store.Record {
	if t, ok := v.data[dbSchema+"."+name]; ok {
		return t.rows
	}
	return nil
}

func (v *view) Query(sc *entity.Schema) *store.Query {
	return store.NewQuery(sc, v)
}

func (v *view) Fetch(ctx context.Context, q *store.Query) ([]store.Record, error) {
	matched, err := v.match(q.Schema, q.Conditions)
	if err != nil {
		return nil, err
	}
	if len(q.Orders) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return less(matched[i], matched[j], q.Orders)
		})
	}
	if q.Page > 0 {
		from := min(q.Offset(), len(matched))
		to := min(from+q.PageSize, len(matched))
		matched = matched[from:to]
	}

	out := make([]store.Record, len(matched))
	for i, r := range matched {
		out[i] = r.Clone()
	}
	for _, name := range q.Relations {
		if err := v.eagerLoad(ctx, q.Schema, name, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (v *view) Count(_ context.Context, q *store.Query) (int64, error) {
	matched, err := v.match(q.Schema, q.Conditions)
	if err != nil {
		return 0, err
	}
	return int64(len(matched)), nil
}

func (v *view) match(sc *entity.Schema, conds []store.Condition) ([]store.Record, error) {
	var out []store.Record
	for _, r := range v.rows(sc) {
		ok, err := matchAll(r, conds)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

// less orders nulls last, like PostgreSQL does for ascending sorts.
func less(a, b store.Record, orders []store.Order) bool {
	for _, o := range orders {
		av, bv := a[o.Field], b[o.Field]
		switch {
		case av == nil && bv == nil:
			continue
		case av == nil:
			return o.Desc
		case bv == nil:
			return !o.Desc
		}
		c, ok := compare(av, bv)
		if !ok || c == 0 {
			continue
		}
		if o.Desc {
			return c > 0
		}
		return c < 0
	}
	return false
}

func matchAll(r store.Record, conds []store.Condition) (bool, error) {
	for _, c := range conds {
		ok, err := matchOne(r, c)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func matchOne(r store.Record, c store.Condition) (bool, error) {
	if c.Op == store.OpAnyILike {
		re, err := likePattern(text(c.Value), true)
		if err != nil {
			return false, err
		}
		for _, f := range c.Fields {
			if r[f] != nil && re.MatchString(text(r[f])) {
				return true, nil
			}
		}
		return false, nil
	}

	field := r[c.Field]
	switch c.Op {
	case store.OpIsNull:
		return field == nil, nil
	case store.OpIsNotNull:
		return field != nil, nil
	}
	if field == nil {
		return false, nil
	}

	switch c.Op {
	case store.OpEq, store.OpNe:
		want := c.Op == store.OpEq
		if re, ok := c.Value.(filter.Regex); ok {
			m, err := regexMatch(re, field)
			return m == want, err
		}
		return equal(field, c.Value) == want, nil
	case store.OpLt, store.OpLte, store.OpGt, store.OpGte:
		cmp, ok := compare(field, c.Value)
		if !ok {
			return false, nil
		}
		switch c.Op {
		case store.OpLt:
			return cmp < 0, nil
		case store.OpLte:
			return cmp <= 0, nil
		case store.OpGt:
			return cmp > 0, nil
		}
		return cmp >= 0, nil
	case store.OpLike, store.OpILike, store.OpNotLike, store.OpNotILike:
		fold := c.Op == store.OpILike || c.Op == store.OpNotILike
		re, err := likePattern(text(c.Value), fold)
		if err != nil {
			return false, err
		}
		m := re.MatchString(text(field))
		if c.Op == store.OpNotLike || c.Op == store.OpNotILike {
			return !m, nil
		}
		return m, nil
	case store.OpBetween, store.OpNotBetween:
		lo, ok1 := compare(field, c.Values[0])
		hi, ok2 := compare(field, c.Values[1])
		in := ok1 && ok2 && lo >= 0 && hi <= 0
		if c.Op == store.OpNotBetween {
			return ok1 && ok2 && !in, nil
		}
		return in, nil
	case store.OpIn, store.OpNotIn:
		found := slices.ContainsFunc(c.Values, func(x any) bool { return equal(field, x) })
		if c.Op == store.OpNotIn {
			return !found, nil
		}
		return found, nil
	}
	return false, fmt.Errorf("unsupported operator %q", c.Op)
}

func (v *view) eagerLoad(ctx context.Context, sc *entity.Schema, path string, records []store.Record) error {
	name, nested := store.SplitRelationPath(path)
	rel, ok := sc.Relation(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", store.ErrUnknownRelation, sc.Name, name)
	}
	related, err := v.resolver.Resolve(rel.Related)
	if err != nil {
		return err
	}

	switch rel.Kind {
	case entity.OneToMany:
		local := rel.LocalKeyOf(sc)
		for _, rec := range records {
			children := []store.Record{}
			for _, row := range v.rows(related) {
				if equal(row[rel.ForeignKey], rec[local]) {
					children = append(children, row.Clone())
				}
			}
			rec[rel.Name] = children
		}
	case entity.ManyToMany:
		pivot := v.lookup(sc.DBSchema, rel.PivotTable)
		for _, rec := range records {
			children := []store.Record{}
			for _, link := range pivot {
				if !equal(link[rel.PivotForeignKey], rec[sc.PrimaryKey]) {
					continue
				}
				for _, row := range v.rows(related) {
					if equal(row[related.PrimaryKey], link[rel.PivotRelatedKey]) {
						children = append(children, row.Clone())
					}
				}
			}
			rec[rel.Name] = children
		}
	}

	if nested == "" {
		return nil
	}
	var loaded []store.Record
	for _, rec := range records {
		loaded = append(loaded, rec[rel.Name].([]store.Record)...)
	}
	return v.eagerLoad(ctx, related, nested, loaded)
}

func (v *view) FindByKey(_ context.Context, sc *entity.Schema, key any) (store.Record, error) {
	for _, r := range v.rows(sc) {
		if equal(r[sc.PrimaryKey], key) {
			return r.Clone(), nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) Insert(_ context.Context, sc *entity.Schema, attrs store.Record) (store.Record, error) {
	t := v.data.table(sc.DBSchema, sc.Table)
	row := attrs.Clone()
	if row == nil {
		row = store.Record{}
	}

	if key, ok := row[sc.PrimaryKey]; !ok || key == nil {
		t.seq++
		row[sc.PrimaryKey] = t.seq
	} else {
		for _, existing := range t.rows {
			if equal(existing[sc.PrimaryKey], key) {
				return nil, fmt.Errorf("duplicate key value for %s.%s: %v", sc.Table, sc.PrimaryKey, key)
			}
		}
		if f, ok := normalize(key).(float64); ok && int64(f) > t.seq {
			t.seq = int64(f)
		}
	}
	t.rows = append(t.rows, row)
	return row.Clone(), nil
}

func (v *view) Update(_ context.Context, sc *entity.Schema, where, attrs store.Record) (store.Record, error) {
	if len(where) == 0 {
		return nil, fmt.Errorf("update %s: no where conditions", sc.Table)
	}
	t := v.data.table(sc.DBSchema, sc.Table)
	var first store.Record
	for i, r := range t.rows {
		if !matchesWhere(r, where) {
			continue
		}
		next := r.Clone()
		for k, val := range attrs {
			next[k] = val
		}
		t.rows[i] = next
		if first == nil {
			first = next.Clone()
		}
	}
	if first == nil {
		return nil, store.ErrNotFound
	}
	return first, nil
}

func (v *view) Delete(_ context.Context, sc *entity.Schema, where store.Record) error {
	if len(where) == 0 {
		return fmt.Errorf("delete %s: no where conditions", sc.Table)
	}
	t := v.data.table(sc.DBSchema, sc.Table)
	t.rows = slices.DeleteFunc(t.rows, func(r store.Record) bool { return matchesWhere(r, where) })
	return nil
}

func (v *view) Sync(_ context.Context, sc *entity.Schema, rel *entity.Relation, parentKey any, ids []any) error {
	if rel.Kind != entity.ManyToMany {
		return fmt.Errorf("sync %s.%s: not a many-to-many relation", sc.Name, rel.Name)
	}
	t := v.data.table(sc.DBSchema, rel.PivotTable)
	t.rows = slices.DeleteFunc(t.rows, func(r store.Record) bool {
		return equal(r[rel.PivotForeignKey], parentKey)
	})
	var seen []any
	for _, id := range ids {
		if slices.ContainsFunc(seen, func(x any) bool { return equal(x, id) }) {
			continue
		}
		seen = append(seen, id)
		t.rows = append(t.rows, store.Record{rel.PivotForeignKey: parentKey, rel.PivotRelatedKey: id})
	}
	return nil
}

func matchesWhere(r, where store.Record) bool {
	for k, want := range where {
		if !equal(r[k], want) {
			return false
		}
	}
	return true
}
