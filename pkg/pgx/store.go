package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/pgcrud/pkg/entity"
	"github.com/edgeflare/pgcrud/pkg/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Store implements store.Store on a PostgreSQL connection pool.
type Store struct {
	executor
	pool *pgxpool.Pool
}

var (
	_ store.Store = (*Store)(nil)
	_ store.Tx    = (*Tx)(nil)
)

// NewStore wraps pool. resolver looks up related schemas when eager
// loading.
func NewStore(pool *pgxpool.Pool, resolver store.Resolver) *Store {
	return &Store{executor: executor{db: pool, resolver: resolver}, pool: pool}
}

func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	return &Tx{executor: executor{db: tx, resolver: s.resolver}, tx: tx}, nil
}

// Sync runs in its own transaction when called outside one.
func (s *Store) Sync(ctx context.Context, sc *entity.Schema, rel *entity.Relation, parentKey any, ids []any) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		e := executor{db: tx, resolver: s.resolver}
		return e.Sync(ctx, sc, rel, parentKey, ids)
	})
}

func (s *Store) Close() {
	s.pool.Close()
}

// Tx is a PostgreSQL transaction.
type Tx struct {
	executor
	tx pgx.Tx
}

func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		if errors.Is(err, pgx.ErrTxClosed) {
			return store.ErrTxDone
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (t *Tx) Rollback(ctx context.Context) error {
	if err := t.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

type executor struct {
	db       querier
	resolver store.Resolver
}

func (e executor) Query(s *entity.Schema) *store.Query {
	return store.NewQuery(s, e)
}

func (e executor) Fetch(ctx context.Context, q *store.Query) ([]store.Record, error) {
	sql, args, err := buildSelect(q)
	if err != nil {
		return nil, err
	}
	records, err := e.collect(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", q.Schema.Table, err)
	}
	for _, name := range q.Relations {
		if err := e.eagerLoad(ctx, q.Schema, name, records); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func (e executor) Count(ctx context.Context, q *store.Query) (int64, error) {
	sql, args, err := buildCount(q)
	if err != nil {
		return 0, err
	}
	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Schema.Table, err)
	}
	n, err := pgx.CollectExactlyOneRow(rows, pgx.RowTo[int64])
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", q.Schema.Table, err)
	}
	return n, nil
}

func (e executor) FindByKey(ctx context.Context, s *entity.Schema, key any) (store.Record, error) {
	sql, args := buildFindByKey(s, key)
	return e.one(ctx, sql, args)
}

func (e executor) Insert(ctx context.Context, s *entity.Schema, attrs store.Record) (store.Record, error) {
	sql, args := buildInsert(s, attrs)
	rec, err := e.one(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("insert into %s: %w", s.Table, err)
	}
	return rec, nil
}

func (e executor) Update(ctx context.Context, s *entity.Schema, where, attrs store.Record) (store.Record, error) {
	sql, args, err := buildUpdate(s, where, attrs)
	if err != nil {
		return nil, err
	}
	rec, err := e.one(ctx, sql, args)
	if err != nil {
		return nil, fmt.Errorf("update %s: %w", s.Table, err)
	}
	return rec, nil
}

func (e executor) Delete(ctx context.Context, s *entity.Schema, where store.Record) error {
	sql, args, err := buildDelete(s, where)
	if err != nil {
		return err
	}
	if _, err := e.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("delete from %s: %w", s.Table, err)
	}
	return nil
}

func (e executor) Sync(ctx context.Context, s *entity.Schema, rel *entity.Relation, parentKey any, ids []any) error {
	if rel.Kind != entity.ManyToMany {
		return fmt.Errorf("sync %s.%s: not a many-to-many relation", s.Name, rel.Name)
	}
	sql, args := buildPivotDelete(s, rel, parentKey)
	if _, err := e.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("sync %s.%s: %w", s.Name, rel.Name, err)
	}
	if len(ids) == 0 {
		return nil
	}
	sql, args = buildPivotInsert(s, rel, parentKey, ids)
	if _, err := e.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("sync %s.%s: %w", s.Name, rel.Name, err)
	}
	return nil
}

// one returns the first row of the result or store.ErrNotFound.
func (e executor) one(ctx context.Context, sql string, args []any) (store.Record, error) {
	records, err := e.collect(ctx, sql, args)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, store.ErrNotFound
	}
	return records[0], nil
}

func (e executor) collect(ctx context.Context, sql string, args []any) ([]store.Record, error) {
	rows, err := e.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	records := make([]store.Record, len(maps))
	for i, m := range maps {
		for k, v := range m {
			m[k] = jsonValue(v)
		}
		records[i] = store.Record(m)
	}
	return records, nil
}

// jsonValue converts driver values without a useful JSON form.
func jsonValue(v any) any {
	switch x := v.(type) {
	case [16]byte:
		return uuid.UUID(x).String()
	default:
		return v
	}
}

func (e executor) eagerLoad(ctx context.Context, parent *entity.Schema, path string, records []store.Record) error {
	name, nested := store.SplitRelationPath(path)
	rel, ok := parent.Relation(name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", store.ErrUnknownRelation, parent.Name, name)
	}
	related, err := e.resolver.Resolve(rel.Related)
	if err != nil {
		return err
	}

	localKey := parent.PrimaryKey
	if rel.Kind == entity.OneToMany {
		localKey = rel.LocalKeyOf(parent)
	}
	var keys []any
	seen := map[string]bool{}
	for _, rec := range records {
		rec[rel.Name] = []store.Record{}
		k := rec[localKey]
		if k == nil || seen[keyString(k)] {
			continue
		}
		seen[keyString(k)] = true
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}

	var sql string
	var args []any
	groupBy := rel.ForeignKey
	if rel.Kind == entity.ManyToMany {
		sql, args = buildManyToMany(parent, related, rel, keys)
		groupBy = pivotParentColumn
	} else {
		sql, args = buildHasMany(related, rel, keys)
	}

	children, err := e.collect(ctx, sql, args)
	if err != nil {
		return fmt.Errorf("load %s.%s: %w", parent.Name, rel.Name, err)
	}
	byParent := map[string][]store.Record{}
	for _, child := range children {
		k := keyString(child[groupBy])
		if rel.Kind == entity.ManyToMany {
			delete(child, pivotParentColumn)
		}
		byParent[k] = append(byParent[k], child)
	}
	for _, rec := range records {
		if kids, ok := byParent[keyString(rec[localKey])]; ok {
			rec[rel.Name] = kids
		}
	}
	if nested == "" {
		return nil
	}
	return e.eagerLoad(ctx, related, nested, children)
}

func keyString(v any) string {
	return fmt.Sprint(jsonValue(v))
}
