// Package memory is an in-process implementation of store.Store. Writers
// are serialized; every transaction works on a private copy of the data
// that replaces the committed copy on Commit. Committed data is never
// mutated in place, so readers need no locking beyond taking a snapshot.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/edgeflare/pgcrud/pkg/entity"
	"github.com/edgeflare/pgcrud/pkg/store"
)

type table struct {
	rows []store.Record
	seq  int64
}

type dataset map[string]*table

func (d dataset) clone() dataset {
	out := make(dataset, len(d))
	for name, t := range d {
		rows := make([]store.Record, len(t.rows))
		for i, r := range t.rows {
			rows[i] = r.Clone()
		}
		out[name] = &table{rows: rows, seq: t.seq}
	}
	return out
}

func (d dataset) table(dbSchema, name string) *table {
	key := dbSchema + "." + name
	t, ok := d[key]
	if !ok {
		t = &table{}
		d[key] = t
	}
	return t
}

// Store keeps every table in memory.
type Store struct {
	resolver store.Resolver

	writer sync.Mutex // held by the open transaction
	mu     sync.RWMutex
	data   dataset
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store. resolver is used to look up related schemas
// when eager loading.
func New(resolver store.Resolver) *Store {
	return &Store{resolver: resolver, data: dataset{}}
}

func (s *Store) snapshot() *view {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &view{resolver: s.resolver, data: s.data}
}

func (s *Store) Query(sc *entity.Schema) *store.Query {
	return s.snapshot().Query(sc)
}

func (s *Store) FindByKey(ctx context.Context, sc *entity.Schema, key any) (store.Record, error) {
	return s.snapshot().FindByKey(ctx, sc, key)
}

func (s *Store) Insert(ctx context.Context, sc *entity.Schema, attrs store.Record) (rec store.Record, err error) {
	err = s.autocommit(ctx, func(tx store.Tx) error {
		rec, err = tx.Insert(ctx, sc, attrs)
		return err
	})
	return rec, err
}

func (s *Store) Update(ctx context.Context, sc *entity.Schema, where, attrs store.Record) (rec store.Record, err error) {
	err = s.autocommit(ctx, func(tx store.Tx) error {
		rec, err = tx.Update(ctx, sc, where, attrs)
		return err
	})
	return rec, err
}

func (s *Store) Delete(ctx context.Context, sc *entity.Schema, where store.Record) error {
	return s.autocommit(ctx, func(tx store.Tx) error {
		return tx.Delete(ctx, sc, where)
	})
}

func (s *Store) Sync(ctx context.Context, sc *entity.Schema, rel *entity.Relation, parentKey any, ids []any) error {
	return s.autocommit(ctx, func(tx store.Tx) error {
		return tx.Sync(ctx, sc, rel, parentKey, ids)
	})
}

func (s *Store) autocommit(ctx context.Context, fn func(store.Tx) error) error {
	tx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Begin blocks until no other transaction is open.
func (s *Store) Begin(ctx context.Context) (store.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.writer.Lock()
	s.mu.RLock()
	data := s.data.clone()
	s.mu.RUnlock()
	return &Tx{store: s, view: &view{resolver: s.resolver, data: data}}, nil
}

func (s *Store) Close() {}

// Tx is a memory transaction.
type Tx struct {
	*view
	store *Store
	done  bool
}

func (t *Tx) Commit(context.Context) error {
	if t.done {
		return store.ErrTxDone
	}
	t.done = true
	t.store.mu.Lock()
	t.store.data = t.view.data
	t.store.mu.Unlock()
	t.store.writer.Unlock()
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.writer.Unlock()
	return nil
}

// Seed inserts rows directly, bypassing transactions. It is meant for tests
// and fixtures.
func (s *Store) Seed(sc *entity.Schema, rows ...store.Record) error {
	ctx := context.Background()
	for _, r := range rows {
		if _, err := s.Insert(ctx, sc, r); err != nil {
			return fmt.Errorf("seed %s: %w", sc.Name, err)
		}
	}
	return nil
}

// SeedPivot links parentKey to ids on a many-to-many relation.
func (s *Store) SeedPivot(sc *entity.Schema, rel *entity.Relation, parentKey any, ids ...any) error {
	return s.autocommit(context.Background(), func(tx store.Tx) error {
		t := tx.(*Tx).data.table(sc.DBSchema, rel.PivotTable)
		for _, id := range ids {
			t.rows = append(t.rows, store.Record{rel.PivotForeignKey: parentKey, rel.PivotRelatedKey: id})
		}
		return nil
	})
}
