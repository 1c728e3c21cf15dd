// Package store defines the storage contract the REST core runs against:
// a chainable query builder, keyed record writes, relation sync and
// transactions. Implementations live in pkg/pgx (PostgreSQL) and
// pkg/store/memory.
package store

import (
	"context"
	"errors"

	"github.com/edgeflare/pgcrud/pkg/entity"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrTxDone          = errors.New("transaction already committed or rolled back")
	ErrUnknownRelation = errors.New("unknown relation")
)

// Record is one row, keyed by column name. Eager-loaded relations are
// attached under the relation name as []Record.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Resolver looks up related schemas while eager loading.
type Resolver interface {
	Resolve(name string) (*entity.Schema, error)
}

// Executor runs reads and writes, either directly or inside a transaction.
type Executor interface {
	// Query starts a builder over the collection described by s.
	Query(s *entity.Schema) *Query

	// FindByKey returns the row whose primary key equals key, or ErrNotFound.
	FindByKey(ctx context.Context, s *entity.Schema, key any) (Record, error)

	// Insert writes a new row and returns it as stored.
	Insert(ctx context.Context, s *entity.Schema, attrs Record) (Record, error)

	// Update sets attrs on the single row matching every column in where and
	// returns it as stored. It returns ErrNotFound when nothing matches.
	Update(ctx context.Context, s *entity.Schema, where, attrs Record) (Record, error)

	// Delete removes the rows matching every column in where.
	Delete(ctx context.Context, s *entity.Schema, where Record) error

	// Sync replaces the many-to-many association set of parentKey on rel
	// with exactly ids.
	Sync(ctx context.Context, s *entity.Schema, rel *entity.Relation, parentKey any, ids []any) error
}

// Store is a storage backend.
type Store interface {
	Executor
	Begin(ctx context.Context) (Tx, error)
	Close()
}

// Tx is one atomic unit of work. Rollback after Commit is a no-op.
type Tx interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Runner executes an assembled Query.
type Runner interface {
	Fetch(ctx context.Context, q *Query) ([]Record, error)
	Count(ctx context.Context, q *Query) (int64, error)
}
