package rest

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgeflare/pgcrud/pkg/entity"
	"github.com/edgeflare/pgcrud/pkg/metrics"
	"github.com/edgeflare/pgcrud/pkg/store"
	"go.uber.org/zap"
)

// cascadePayload holds the relation fields stripped from a write, keyed by
// relation name. It lives for one save.
type cascadePayload map[string]any

// stash moves the cascade-eligible fields out of attrs.
func stash(sc *entity.Schema, attrs store.Record) cascadePayload {
	payload := cascadePayload{}
	for _, name := range sc.Cascade {
		if v, ok := attrs[name]; ok {
			payload[name] = v
			delete(attrs, name)
		}
	}
	return payload
}

// save inserts attrs, or updates the row matching where, then replays the
// relation payloads inside the same transaction.
func (h *Handler) save(ctx context.Context, tx store.Tx, sc *entity.Schema, where, attrs store.Record) (store.Record, error) {
	attrs = attrs.Clone()
	payload := stash(sc, attrs)

	var rec store.Record
	var err error
	if where == nil {
		rec, err = tx.Insert(ctx, sc, attrs)
	} else {
		rec, err = tx.Update(ctx, sc, where, attrs)
	}
	if err != nil {
		return nil, err
	}

	if err := h.replay(ctx, tx, sc, rec, payload); err != nil {
		return nil, err
	}
	return rec, nil
}

// replay writes relation payloads in declaration order. Relations are
// written one after the other; entries in submission order.
func (h *Handler) replay(ctx context.Context, tx store.Tx, sc *entity.Schema, parent store.Record, payload cascadePayload) error {
	for _, name := range sc.Cascade {
		raw, ok := payload[name]
		if !ok {
			continue
		}
		entries, err := entriesOf(name, raw)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			continue
		}

		rel, ok := sc.Relation(name)
		if !ok {
			return fmt.Errorf("%w: %s.%s", store.ErrUnknownRelation, sc.Name, name)
		}
		related, err := h.registry.Resolve(rel.Related)
		if err != nil {
			return err
		}

		h.logger.Debug("cascade",
			zap.String("collection", sc.Name),
			zap.String("relation", name),
			zap.Int("entries", len(entries)),
		)

		switch rel.Kind {
		case entity.ManyToMany:
			err = h.syncMany(ctx, tx, sc, rel, related, parent, entries)
		case entity.OneToMany:
			err = h.fillMany(ctx, tx, sc, rel, related, parent, entries)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// entriesOf reads a relation payload. Absent-like values (null, "", false)
// and empty arrays replay nothing.
func entriesOf(relation string, raw any) ([]any, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
	case bool:
		if !v {
			return nil, nil
		}
	case []any:
		return v, nil
	}
	return nil, newError(KindInvalidPayload, fmt.Sprintf("%s: expected an array", relation))
}

// syncMany replaces the association set with the payload ids. An entry is
// either a bare id or an object carrying the related primary key.
func (h *Handler) syncMany(ctx context.Context, tx store.Tx, sc *entity.Schema, rel *entity.Relation, related *entity.Schema, parent store.Record, entries []any) error {
	ids := make([]any, 0, len(entries))
	for i, e := range entries {
		switch v := e.(type) {
		case map[string]any:
			id, ok := v[related.PrimaryKey]
			if !ok || id == nil {
				return newError(KindInvalidPayload, fmt.Sprintf("%s[%d]: missing %s", rel.Name, i, related.PrimaryKey))
			}
			ids = append(ids, id)
		case []any, nil:
			return newError(KindInvalidPayload, fmt.Sprintf("%s[%d]: expected an id or an object", rel.Name, i))
		default:
			ids = append(ids, v)
		}
	}

	if err := tx.Sync(ctx, sc, rel, parent[sc.PrimaryKey], ids); err != nil {
		return fmt.Errorf("sync %s.%s: %w", sc.Name, rel.Name, err)
	}
	metrics.CascadeWrites.WithLabelValues(sc.Name, rel.Name, "sync").Inc()
	return nil
}

// fillMany creates or updates owned related rows. Rows missing from the
// payload are left untouched.
func (h *Handler) fillMany(ctx context.Context, tx store.Tx, sc *entity.Schema, rel *entity.Relation, related *entity.Schema, parent store.Record, entries []any) error {
	parentKey := parent[rel.LocalKeyOf(sc)]
	for i, e := range entries {
		obj, ok := e.(map[string]any)
		if !ok {
			return newError(KindInvalidPayload, fmt.Sprintf("%s[%d]: expected an object", rel.Name, i))
		}

		var op string
		var err error
		if len(rel.CompositeKey) > 0 {
			op, err = upsertByCompositeKey(ctx, tx, rel, related, parentKey, obj)
		} else {
			op, err = upsertByKey(ctx, tx, rel, related, parentKey, obj)
		}
		if err != nil {
			return fmt.Errorf("%s.%s[%d]: %w", sc.Name, rel.Name, i, err)
		}
		metrics.CascadeWrites.WithLabelValues(sc.Name, rel.Name, op).Inc()
	}
	return nil
}

func upsertByCompositeKey(ctx context.Context, tx store.Tx, rel *entity.Relation, related *entity.Schema, parentKey any, obj map[string]any) (string, error) {
	attrs := fill(related, obj, rel.CompositeKey...)
	attrs[rel.ForeignKey] = parentKey

	where := make(store.Record, len(rel.CompositeKey))
	q := tx.Query(related)
	for _, field := range rel.CompositeKey {
		v := attrs[field]
		if isEmptyKey(v) {
			return "", newError(KindEmptyCompositeKey, fmt.Sprintf("composite key field %q of %s is empty", field, related.Name))
		}
		where[field] = v
		q.Where(field, store.OpEq, v)
	}

	_, err := q.First(ctx)
	switch {
	case err == nil:
		if _, err := tx.Update(ctx, related, where, attrs); err != nil {
			return "", err
		}
		return "update", nil
	case errors.Is(err, store.ErrNotFound):
		if _, err := tx.Insert(ctx, related, attrs); err != nil {
			return "", err
		}
		return "create", nil
	}
	return "", err
}

func upsertByKey(ctx context.Context, tx store.Tx, rel *entity.Relation, related *entity.Schema, parentKey any, obj map[string]any) (string, error) {
	pk := related.PrimaryKey
	key := obj[pk]

	attrs := fill(related, obj)
	delete(attrs, pk)
	attrs[rel.ForeignKey] = parentKey

	if isEmptyKey(key) {
		if _, err := tx.Insert(ctx, related, attrs); err != nil {
			return "", err
		}
		return "create", nil
	}

	if _, err := tx.FindByKey(ctx, related, key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", wrapError(KindNotFound, fmt.Sprintf("%s %v not found", related.Name, key), err)
		}
		return "", err
	}
	if _, err := tx.Update(ctx, related, store.Record{pk: key}, attrs); err != nil {
		return "", err
	}
	return "update", nil
}

// isEmptyKey reports whether a key value counts as absent: null, an empty
// string or zero.
func isEmptyKey(v any) bool {
	switch k := v.(type) {
	case nil:
		return true
	case string:
		return k == ""
	case int64:
		return k == 0
	case int:
		return k == 0
	case float64:
		return k == 0
	}
	return false
}
