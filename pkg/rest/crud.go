package rest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/edgeflare/pgcrud/pkg/entity"
	"github.com/edgeflare/pgcrud/pkg/events"
	"github.com/edgeflare/pgcrud/pkg/httputil"
	"github.com/edgeflare/pgcrud/pkg/metrics"
	"github.com/edgeflare/pgcrud/pkg/store"
	"go.uber.org/zap"
)

// Registry resolves collections and the validators registered for them.
type Registry interface {
	store.Resolver
	Validator(collection string) entity.Validator
	Names() []string
}

// Handler executes dispatched requests against a store.
type Handler struct {
	registry  Registry
	store     store.Store
	publisher events.Publisher
	logger    *zap.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) { h.logger = logger }
}

// WithPublisher sets where change events of committed writes go.
func WithPublisher(p events.Publisher) HandlerOption {
	return func(h *Handler) { h.publisher = p }
}

func NewHandler(registry Registry, st store.Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		registry:  registry,
		store:     st,
		publisher: events.Nop{},
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Result is the outcome of one dispatched request.
type Result struct {
	Action  Action
	Record  store.Record   // retrieve, create, update, delete
	Records []store.Record // list
	Count   int64          // count
	Offset  int            // list: rows skipped by pagination
	Total   int64          // list: exact total when requested, else -1
}

// Dispatch runs the CRUD operation req was routed to.
func (h *Handler) Dispatch(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	logger := h.requestLogger(ctx)
	logger.Debug("dispatch",
		zap.String("collection", req.Collection),
		zap.String("action", string(req.Action)),
		zap.String("id", req.Selector.ID),
	)

	var res *Result
	var err error
	switch req.Action {
	case ActionList:
		res, err = h.list(ctx, req)
	case ActionRetrieve:
		res, err = h.retrieve(ctx, req)
	case ActionCreate:
		res, err = h.create(ctx, req)
	case ActionUpdate:
		res, err = h.update(ctx, req)
	case ActionDelete:
		res, err = h.delete(ctx, req)
	case ActionCount:
		res, err = h.count(ctx, req)
	default:
		err = newError(KindMethodNotAllowed, "method not allowed")
	}

	kind := "OK"
	if err != nil {
		kind = string(KindOf(err))
		fields := []zap.Field{
			zap.String("collection", req.Collection),
			zap.String("action", string(req.Action)),
			zap.String("kind", kind),
			zap.Error(err),
		}
		if KindOf(err) == KindInternal {
			logger.Error("request failed", fields...)
		} else {
			logger.Warn("request failed", fields...)
		}
	}
	metrics.Requests.WithLabelValues(req.Collection, string(req.Action), kind).Inc()
	metrics.RequestDuration.WithLabelValues(req.Collection, string(req.Action)).Observe(time.Since(start).Seconds())
	return res, err
}

// requestLogger tags the handler logger with the request id, when the
// request carries one.
func (h *Handler) requestLogger(ctx context.Context) *zap.Logger {
	if id, ok := ctx.Value(httputil.RequestIDCtxKey).(string); ok && id != "" {
		return h.logger.With(zap.String("req_id", id))
	}
	return h.logger
}

func (h *Handler) list(ctx context.Context, req Request) (*Result, error) {
	q := assemble(h.store.Query(req.Schema), req.Query, assembleList)
	rows, err := q.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []store.Record{}
	}

	res := &Result{Action: ActionList, Records: rows, Offset: q.Offset(), Total: -1}
	if req.Prefer.WantsCountExact() {
		total, err := assemble(h.store.Query(req.Schema), req.Query, assembleCount).Count(ctx)
		if err != nil {
			return nil, err
		}
		res.Total = total
	}
	return res, nil
}

func (h *Handler) retrieve(ctx context.Context, req Request) (*Result, error) {
	rec, err := h.findOne(ctx, req, req.Selector.ID)
	if err != nil {
		return nil, err
	}
	return &Result{Action: ActionRetrieve, Record: rec}, nil
}

// findOne runs the retrieval pipeline for one primary key.
func (h *Handler) findOne(ctx context.Context, req Request, key any) (store.Record, error) {
	sc := req.Schema
	q := assemble(h.store.Query(sc), req.Query, assembleRetrieve).
		Where(sc.PrimaryKey, store.OpEq, key)
	rec, err := q.First(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, wrapError(KindNotFound, fmt.Sprintf("%s %v not found", sc.Name, key), err)
	}
	return rec, err
}

func (h *Handler) create(ctx context.Context, req Request) (*Result, error) {
	sc := req.Schema
	attrs := fill(sc, req.Body)
	if err := h.validate(ctx, req, entity.OpCreate, attrs); err != nil {
		return nil, err
	}

	var saved store.Record
	err := h.inTx(ctx, req, func(tx store.Tx) error {
		var err error
		saved, err = h.save(ctx, tx, sc, nil, attrs)
		return err
	})
	if err != nil {
		return nil, err
	}

	h.publish(ctx, events.New(events.OpCreate, sc.Name, saved[sc.PrimaryKey], nil, saved))
	return &Result{Action: ActionCreate, Record: saved}, nil
}

func (h *Handler) update(ctx context.Context, req Request) (*Result, error) {
	sc := req.Schema
	existing, err := h.findByKey(ctx, sc, req.Selector.ID)
	if err != nil {
		return nil, err
	}

	attrs := fill(sc, req.Body)
	if err := h.validate(ctx, req, entity.OpUpdate, attrs); err != nil {
		return nil, err
	}

	where := store.Record{sc.PrimaryKey: existing[sc.PrimaryKey]}
	var saved store.Record
	err = h.inTx(ctx, req, func(tx store.Tx) error {
		var err error
		saved, err = h.save(ctx, tx, sc, where, attrs)
		return err
	})
	if err != nil {
		return nil, err
	}

	h.publish(ctx, events.New(events.OpUpdate, sc.Name, saved[sc.PrimaryKey], existing, saved))

	rec, err := h.findOne(ctx, req, saved[sc.PrimaryKey])
	if err != nil {
		return nil, err
	}
	return &Result{Action: ActionUpdate, Record: rec}, nil
}

func (h *Handler) delete(ctx context.Context, req Request) (*Result, error) {
	sc := req.Schema
	existing, err := h.findByKey(ctx, sc, req.Selector.ID)
	if err != nil {
		return nil, err
	}

	err = h.inTx(ctx, req, func(tx store.Tx) error {
		return tx.Delete(ctx, sc, store.Record{sc.PrimaryKey: existing[sc.PrimaryKey]})
	})
	if err != nil {
		return nil, err
	}

	h.publish(ctx, events.New(events.OpDelete, sc.Name, existing[sc.PrimaryKey], existing, nil))
	return &Result{Action: ActionDelete, Record: existing}, nil
}

func (h *Handler) count(ctx context.Context, req Request) (*Result, error) {
	n, err := assemble(h.store.Query(req.Schema), req.Query, assembleCount).Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{Action: ActionCount, Count: n}, nil
}

func (h *Handler) findByKey(ctx context.Context, sc *entity.Schema, key any) (store.Record, error) {
	rec, err := h.store.FindByKey(ctx, sc, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, wrapError(KindNotFound, fmt.Sprintf("%s %v not found", sc.Name, key), err)
	}
	return rec, err
}

// inTx runs fn in a transaction. The transaction is committed only when fn
// succeeds and is rolled back on every other exit path.
func (h *Handler) inTx(ctx context.Context, req Request, fn func(store.Tx) error) (err error) {
	tx, err := h.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			h.rollback(ctx, req, tx)
			panic(p)
		}
		if err != nil {
			h.rollback(ctx, req, tx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (h *Handler) rollback(ctx context.Context, req Request, tx store.Tx) {
	metrics.TxRollbacks.WithLabelValues(req.Collection, string(req.Action)).Inc()
	if err := tx.Rollback(context.WithoutCancel(ctx)); err != nil {
		h.logger.Error("rollback transaction",
			zap.String("collection", req.Collection),
			zap.String("action", string(req.Action)),
			zap.Error(err),
		)
	}
}

func (h *Handler) validate(ctx context.Context, req Request, op entity.Operation, attrs store.Record) error {
	v := h.registry.Validator(req.Collection)
	if v == nil {
		return nil
	}
	err := v.Validate(ctx, op, attrs)
	if err == nil {
		return nil
	}
	var ve *entity.ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return wrapError(KindValidationFailed, "validation failed", err)
}

// publish sends a change event. The write is already committed, so
// failures are only logged and counted.
func (h *Handler) publish(ctx context.Context, e events.Event) {
	if err := h.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		metrics.PublishErrors.WithLabelValues(h.publisher.Name()).Inc()
		h.logger.Warn("publish change event",
			zap.String("collection", e.Collection),
			zap.String("op", string(e.Op)),
			zap.Error(err),
		)
	}
}

// fill copies the writable fields of payload, plus keep. Without an
// allow-list every payload field is copied.
func fill(sc *entity.Schema, payload map[string]any, keep ...string) store.Record {
	writable := sc.Writable()
	attrs := make(store.Record, len(payload))
	for k, v := range payload {
		if writable == nil || slices.Contains(writable, k) || slices.Contains(keep, k) {
			attrs[k] = v
		}
	}
	return attrs
}
