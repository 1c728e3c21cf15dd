package rest

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/edgeflare/pgcrud/pkg/filter"
	"github.com/edgeflare/pgcrud/pkg/store"
)

// Param is one query-string parameter.
type Param struct {
	Key   string
	Value string
}

// Params are query-string parameters in first-occurrence order. A repeated
// key keeps its first position and takes its last value.
type Params []Param

// ParseParams splits a raw query string. Keys and values that are not valid
// percent-encoding are kept verbatim.
func ParseParams(rawQuery string) Params {
	var params Params
	index := make(map[string]int)
	for pair := range strings.SplitSeq(rawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key, value = unescape(key), unescape(value)
		if i, ok := index[key]; ok {
			params[i].Value = value
			continue
		}
		index[key] = len(params)
		params = append(params, Param{Key: key, Value: value})
	}
	return params
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// Get returns the value of key.
func (p Params) Get(key string) (string, bool) {
	for _, param := range p {
		if param.Key == key {
			return param.Value, true
		}
	}
	return "", false
}

// reserved parameters are consumed by dedicated steps, never as filters
var reservedParams = []string{"with", "include", "page", "limit", "count", "sort", "order"}

func isReservedParam(key string) bool {
	return slices.Contains(reservedParams, key)
}

const defaultPageSize = 20

// QueryParams is the query plan requested through the query string.
type QueryParams struct {
	With       []string
	Predicates []filter.Predicate
	Order      []store.Order
	Page       int // 0 when no page was requested
	PageSize   int
}

// ParseQueryParams builds the query plan from params. Malformed filters
// are skipped.
func ParseQueryParams(params Params) QueryParams {
	var qp QueryParams

	if with, ok := params.Get("with"); ok {
		for rel := range strings.SplitSeq(with, ",") {
			if rel = strings.TrimSpace(rel); rel != "" {
				qp.With = append(qp.With, rel)
			}
		}
	}

	// include=Model:rel->sub is the legacy spelling of with=rel.sub
	if include, ok := params.Get("include"); ok {
		for entry := range strings.SplitSeq(include, ",") {
			_, rel, found := strings.Cut(entry, ":")
			if !found {
				rel = entry
			}
			if rel = strings.TrimSpace(strings.ReplaceAll(rel, "->", ".")); rel != "" {
				qp.With = append(qp.With, rel)
			}
		}
	}

	for _, p := range params {
		if isReservedParam(p.Key) {
			continue
		}
		if pred := filter.Parse(p.Key, p.Value); pred != nil {
			qp.Predicates = append(qp.Predicates, *pred)
		}
	}

	order, ok := params.Get("order")
	if !ok || order == "" {
		order, _ = params.Get("sort")
	}
	if order != "" {
		qp.Order = parseOrderParam(order)
	}

	if page, ok := params.Get("page"); ok && page != "" {
		qp.Page = parseIntParam(page, 1)
		size, ok := params.Get("count")
		if !ok || size == "" {
			size, _ = params.Get("limit")
		}
		qp.PageSize = parseIntParam(size, defaultPageSize)
	}

	return qp
}

// parseIntParam returns the positive integer in s, or def.
func parseIntParam(s string, def int) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return def
	}
	return n
}

type assembly int

const (
	assembleList assembly = iota
	assembleRetrieve
	assembleCount
)

// assemble applies the plan to q. Retrieval skips ordering and pagination;
// counting also skips eager loading.
func assemble(q *store.Query, qp QueryParams, mode assembly) *store.Query {
	if mode != assembleCount {
		for _, rel := range qp.With {
			q.With(rel)
		}
	}

	for _, p := range qp.Predicates {
		applyPredicate(q, p)
	}

	if mode != assembleList {
		return q
	}
	for _, o := range qp.Order {
		if q.Schema.HasColumn(o.Field) {
			q.OrderBy(o.Field, o.Desc)
		}
	}
	if qp.Page > 0 {
		q.ForPage(qp.Page, qp.PageSize)
	}
	return q
}

func applyPredicate(q *store.Query, p filter.Predicate) {
	if p.Method == filter.MethodSearch {
		term, _ := p.Value.Data.(string)
		q.WhereAnyLike(q.Schema.Search, "%"+term+"%")
		return
	}
	if !q.Schema.HasColumn(p.Field) {
		return
	}

	switch p.Method {
	case filter.MethodEquals:
		q.Where(p.Field, store.OpEq, p.Value.Data)
	case filter.MethodNotEquals:
		q.Where(p.Field, store.OpNe, p.Value.Data)
	case filter.MethodIn:
		q.WhereIn(p.Field, operandList(p))
	case filter.MethodNotIn:
		q.WhereNotIn(p.Field, operandList(p))
	case filter.MethodIsNull:
		q.WhereNull(p.Field)
	case filter.MethodIsNotNull:
		q.WhereNotNull(p.Field)
	case filter.MethodRange:
		if p.Values != nil && !takesList(p.Operator) {
			return
		}
		q.Where(p.Field, p.Operator, p.Operands())
	}
}

func operandList(p filter.Predicate) []any {
	if list, ok := p.Operands().([]any); ok {
		return list
	}
	return []any{p.Value.Data}
}

func takesList(op string) bool {
	switch op {
	case store.OpIn, store.OpNotIn, store.OpBetween, store.OpNotBetween:
		return true
	}
	return false
}
