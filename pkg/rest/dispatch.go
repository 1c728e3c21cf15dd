package rest

import (
	"net/http"
	"strings"

	"github.com/edgeflare/pgcrud/pkg/entity"
	"github.com/edgeflare/pgcrud/pkg/store"
)

// Action is the CRUD operation a request dispatches to.
type Action string

const (
	ActionList     Action = "list"
	ActionRetrieve Action = "retrieve"
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionCount    Action = "count"
)

// reserved path tokens and the aggregate they dispatch to; a token mapped
// to "" is reserved without an aggregate
var reservedVerbs = map[string]Action{
	"count": ActionCount,
}

// Selector is the path segment following the collection. It is either
// absent, an identifier or a reserved verb, never both.
type Selector struct {
	ID   string
	Verb string
}

// ParseSelector classifies the first path segment after the collection.
func ParseSelector(segment string) Selector {
	switch {
	case segment == "":
		return Selector{}
	case isReservedVerb(segment):
		return Selector{Verb: segment}
	}
	return Selector{ID: segment}
}

func isReservedVerb(s string) bool {
	_, ok := reservedVerbs[s]
	return ok
}

func (s Selector) HasReservedVerb() bool { return s.Verb != "" }
func (s Selector) HasIdentifier() bool   { return s.ID != "" }

// Route selects the action for a selector and HTTP method.
func Route(sel Selector, method string) (Action, error) {
	method = strings.ToUpper(method)
	switch {
	case sel.HasReservedVerb():
		if action := reservedVerbs[sel.Verb]; action != "" {
			return action, nil
		}
	case sel.HasIdentifier():
		switch method {
		case http.MethodGet:
			return ActionRetrieve, nil
		case http.MethodPut:
			return ActionUpdate, nil
		case http.MethodDelete:
			return ActionDelete, nil
		}
	default:
		switch method {
		case http.MethodGet:
			return ActionList, nil
		case http.MethodPost:
			return ActionCreate, nil
		}
	}
	return "", newError(KindMethodNotAllowed, "method not allowed")
}

// Request is a resolved request. It is built once and passed by value
// through every stage.
type Request struct {
	Collection string
	Schema     *entity.Schema
	Selector   Selector
	Method     string
	Action     Action
	Params     Params
	Query      QueryParams
	Body       map[string]any
	Prefer     *Prefer
}

// RequestOption sets optional parts of a Request.
type RequestOption func(*Request)

// WithBody sets the decoded JSON payload of a create or update.
func WithBody(body map[string]any) RequestOption {
	return func(r *Request) { r.Body = body }
}

// WithPrefer sets the parsed Prefer header.
func WithPrefer(p *Prefer) RequestOption {
	return func(r *Request) { r.Prefer = p }
}

// NewRequest resolves the collection, classifies the selector and routes
// the method. rawQuery is the undecoded query string.
func NewRequest(resolver store.Resolver, method, collection, selector, rawQuery string, opts ...RequestOption) (Request, error) {
	sc, err := resolver.Resolve(collection)
	if err != nil {
		return Request{}, err
	}

	sel := ParseSelector(selector)
	action, err := Route(sel, method)
	if err != nil {
		return Request{}, err
	}

	params := ParseParams(rawQuery)
	req := Request{
		Collection: sc.Name,
		Schema:     sc,
		Selector:   sel,
		Method:     strings.ToUpper(method),
		Action:     action,
		Params:     params,
		Query:      ParseQueryParams(params),
	}
	for _, opt := range opts {
		opt(&req)
	}
	return req, nil
}
