package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/edgeflare/pgcrud/pkg/entity"
	"github.com/edgeflare/pgcrud/pkg/httputil"
)

// Server adapts a Handler to HTTP. Collections are served at
// {baseURL}/{collection}[/{id|count}].
type Server struct {
	handler *Handler
	baseURL string
}

func NewServer(handler *Handler, baseURL string) *Server {
	return &Server{
		handler: handler,
		baseURL: "/" + strings.Trim(baseURL, "/"),
	}
}

// Pattern is the route the server answers on, for every method.
func (s *Server) Pattern() string {
	return strings.TrimSuffix(s.baseURL, "/") + "/"
}

// Register mounts the server on router.
func (s *Server) Register(router *httputil.Router) {
	router.Handle(s.Pattern(), s)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, strings.TrimSuffix(s.baseURL, "/"))
	path = strings.Trim(path, "/")
	if path == "" {
		if r.Method != http.MethodGet {
			s.writeError(w, newError(KindMethodNotAllowed, "method not allowed"))
			return
		}
		httputil.JSON(w, http.StatusOK, map[string][]string{"collections": s.handler.registry.Names()})
		return
	}

	// segments after the selector are ignored
	parts := strings.Split(path, "/")
	collection, selector := parts[0], ""
	if len(parts) > 1 {
		selector = parts[1]
	}

	req, err := NewRequest(s.handler.registry, r.Method, collection, selector, r.URL.RawQuery, WithPrefer(parsePrefer(r)))
	if err != nil {
		s.writeError(w, err)
		return
	}

	if req.Action == ActionCreate || req.Action == ActionUpdate {
		body, err := decodeBody(r)
		if err != nil {
			s.writeError(w, err)
			return
		}
		req.Body = body
	}

	res, err := s.handler.Dispatch(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeResult(w, req, res)
}

func (s *Server) writeResult(w http.ResponseWriter, req Request, res *Result) {
	switch res.Action {
	case ActionList:
		if res.Total >= 0 {
			w.Header().Set("Content-Range", contentRange(res.Offset, len(res.Records), res.Total))
		}
		httputil.JSON(w, http.StatusOK, res.Records)
	case ActionCount:
		httputil.JSON(w, http.StatusOK, map[string]int64{"count": res.Count})
	case ActionRetrieve:
		httputil.JSON(w, http.StatusOK, res.Record)
	default:
		if req.Prefer.WantsMinimal() {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		status := http.StatusOK
		if res.Action == ActionCreate {
			status = http.StatusCreated
		}
		httputil.JSON(w, status, res.Record)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := KindOf(err)
	resp := httputil.ErrorResponse{
		Code:    kind.Status(),
		Kind:    string(kind),
		Message: publicMessage(err),
	}
	var ve *entity.ValidationError
	if errors.As(err, &ve) {
		resp.Details = ve.Fields
	}
	httputil.JSON(w, resp.Code, resp)
}

// contentRange formats a Content-Range value for rows starting at offset.
func contentRange(offset, n int, total int64) string {
	if n == 0 {
		return fmt.Sprintf("*/%d", total)
	}
	return fmt.Sprintf("%d-%d/%d", offset, offset+n-1, total)
}

// decodeBody reads a JSON object. Integral numbers decode as int64, others
// as float64.
func decodeBody(r *http.Request) (map[string]any, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		return nil, wrapError(KindInvalidPayload, "request body must be a JSON object", err)
	}
	if body == nil {
		return nil, newError(KindInvalidPayload, "request body must be a JSON object")
	}
	return normalizeNumbers(body).(map[string]any), nil
}

func normalizeNumbers(v any) any {
	switch x := v.(type) {
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		for k, val := range x {
			x[k] = normalizeNumbers(val)
		}
		return x
	case []any:
		for i, val := range x {
			x[i] = normalizeNumbers(val)
		}
		return x
	}
	return v
}
