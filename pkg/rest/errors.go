package rest

import (
	"errors"
	"net/http"

	"github.com/edgeflare/pgcrud/pkg/entity"
	"github.com/edgeflare/pgcrud/pkg/store"
)

// Kind is the stable, machine-readable name of a failure.
type Kind string

const (
	KindMethodNotAllowed   Kind = "METHOD_NOT_ALLOWED"
	KindNotFound           Kind = "NOT_FOUND"
	KindCollectionNotFound Kind = "COLLECTION_NOT_FOUND"
	KindEmptyCompositeKey  Kind = "EMPTY_COMPOSITE_KEY"
	KindInvalidPayload     Kind = "INVALID_PAYLOAD"
	KindInvalidQuery       Kind = "INVALID_QUERY"
	KindValidationFailed   Kind = "VALIDATION_FAILED"
	KindInternal           Kind = "INTERNAL"
)

// Status returns the HTTP status a failure of this kind maps to.
func (k Kind) Status() int {
	switch k {
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindNotFound, KindCollectionNotFound:
		return http.StatusNotFound
	case KindEmptyCompositeKey, KindInvalidPayload, KindInvalidQuery:
		return http.StatusBadRequest
	case KindValidationFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// Error is a failure raised by dispatch, CRUD or cascade handling.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf classifies err. Storage failures that carry no known sentinel are
// INTERNAL.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var ve *entity.ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidationFailed
	case errors.Is(err, entity.ErrCollectionNotFound):
		return KindCollectionNotFound
	case errors.Is(err, store.ErrNotFound):
		return KindNotFound
	case errors.Is(err, store.ErrUnknownRelation):
		return KindInvalidQuery
	}
	return KindInternal
}

// publicMessage is the message shown to callers. Internal failures are not
// described.
func publicMessage(err error) string {
	switch KindOf(err) {
	case KindInternal:
		return "internal error"
	case KindNotFound:
		var e *Error
		if errors.As(err, &e) {
			return e.Message
		}
		return "record not found"
	}
	return err.Error()
}
