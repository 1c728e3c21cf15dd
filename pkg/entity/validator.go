package entity

import (
	"context"
	"strings"
)

// Operation names the write a validator runs for.
type Operation string

const (
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
)

// Validator checks a write payload before it reaches the store.
type Validator interface {
	Validate(ctx context.Context, op Operation, payload map[string]any) error
}

// FieldError describes one rejected field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned by validators when a payload is rejected.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Field + ": " + f.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// RequiredFields rejects creates missing any of the listed fields, and
// updates that set one of them to null or an empty string.
type RequiredFields []string

func (r RequiredFields) Validate(_ context.Context, op Operation, payload map[string]any) error {
	var fields []FieldError
	for _, name := range r {
		v, present := payload[name]
		switch {
		case !present && op == OpCreate:
			fields = append(fields, FieldError{Field: name, Message: "is required"})
		case present && isBlank(v):
			fields = append(fields, FieldError{Field: name, Message: "must not be empty"})
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(ctx context.Context, op Operation, payload map[string]any) error

func (f ValidatorFunc) Validate(ctx context.Context, op Operation, payload map[string]any) error {
	return f(ctx, op, payload)
}
