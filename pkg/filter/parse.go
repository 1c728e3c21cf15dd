package filter

import (
	"regexp"
	"strings"
)

// Method selects the storage primitive a Predicate maps to.
type Method int

const (
	MethodEquals Method = iota
	MethodNotEquals
	MethodIn
	MethodNotIn
	MethodIsNull
	MethodIsNotNull
	MethodRange
	MethodSearch
)

func (m Method) String() string {
	switch m {
	case MethodEquals:
		return "equals"
	case MethodNotEquals:
		return "notEquals"
	case MethodIn:
		return "in"
	case MethodNotIn:
		return "notIn"
	case MethodIsNull:
		return "isNull"
	case MethodIsNotNull:
		return "isNotNull"
	case MethodRange:
		return "rangeOp"
	case MethodSearch:
		return "search"
	default:
		return "unknown"
	}
}

// SearchField is the reserved key for free-text search.
const SearchField = "q"

// Predicate is one filter condition built from a single query parameter.
// Values is set instead of Value for set membership and list-bound
// comparators.
type Predicate struct {
	Field    string
	Method   Method
	Operator string
	Value    Value
	Values   []Value
}

// Operands returns the native operand(s): a single value or a []any.
func (p Predicate) Operands() any {
	if p.Values != nil {
		out := make([]any, len(p.Values))
		for i, v := range p.Values {
			out[i] = v.Data
		}
		return out
	}
	return p.Value.Data
}

// key[negation][operator value]
var expression = regexp.MustCompile(`^(!?[^><!=:]+)(?:=?([><]=?|!?=|:.+=)(.+))?$`)

// comparators accepted in the field:op=value form
var namedComparators = map[string]bool{
	"=": true, "<>": true, "!=": true,
	"<": true, "<=": true, ">": true, ">=": true,
	"like": true, "ilike": true, "not like": true, "not ilike": true,
	"between": true, "not between": true,
	"in": true, "not in": true,
}

// Parse turns one query parameter into a Predicate. It returns nil when the
// pair does not match the grammar; callers skip such parameters.
func Parse(key, raw string) *Predicate {
	expr := key
	if raw != "" {
		expr = key + "=" + raw
	}
	m := expression.FindStringSubmatch(expr)
	if m == nil {
		return nil
	}
	field, op, val := m[1], m[2], m[3]
	field, negField := stripNegation(field)

	if op == "" {
		if negField {
			return &Predicate{Field: field, Method: MethodIsNull}
		}
		return &Predicate{Field: field, Method: MethodIsNotNull}
	}

	if field == SearchField {
		if op != "=" || negField {
			return nil
		}
		return &Predicate{Field: field, Method: MethodSearch, Value: Value{Kind: KindString, Data: val}}
	}

	switch {
	case op == "=" && val == "!":
		return &Predicate{Field: field, Method: MethodIsNull}

	case op == "=" || op == "!=":
		negated := op == "!="
		if op == "=" && strings.HasPrefix(val, "!") {
			negated = true
			val = val[1:]
		}
		if negField {
			negated = !negated
		}
		tokens := coerceTokens(val)
		switch {
		case len(tokens) == 0:
			return nil
		case len(tokens) > 1:
			values := make([]Value, len(tokens))
			for i, t := range tokens {
				values[i] = t.value
			}
			if negated {
				return &Predicate{Field: field, Method: MethodNotIn, Operator: "not in", Values: values}
			}
			return &Predicate{Field: field, Method: MethodIn, Operator: "in", Values: values}
		}
		if tokens[0].negated {
			negated = true
		}
		if negated {
			return &Predicate{Field: field, Method: MethodNotEquals, Operator: "<>", Value: tokens[0].value}
		}
		return &Predicate{Field: field, Method: MethodEquals, Operator: "=", Value: tokens[0].value}

	case op[0] == ':' && op[len(op)-1] == '=':
		name := strings.ToLower(strings.TrimSpace(op[1 : len(op)-1]))
		if !namedComparators[name] {
			return nil
		}
		parts := strings.Split(val, ",")
		values := make([]Value, 0, len(parts))
		for _, part := range parts {
			s, _ := stripNegation(part)
			values = append(values, Coerce(s))
		}
		if strings.HasSuffix(name, "between") && len(values) != 2 {
			return nil
		}
		p := &Predicate{Field: field, Method: MethodRange, Operator: name}
		if len(values) == 1 {
			p.Value = values[0]
		} else {
			p.Values = values
		}
		return p

	default:
		s, _ := stripNegation(val)
		return &Predicate{Field: field, Method: MethodRange, Operator: op, Value: Coerce(s)}
	}
}
