package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		raw          string
		wantField    string
		wantMethod   Method
		wantOperator string
		wantOperands any
	}{
		{name: "presence", key: "deletedAt", wantField: "deletedAt", wantMethod: MethodIsNotNull},
		{name: "absence", key: "!deletedAt", wantField: "deletedAt", wantMethod: MethodIsNull},
		{name: "null by value", key: "deletedAt", raw: "!", wantField: "deletedAt", wantMethod: MethodIsNull},
		{name: "equals", key: "status", raw: "active", wantField: "status", wantMethod: MethodEquals, wantOperator: "=", wantOperands: "active"},
		{name: "equals number", key: "id", raw: "42", wantField: "id", wantMethod: MethodEquals, wantOperator: "=", wantOperands: int64(42)},
		{name: "not equals operator", key: "status!", raw: "active", wantField: "status", wantMethod: MethodNotEquals, wantOperator: "<>", wantOperands: "active"},
		{name: "negated value", key: "status", raw: "!active", wantField: "status", wantMethod: MethodNotEquals, wantOperator: "<>", wantOperands: "active"},
		{name: "negated field with value", key: "!status", raw: "active", wantField: "status", wantMethod: MethodNotEquals, wantOperator: "<>", wantOperands: "active"},
		{name: "in", key: "id", raw: "1,2,3", wantField: "id", wantMethod: MethodIn, wantOperator: "in", wantOperands: []any{int64(1), int64(2), int64(3)}},
		{name: "not in", key: "id!", raw: "1,2", wantField: "id", wantMethod: MethodNotIn, wantOperator: "not in", wantOperands: []any{int64(1), int64(2)}},
		{name: "negated list", key: "id", raw: "!1,2", wantField: "id", wantMethod: MethodNotIn, wantOperator: "not in", wantOperands: []any{int64(1), int64(2)}},
		{name: "quoted comma is one value", key: "name", raw: `"a,b"`, wantField: "name", wantMethod: MethodEquals, wantOperator: "=", wantOperands: "a,b"},
		{name: "greater than", key: "age>", raw: "18", wantField: "age", wantMethod: MethodRange, wantOperator: ">=", wantOperands: int64(18)},
		{name: "strictly greater", key: "age>18", wantField: "age", wantMethod: MethodRange, wantOperator: ">", wantOperands: int64(18)},
		{name: "less than or equal", key: "age<", raw: "65", wantField: "age", wantMethod: MethodRange, wantOperator: "<=", wantOperands: int64(65)},
		{name: "strictly less", key: "age<65", wantField: "age", wantMethod: MethodRange, wantOperator: "<", wantOperands: int64(65)},
		{name: "named comparator", key: "name:ilike", raw: "%jo%", wantField: "name", wantMethod: MethodRange, wantOperator: "ilike", wantOperands: "%jo%"},
		{name: "named comparator list", key: "price:between", raw: "1,5", wantField: "price", wantMethod: MethodRange, wantOperator: "between", wantOperands: []any{int64(1), int64(5)}},
		{name: "regex operand", key: "name", raw: "/^jo/i", wantField: "name", wantMethod: MethodEquals, wantOperator: "=", wantOperands: Regex{Pattern: "^jo", Flags: "i"}},
		{name: "search", key: "q", raw: "Widget", wantField: "q", wantMethod: MethodSearch, wantOperands: "Widget"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse(tt.key, tt.raw)
			require.NotNil(t, p)
			assert.Equal(t, tt.wantField, p.Field)
			assert.Equal(t, tt.wantMethod, p.Method, "method %s", p.Method)
			assert.Equal(t, tt.wantOperator, p.Operator)
			if tt.wantOperands != nil {
				assert.Equal(t, tt.wantOperands, p.Operands())
			}
		})
	}
}

func TestParseMalformed(t *testing.T) {
	tests := []struct {
		name string
		key  string
		raw  string
	}{
		{name: "empty key", key: "", raw: "x"},
		{name: "bare negation", key: "!"},
		{name: "unknown comparator", key: "name:drop table", raw: "x"},
		{name: "between needs two values", key: "price:between", raw: "1"},
		{name: "search without value", key: "q!", raw: "x"},
		{name: "only commas", key: "id", raw: ",,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Nil(t, Parse(tt.key, tt.raw))
		})
	}
}

func TestParsePresenceForAnyKey(t *testing.T) {
	for _, key := range []string{"a", "createdAt", "owner_id", "x1"} {
		p := Parse(key, "")
		require.NotNil(t, p)
		assert.Equal(t, MethodIsNotNull, p.Method)
		assert.Equal(t, key, p.Field)

		p = Parse("!"+key, "")
		require.NotNil(t, p)
		assert.Equal(t, MethodIsNull, p.Method)
		assert.Equal(t, key, p.Field)
	}
}

func TestParseListCardinality(t *testing.T) {
	tests := []struct {
		raw   string
		count int
	}{
		{raw: "a,b", count: 2},
		{raw: "1,2,3,4", count: 4},
		{raw: `"x,y",z`, count: 2},
		{raw: `'a,b','c,d','e'`, count: 3},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			in := Parse("f", tt.raw)
			require.NotNil(t, in)
			assert.Equal(t, MethodIn, in.Method)
			assert.Len(t, in.Values, tt.count)

			notIn := Parse("f!", tt.raw)
			require.NotNil(t, notIn)
			assert.Equal(t, MethodNotIn, notIn.Method)
			assert.Len(t, notIn.Values, tt.count)
		})
	}
}
