package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCoerce(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantKind Kind
		wantData any
	}{
		{name: "regex", raw: "/^ab+c$/", wantKind: KindRegex, wantData: Regex{Pattern: "^ab+c$"}},
		{name: "regex with flag", raw: "/foo/i", wantKind: KindRegex, wantData: Regex{Pattern: "foo", Flags: "i"}},
		{name: "double quoted", raw: `"true"`, wantKind: KindString, wantData: "true"},
		{name: "single quoted", raw: `'42'`, wantKind: KindString, wantData: "42"},
		{name: "escaped quote", raw: `"say \"hi\""`, wantKind: KindString, wantData: `say "hi"`},
		{name: "true", raw: "true", wantKind: KindBool, wantData: true},
		{name: "false", raw: "false", wantKind: KindBool, wantData: false},
		{name: "capitalized bool is string", raw: "True", wantKind: KindString, wantData: "True"},
		{name: "bare year is number", raw: "2024", wantKind: KindNumber, wantData: int64(2024)},
		{name: "integer", raw: "42", wantKind: KindNumber, wantData: int64(42)},
		{name: "negative integer", raw: "-7", wantKind: KindNumber, wantData: int64(-7)},
		{name: "float", raw: "3.25", wantKind: KindNumber, wantData: 3.25},
		{name: "exponent", raw: "1e3", wantKind: KindNumber, wantData: 1000.0},
		{name: "trailing zero decimal", raw: "1.50", wantKind: KindNumber, wantData: 1.5},
		{name: "inexact binary decimal", raw: "0.1", wantKind: KindNumber, wantData: 0.1},
		{name: "int64 overflow stays string", raw: "12345678901234567891", wantKind: KindString, wantData: "12345678901234567891"},
		{name: "too many significant digits", raw: "3.14159265358979323846", wantKind: KindString, wantData: "3.14159265358979323846"},
		{name: "infinity stays string", raw: "Inf", wantKind: KindString, wantData: "Inf"},
		{name: "plain string", raw: "active", wantKind: KindString, wantData: "active"},
		{name: "unbalanced quote", raw: `"abc`, wantKind: KindString, wantData: `"abc`},
		{name: "negation is not interpreted", raw: "!1", wantKind: KindString, wantData: "!1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Coerce(tt.raw)
			assert.Equal(t, tt.wantKind, v.Kind)
			assert.Equal(t, tt.wantData, v.Data)
		})
	}
}

func TestCoerceDate(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{raw: "2024-03", want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{raw: "2024-03-15", want: time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)},
		{raw: "2024-03-15T10:30Z", want: time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)},
		{raw: "2024-03-15T10:30:45Z", want: time.Date(2024, 3, 15, 10, 30, 45, 0, time.UTC)},
		{raw: "2024-03-15T10:30:45.5Z", want: time.Date(2024, 3, 15, 10, 30, 45, 500000000, time.UTC)},
		{raw: "2024-03-15T10:30:45+02:00", want: time.Date(2024, 3, 15, 8, 30, 45, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			v := Coerce(tt.raw)
			require.Equal(t, KindDate, v.Kind)
			got, ok := v.Data.(time.Time)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}

	t.Run("time without zone is not a date", func(t *testing.T) {
		assert.Equal(t, KindString, Coerce("2024-03-15T10:30").Kind)
	})
	t.Run("invalid month is not a date", func(t *testing.T) {
		assert.NotEqual(t, KindDate, Coerce("2024-13-01").Kind)
	})
}

func TestCoerceCanonicalFormKeepsKind(t *testing.T) {
	for _, raw := range []string{"true", "false", "12", "-3.5", `"x,y"`, `'true'`, "2024-01-02", "2024-01-02T03:04:05Z", "/a.c/i"} {
		t.Run(raw, func(t *testing.T) {
			first := Coerce(raw)
			again := Coerce(first.String())
			assert.Equal(t, first.Kind, again.Kind)
		})
	}
}

func TestCoerceList(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want []any
	}{
		{name: "numbers", raw: "1,2,3", want: []any{int64(1), int64(2), int64(3)}},
		{name: "mixed", raw: "a,true,2024-01-02", want: []any{"a", true, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)}},
		{name: "quoted commas", raw: `"a,b",'c,d',e`, want: []any{"a,b", "c,d", "e"}},
		{name: "empty segments dropped", raw: "a,,b", want: []any{"a", "b"}},
		{name: "negation stripped", raw: "!a,b", want: []any{"a", "b"}},
		{name: "single", raw: "x", want: []any{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := CoerceList(tt.raw)
			got := make([]any, len(values))
			for i, v := range values {
				got[i] = v.Data
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
