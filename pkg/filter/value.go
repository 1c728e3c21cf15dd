package filter

import (
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind tags the type a raw token was coerced into.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindDate
	KindRegex
)

func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindDate:
		return "date"
	case KindRegex:
		return "regex"
	default:
		return "string"
	}
}

// Regex is a /pattern/flags token. Only the "i" flag is honored by stores.
type Regex struct {
	Pattern string
	Flags   string
}

// CaseInsensitive reports whether the regex carries the "i" flag.
func (r Regex) CaseInsensitive() bool {
	return strings.Contains(r.Flags, "i")
}

func (r Regex) String() string {
	return "/" + r.Pattern + "/" + r.Flags
}

// Value is a typed filter operand. Data holds one of string, int64, float64,
// bool, time.Time or Regex depending on Kind.
type Value struct {
	Kind Kind
	Data any
}

// String returns the canonical token form of v; coercing it again yields the
// same Kind.
func (v Value) String() string {
	switch d := v.Data.(type) {
	case string:
		return `"` + strings.ReplaceAll(d, `"`, `\"`) + `"`
	case int64:
		return strconv.FormatInt(d, 10)
	case float64:
		return strconv.FormatFloat(d, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(d)
	case time.Time:
		return d.UTC().Format(time.RFC3339Nano)
	case Regex:
		return d.String()
	default:
		return ""
	}
}

var (
	regexToken = regexp.MustCompile(`^/(.*)/([a-z]*)$`)
	iso8601    = regexp.MustCompile(`^\d{4}(-(0[1-9]|1[0-2])(-(0[1-9]|[12][0-9]|3[01]))?)?(T([01][0-9]|2[0-3]):[0-5]\d(:[0-5]\d(\.\d+)?)?(Z|[+-]\d{2}:\d{2}))?$`)
	// quoted segments keep their commas
	listSegment = regexp.MustCompile(`("[^"]*")|('[^']*')|([^,]+)`)
)

// Coerce converts a raw token into a typed Value. Priority: regex, quoted
// string, boolean, ISO-8601 date (never a bare 4-digit token), number, string.
// A leading negation marker is not interpreted here.
func Coerce(raw string) Value {
	if m := regexToken.FindStringSubmatch(raw); m != nil {
		return Value{Kind: KindRegex, Data: Regex{Pattern: m[1], Flags: m[2]}}
	}
	if s, ok := unquote(raw); ok {
		return Value{Kind: KindString, Data: s}
	}
	switch raw {
	case "true":
		return Value{Kind: KindBool, Data: true}
	case "false":
		return Value{Kind: KindBool, Data: false}
	}
	if len(raw) != 4 && iso8601.MatchString(raw) {
		if t, err := parseISO8601(raw); err == nil {
			return Value{Kind: KindDate, Data: t}
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return Value{Kind: KindNumber, Data: n}
	}
	if f, ok := parseFloatExact(raw); ok {
		return Value{Kind: KindNumber, Data: f}
	}
	return Value{Kind: KindString, Data: raw}
}

// parseFloatExact accepts raw only when the shortest form of the parsed float
// denotes the same number, so a 20-digit id stays a string.
func parseFloatExact(raw string) (float64, bool) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	want, ok := new(big.Rat).SetString(raw)
	if !ok {
		return 0, false
	}
	got, ok := new(big.Rat).SetString(strconv.FormatFloat(f, 'g', -1, 64))
	if !ok || got.Cmp(want) != 0 {
		return 0, false
	}
	return f, true
}

// CoerceList splits raw on commas outside quote pairs and coerces every
// segment. Empty segments are dropped and a leading negation marker on a
// segment is removed.
func CoerceList(raw string) []Value {
	tokens := coerceTokens(raw)
	values := make([]Value, len(tokens))
	for i, t := range tokens {
		values[i] = t.value
	}
	return values
}

type token struct {
	value   Value
	negated bool
}

func coerceTokens(raw string) []token {
	segments := listSegment.FindAllString(raw, -1)
	tokens := make([]token, 0, len(segments))
	for _, seg := range segments {
		s, neg := stripNegation(seg)
		tokens = append(tokens, token{value: Coerce(s), negated: neg})
	}
	return tokens
}

func stripNegation(s string) (string, bool) {
	if strings.HasPrefix(s, "!") {
		return s[1:], true
	}
	return s, false
}

func unquote(s string) (string, bool) {
	if len(s) < 2 {
		return "", false
	}
	q := s[0]
	if (q != '"' && q != '\'') || s[len(s)-1] != q {
		return "", false
	}
	inner := s[1 : len(s)-1]
	return strings.ReplaceAll(inner, `\`+string(q), string(q)), true
}

// parseISO8601 handles the subset matched by iso8601. Values without a zone
// are UTC.
func parseISO8601(s string) (time.Time, error) {
	date, clock, hasClock := strings.Cut(s, "T")

	var layout string
	switch len(date) {
	case 4:
		layout = "2006"
	case 7:
		layout = "2006-01"
	default:
		layout = "2006-01-02"
	}
	if !hasClock {
		return time.ParseInLocation(layout, s, time.UTC)
	}

	layout += "T15:04"
	if len(clock) > 5 && clock[5] == ':' {
		layout += ":05"
	}
	layout += "Z07:00"
	return time.Parse(layout, s)
}
