package memory

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/edgeflare/pgcrud/pkg/filter"
)

// normalize maps a value onto a small set of comparable Go types: nil,
// float64, time.Time, bool or string.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case uint:
		return float64(x)
	case uint64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case json.Number:
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case time.Time:
		return x.UTC()
	case bool:
		return x
	case string:
		return x
	case filter.Regex:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02", "2006-01"}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// compare orders a against b. ok is false when the values are not
// comparable, including when either is nil.
func compare(a, b any) (c int, ok bool) {
	na, nb := normalize(a), normalize(b)
	if na == nil || nb == nil {
		return 0, false
	}
	switch x := na.(type) {
	case float64:
		switch y := nb.(type) {
		case float64:
			return cmpFloat(x, y), true
		case string:
			if f, err := strconv.ParseFloat(y, 64); err == nil {
				return cmpFloat(x, f), true
			}
		}
	case time.Time:
		switch y := nb.(type) {
		case time.Time:
			return x.Compare(y), true
		case string:
			if t, ok := parseTime(y); ok {
				return x.Compare(t), true
			}
		}
	case bool:
		switch y := nb.(type) {
		case bool:
			return cmpBool(x, y), true
		case string:
			if b, err := strconv.ParseBool(y); err == nil {
				return cmpBool(x, b), true
			}
		}
	case string:
		switch y := nb.(type) {
		case string:
			return strings.Compare(x, y), true
		default:
			c, ok := compare(nb, na)
			return -c, ok
		}
	}
	return 0, false
}

func equal(a, b any) bool {
	c, ok := compare(a, b)
	return ok && c == 0
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// likePattern translates a SQL LIKE pattern into an anchored regexp.
func likePattern(pattern string, fold bool) (*regexp.Regexp, error) {
	var b strings.Builder
	if fold {
		b.WriteString("(?i)")
	}
	b.WriteString("^")
	escaped := false
	for _, r := range pattern {
		switch {
		case escaped:
			b.WriteString(regexp.QuoteMeta(string(r)))
			escaped = false
		case r == '\\':
			escaped = true
		case r == '%':
			b.WriteString(".*")
		case r == '_':
			b.WriteString(".")
		default:
			b.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	b.WriteString("$")
	return regexp.Compile(b.String())
}

func regexMatch(re filter.Regex, v any) (bool, error) {
	expr := re.Pattern
	if re.CaseInsensitive() {
		expr = "(?i)" + expr
	}
	compiled, err := regexp.Compile(expr)
	if err != nil {
		return false, fmt.Errorf("invalid regular expression %q: %w", re.Pattern, err)
	}
	return compiled.MatchString(text(v)), nil
}

func text(v any) string {
	switch x := normalize(v).(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Time:
		return x.Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(x)
	}
}
