package rest

import (
	"net/http"
	"strings"
)

// Prefer holds preferences from the Prefer header (RFC 7240).
type Prefer struct {
	Return string // "minimal", "representation", "headers-only"
	Count  string // "exact", "planned", "estimated"
}

// parsePrefer parses the Prefer header according to RFC 7240.
// It returns nil if the header is not present.
func parsePrefer(r *http.Request) *Prefer {
	header := r.Header.Get("Prefer")
	if header == "" {
		return nil
	}

	// no default for return: mutations answer with a representation unless
	// the client asks otherwise
	p := &Prefer{}

	parseKeyValPairs(header, func(key, value string) {
		switch key {
		case "return":
			if isValidReturn(value) {
				p.Return = strings.ToLower(value)
			}
		case "count":
			if isValidCount(value) {
				p.Count = strings.ToLower(value)
			}
		}
	})

	return p
}

// parseKeyValPairs parses comma-separated preference directives.
// For each key=value pair found, it calls fn with the key and value.
func parseKeyValPairs(header string, fn func(key, value string)) {
	prefs := strings.SplitSeq(header, ",")
	for pref := range prefs {
		pref = strings.TrimSpace(pref)
		if key, value, found := strings.Cut(pref, "="); found {
			key = strings.TrimSpace(strings.ToLower(key))       // normalize case
			value = strings.Trim(strings.TrimSpace(value), `"`) // remove quotes
			fn(key, value)
		}
	}
}

// isValidReturn reports whether s is a valid return preference value.
func isValidReturn(s string) bool {
	s = strings.ToLower(s) // normalize case
	switch s {
	case "minimal", "representation", "headers-only":
		return true
	}
	return false
}

// isValidCount reports whether s is a valid count preference value.
func isValidCount(s string) bool {
	s = strings.ToLower(s) // normalize case
	switch s {
	case "exact", "planned", "estimated":
		return true
	}
	return false
}

// WantsMinimal reports whether the client asked for no response body on
// mutation operations.
func (p *Prefer) WantsMinimal() bool {
	return p != nil && (p.Return == "minimal" || p.Return == "headers-only")
}

// WantsCountExact reports whether the client wants an exact count in the response.
func (p *Prefer) WantsCountExact() bool {
	return p != nil && strings.ToLower(p.Count) == "exact"
}
