package rest

import (
	"strings"

	"github.com/edgeflare/pgcrud/pkg/store"
)

// parseOrderParam parses a comma-separated field list. A field is
// descending when prefixed with "-" or suffixed with ".desc"; ".asc" is
// accepted and is the default.
func parseOrderParam(order string) []store.Order {
	parts := strings.Split(order, ",")
	result := make([]store.Order, 0, len(parts))

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		desc := false
		if strings.HasPrefix(part, "-") {
			part = part[1:]
			desc = true
		}
		if strings.HasSuffix(part, ".desc") {
			part = strings.TrimSuffix(part, ".desc")
			desc = true
		} else if strings.HasSuffix(part, ".asc") {
			part = strings.TrimSuffix(part, ".asc")
		}
		if part == "" {
			continue
		}

		result = append(result, store.Order{Field: part, Desc: desc})
	}

	return result
}
