package cache

import (
	"strings"
	"time"
)

// Key builds a cache key by joining a prefix and parts with colons.
// Empty parts are skipped.
//
//	cache.Key("history", from, to) // "history:2015-06-12T15:00:00Z:2015-06-12T16:00:00Z"
func Key(prefix string, parts ...string) string {
	filtered := make([]string, 0, len(parts)+1)
	if prefix != "" {
		filtered = append(filtered, prefix)
	}
	for _, part := range parts {
		if part != "" {
			filtered = append(filtered, part)
		}
	}
	return strings.Join(filtered, ":")
}

// TimeKey formats t with its zone offset and full precision for use as a key part.
func TimeKey(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
