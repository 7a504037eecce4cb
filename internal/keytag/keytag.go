// Package keytag prefixes key values with their entity type so several types
// can share one table.
package keytag

import (
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// Tag returns raw prefixed with entity and delim. Every value is prefixed,
// including values that already look tagged, so Strip always recovers raw.
func Tag(entity, delim string, raw any) string {
	return entity + delim + cast.ToString(raw)
}

// Strip removes the entity prefix from a tagged key. It reports false when
// tagged does not carry the prefix.
func Strip(entity, delim, tagged string) (string, bool) {
	return strings.CutPrefix(tagged, entity+delim)
}

// Placeholder returns a collision-free expression placeholder name starting
// with prefix (e.g. "#" or ":").
func Placeholder(prefix, label string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return prefix + label + "_" + id
}
