// Package validation holds the input rules a subscription must pass before it
// reaches storage.
package validation

import (
	"strings"

	"github.com/rivo/uniseg"
)

// MaxNameLength is counted in grapheme clusters, not bytes or runes.
const MaxNameLength = 256

// ForbiddenNameCharacters may not appear anywhere in a name.
const ForbiddenNameCharacters = `/()"<>\{}`

// ValidName reports whether name is acceptable as a subscriber's display name.
func ValidName(name string) bool {
	return !(isEmptyOrWhitespace(name) || isTooLong(name) || containsForbiddenChars(name))
}

func isEmptyOrWhitespace(value string) bool {
	return strings.TrimSpace(value) == ""
}

func isTooLong(value string) bool {
	// cheap bound first: a cluster is at least one byte
	if len(value) <= MaxNameLength {
		return false
	}
	return uniseg.GraphemeClusterCount(value) > MaxNameLength
}

func containsForbiddenChars(value string) bool {
	return strings.ContainsAny(value, ForbiddenNameCharacters)
}
