package ids

import (
	"strings"

	"github.com/oklog/ulid/v2"
)

// New returns a lexicographically sortable identifier used for request and audit ids.
func New() string {
	return ulid.Make().String()
}

// NewRequestID returns an identifier prefixed for request correlation.
func NewRequestID() string {
	return "req-" + strings.ToLower(New())
}

// Valid reports whether s is a well-formed identifier produced by New.
func Valid(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
