// Package query normalises product search strings. A Query is the key for
// both price history and alerts; raw user input is converted exactly once,
// at the point it enters the process.
package query

import (
	"errors"
	"strings"
)

// ErrEmpty is returned by Parse when the input is blank after trimming.
var ErrEmpty = errors.New("query must not be empty")

// Query is a trimmed, lower-cased product search string.
type Query string

// Normalize trims surrounding whitespace and lower-cases raw.
func Normalize(raw string) Query {
	return Query(strings.ToLower(strings.TrimSpace(raw)))
}

// Parse normalises raw and rejects blank input.
func Parse(raw string) (Query, error) {
	q := Normalize(raw)
	if q == "" {
		return "", ErrEmpty
	}
	return q, nil
}

func (q Query) String() string {
	return string(q)
}
