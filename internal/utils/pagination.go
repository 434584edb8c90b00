// Package utils holds tiny helpers shared across layers with no domain
// knowledge of their own.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or not
// a valid integer. Handlers use it for page and page_size query params.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
