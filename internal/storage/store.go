// Package storage defines the object-store abstraction the media relay
// writes to and provides a local-disk implementation with HMAC-signed,
// time-limited access URLs. Paths are append-only from this subsystem's
// perspective: a stored object is never overwritten or reused.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a stored object does not exist.
var ErrNotFound = errors.New("storage: object not found")

// ErrBadSignature is returned when a signed URL fails verification or has
// expired.
var ErrBadSignature = errors.New("storage: invalid or expired signature")

// ObjectStore persists binary media and issues time-limited access locators.
type ObjectStore interface {
	// Put stores data under path with the given content type. Paths are
	// never reused; Put on an existing path is an error.
	Put(ctx context.Context, path string, data []byte, contentType string) error
	// SignedURL returns a pre-authorized URL for path valid for ttl.
	// It does not check that the object exists.
	SignedURL(path string, ttl time.Duration) (string, time.Time, error)
}
