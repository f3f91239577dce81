// Package storage defines the key-value backend contract used by the data
// store and the scheduler registries, together with the memory, sqlite and
// S3 implementations.
//
// Keys are opaque strings. Values are strings (the callers serialize to
// JSON before writing). Pattern matching in Keys supports a single trailing
// wildcard ("prefix:*") and nothing else.
package storage

import (
	"fmt"
	"strings"
	"time"
)

// Adapter is the contract every storage backend implements.
type Adapter interface {
	// Save stores value under key, overwriting any previous value.
	Save(key, value string) error

	// SaveWithTTL stores value under key with an expiry. A non-positive
	// ttl behaves like Save.
	SaveWithTTL(key, value string, ttl time.Duration) error

	// Get returns the value stored under key. The boolean reports whether
	// the key was present (and not expired).
	Get(key string) (string, bool, error)

	// Delete removes key. It reports whether a value existed.
	Delete(key string) (bool, error)

	// Exists reports whether key holds a live value.
	Exists(key string) (bool, error)

	// Keys returns all keys matching pattern. Only "prefix:*" style
	// trailing globs are supported; a pattern without '*' matches exactly.
	Keys(pattern string) ([]string, error)

	// SaveHash stores a field→value map under key as a grouped collection.
	// Fields merge with any already stored under the same key.
	SaveHash(key string, fields map[string]string) error

	// GetHash returns every field stored under key. A missing key yields
	// an empty map, not an error.
	GetHash(key string) (map[string]string, error)

	// DeleteHash removes the grouped collection at key. It reports whether
	// anything existed.
	DeleteHash(key string) (bool, error)
}

// Purger is implemented by backends without native expiry support. The
// maintenance sweeper calls it periodically.
type Purger interface {
	// PurgeExpired removes every entry whose expiry is at or before now
	// and returns the number of removed entries.
	PurgeExpired(now time.Time) (int, error)
}

// BackendError wraps a failure of the underlying store (driver error,
// network failure). Callers can match it with errors.As.
type BackendError struct {
	Op  string
	Key string
	Err error
}

func (e *BackendError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// matchPattern implements the trailing-glob semantics shared by backends
// that filter keys in process.
func matchPattern(pattern, key string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "*"); ok {
		return strings.HasPrefix(key, prefix)
	}
	return pattern == key
}
