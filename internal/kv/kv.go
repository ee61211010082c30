// Package kv provides the persistent key-value backends behind the local store.
//
// Backends store opaque string values under string keys. They enforce an
// optional byte quota (key length + value length summed over all keys) so
// that callers can exercise the same over-quota paths a browser-style local
// store produces.
package kv

import "errors"

var (
	// ErrQuotaExceeded is returned by Set when the write would exceed the
	// backend's capacity.
	ErrQuotaExceeded = errors.New("kv: quota exceeded")

	// ErrClosed is returned when operating on a closed backend.
	ErrClosed = errors.New("kv: backend is closed")
)

// Backend is a persistent string key-value store.
// Implementations must be safe for concurrent use.
type Backend interface {
	// Get returns the value stored under key and whether it exists.
	Get(key string) (string, bool, error)

	// Set stores value under key, replacing any previous value.
	// Returns ErrQuotaExceeded when the write does not fit.
	Set(key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(key string) error

	// Keys lists every stored key in lexical order.
	Keys() ([]string, error)

	// Close releases resources held by the backend.
	Close() error
}

// entrySize is the accounting unit for quotas.
func entrySize(key, value string) int64 {
	return int64(len(key) + len(value))
}
