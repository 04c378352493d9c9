// Package storage defines the Storage port: a blob/text key-value contract
// used by session history, memory items, and plan records that need
// durability beyond process memory.
package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a key has no stored value.
	ErrNotFound = errors.New("storage: key not found")

	// ErrAlreadyExists is returned by Put when a caller requested a
	// create-only write and the key is already present.
	ErrAlreadyExists = errors.New("storage: key already exists")
)

// Store is the Storage port. Keys are opaque strings namespaced by the
// caller (e.g. "session/<id>", "memory/<scope>/<id>"); values are raw bytes.
type Store interface {
	// Put writes value under key, overwriting any existing entry.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the bytes stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. It is not an error to delete a missing key.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix, sorted ascending.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases any underlying resources (file handles, pools).
	Close() error
}
