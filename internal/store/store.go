package store

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store is the Local Store contract shared by every sync component.
//
// Values are opaque JSON documents. Implementations must be safe for
// concurrent use: a sync run touches the store from several goroutines.
type Store interface {
	// Get returns the record stored under (collection, id).
	// ok is false when no such record exists.
	Get(ctx context.Context, collection, id string) (value []byte, ok bool, err error)

	// Set inserts or overwrites a record. An overwrite keeps the record's
	// position in insertion order.
	Set(ctx context.Context, collection, id string, value []byte) error

	// Delete removes a record. Deleting an absent record is a no-op.
	Delete(ctx context.Context, collection, id string) error

	// GetAll returns every record of a collection in insertion order.
	// Returns an empty slice (not nil) for an empty or unknown collection.
	GetAll(ctx context.Context, collection string) ([][]byte, error)

	// Clear removes every record of a collection.
	Clear(ctx context.Context, collection string) error

	// Close releases resources held by the store.
	Close() error
}

// Atomic is implemented by stores that can run a read-modify-write as one
// transaction, isolated from every other handle on the same data.
type Atomic interface {
	// Atomically runs fn against a view of the store. Writes made through
	// the view commit together when fn returns nil and are discarded
	// otherwise. fn must only use the view it is given.
	Atomically(ctx context.Context, fn func(Store) error) error
}

// Atomically runs fn through s's transaction when s implements Atomic, and
// directly against s otherwise.
func Atomically(ctx context.Context, s Store, fn func(Store) error) error {
	if a, ok := s.(Atomic); ok {
		return a.Atomically(ctx, fn)
	}
	return fn(s)
}
