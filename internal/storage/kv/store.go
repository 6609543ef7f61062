// Package kv is the key-value layer under the embedded storage adapter.
// Values are opaque bytes grouped into collections.
package kv

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get and Delete for absent keys
var ErrKeyNotFound = errors.New("kv: key not found")

// Store is a collection-scoped byte store. Put overwrites unconditionally;
// there is no compare-and-swap, so concurrent writers to one key race and the
// last one wins.
type Store interface {
	Get(ctx context.Context, collection, key string) ([]byte, error)
	Put(ctx context.Context, collection, key string, value []byte) error
	Delete(ctx context.Context, collection, key string) error
	List(ctx context.Context, collection string) ([][]byte, error)
	Ping(ctx context.Context) error
}
