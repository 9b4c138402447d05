// Package storage defines the object store contract shared by the snapshot
// backends. Implementations live in the local, memory, gcs and redis
// subpackages.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get and Delete when the named object is absent.
var ErrNotFound = errors.New("storage: object not found")

// Store persists small named blobs. Names are flat; List returns them in
// lexical order.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, name string) error
}
