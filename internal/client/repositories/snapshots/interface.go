// Package snapshots provides the durable key/value storage for persisted
// application snapshots: one key, one full serialized state tree.
package snapshots

import "context"

// Repository stores serialized snapshots. Get returns (nil, nil) when the
// key has never been written.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
