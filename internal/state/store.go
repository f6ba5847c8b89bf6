package state

import "context"

// Store is the node's durable key-value surface. Values are opaque bytes;
// the snapshot codec writes msgpack payloads through it.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}
