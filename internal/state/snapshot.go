package state

import (
	"context"
	"fmt"
	"time"

	"lsd-vault-node/internal/registry"
	"lsd-vault-node/internal/strategy"
	"lsd-vault-node/internal/vault"

	"github.com/vmihailenco/msgpack/v5"
)

const NodeSnapshotKey = "node:last_snapshot"

// NodeSnapshot is one consistent capture of vault and strategy state, written
// after every mutating operation and at the periodic checkpoint.
type NodeSnapshot struct {
	Vault       vault.Snapshot    `msgpack:"vault"`
	Strategy    strategy.Snapshot `msgpack:"strategy"`
	Registry    registry.Snapshot `msgpack:"registry"`
	UpdatedAtMS int64             `msgpack:"updated_at_ms"`
}

func SaveNodeSnapshot(ctx context.Context, store Store, snapshot NodeSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if snapshot.UpdatedAtMS == 0 {
		snapshot.UpdatedAtMS = time.Now().UnixMilli()
	}
	payload, err := msgpack.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return store.Set(ctx, NodeSnapshotKey, payload)
}

func LoadNodeSnapshot(ctx context.Context, store Store) (NodeSnapshot, bool, error) {
	if store == nil {
		return NodeSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, NodeSnapshotKey)
	if err != nil {
		return NodeSnapshot{}, false, err
	}
	if !ok || len(raw) == 0 {
		return NodeSnapshot{}, false, nil
	}
	var snapshot NodeSnapshot
	if err := msgpack.Unmarshal(raw, &snapshot); err != nil {
		return NodeSnapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return snapshot, true, nil
}
