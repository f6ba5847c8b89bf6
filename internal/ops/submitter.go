// Package ops serializes every mutating vault operation. The accounting
// engine assumes single sequential execution: one call completes fully before
// another begins. The submitter is that serialization point, and it also
// deduplicates client-supplied operation ids so a resubmitted request returns
// the recorded outcome instead of executing twice. Failures are returned to
// the caller as-is; there is no automatic retry.
package ops

import (
	"context"
	"sync"

	"lsd-vault-node/internal/state"

	"go.uber.org/zap"
)

const opKeyPrefix = "op:"

// Op performs one operation and returns its encoded result for the dedupe
// record.
type Op func(ctx context.Context) ([]byte, error)

type Submitter struct {
	store state.Store
	log   *zap.Logger

	mu    sync.Mutex
	cache map[string][]byte
}

func New(store state.Store, log *zap.Logger) *Submitter {
	return &Submitter{
		store: store,
		log:   log,
		cache: make(map[string][]byte),
	}
}

// Submit runs op with exclusive access to the engines. A non-empty clientOpID
// makes the call idempotent: if the id has completed before, the recorded
// result is returned and op never runs. Failed operations are not recorded,
// so the same id may be retried by the client after a failure.
func (s *Submitter) Submit(ctx context.Context, clientOpID string, op Op) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if clientOpID == "" {
		return op(ctx)
	}
	key := opKeyPrefix + clientOpID
	if result, ok := s.cache[key]; ok {
		return result, nil
	}
	if s.store != nil {
		if result, ok, err := s.store.Get(ctx, key); err != nil {
			return nil, err
		} else if ok {
			s.cache[key] = result
			return result, nil
		}
	}

	result, err := op(ctx)
	if err != nil {
		return nil, err
	}
	if s.store != nil {
		if err := s.store.Set(ctx, key, result); err != nil {
			s.log.Warn("failed to persist operation result", zap.String("op_id", clientOpID), zap.Error(err))
		}
	}
	s.cache[key] = result
	return result, nil
}
