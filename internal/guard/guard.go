// Package guard provides the call-depth counter protecting stateful entry
// points that forward control to external capabilities before finishing their
// bookkeeping. Execution is single sequential by contract, so a second entry
// observed while one is in flight is a re-entrant call and is rejected.
package guard

import "sync/atomic"

type Guard struct {
	depth atomic.Int32
}

// Enter claims the guard, reporting false on nested re-entry.
func (g *Guard) Enter() bool {
	return g.depth.CompareAndSwap(0, 1)
}

// Exit releases the guard; callers defer it so every exit path, including
// failures, releases.
func (g *Guard) Exit() {
	g.depth.Store(0)
}
