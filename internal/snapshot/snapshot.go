// Package snapshot holds the most recent universe snapshot.
//
// The Store keeps exactly one current snapshot. Each valid update replaces it
// wholesale; nothing is merged and no history is kept. Readers get the
// snapshot as an immutable value and must not modify it.
package snapshot

import (
	"sync/atomic"

	"github.com/daviddao/cosmoview/internal/universe"
)

// Store is a last-write-wins holder for the current snapshot.
type Store struct {
	current  atomic.Pointer[universe.Snapshot]
	replaced atomic.Uint64
	onChange chan struct{}
}

// NewStore returns an empty store. Current returns nil until the first
// Replace.
func NewStore() *Store {
	return &Store{onChange: make(chan struct{}, 1)}
}

// Current returns the current snapshot, or nil before the first update.
func (s *Store) Current() *universe.Snapshot {
	return s.current.Load()
}

// Replace makes snap the current snapshot. A nil snap is ignored.
func (s *Store) Replace(snap *universe.Snapshot) {
	if snap == nil {
		return
	}
	s.current.Store(snap)
	s.replaced.Add(1)
	select {
	case s.onChange <- struct{}{}:
	default: // already signaled, skip
	}
}

// Changes returns a channel that receives a signal after Replace. Signals
// coalesce: several replacements between reads produce one signal.
func (s *Store) Changes() <-chan struct{} {
	return s.onChange
}

// Generation counts how many snapshots have been stored.
func (s *Store) Generation() uint64 {
	return s.replaced.Load()
}
