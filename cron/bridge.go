package cron

import (
	"sync"
	"sync/atomic"
)

// BridgeRegistry is the side table of listener bridges an adapter keeps.
// Writers are serialized; Snapshot is lock-free and returns an immutable
// slice, so a firing in progress never sees a concurrent add or remove.
type BridgeRegistry[B any] struct {
	mu    sync.Mutex
	items atomic.Pointer[[]bridgeEntry[B]]
}

type bridgeEntry[B any] struct {
	key    string
	bridge B
}

// Add stores the bridge built by create under key unless key is present.
// create runs under the registry lock, so it may register the bridge with
// the engine; on error nothing is stored.
func (r *BridgeRegistry[B]) Add(key string, create func() (B, error)) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.load()
	for _, e := range cur {
		if e.key == key {
			return false, nil
		}
	}
	b, err := create()
	if err != nil {
		return false, err
	}
	next := make([]bridgeEntry[B], len(cur), len(cur)+1)
	copy(next, cur)
	next = append(next, bridgeEntry[B]{key: key, bridge: b})
	r.items.Store(&next)
	return true, nil
}

// Remove deletes the bridge under key after release accepts it. A missing
// key is not an error.
func (r *BridgeRegistry[B]) Remove(key string, release func(B) error) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.load()
	idx := -1
	for i, e := range cur {
		if e.key == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, nil
	}
	if release != nil {
		if err := release(cur[idx].bridge); err != nil {
			return false, err
		}
	}
	next := make([]bridgeEntry[B], 0, len(cur)-1)
	next = append(next, cur[:idx]...)
	next = append(next, cur[idx+1:]...)
	r.items.Store(&next)
	return true, nil
}

// Get returns the bridge stored under key.
func (r *BridgeRegistry[B]) Get(key string) (B, bool) {
	for _, e := range r.load() {
		if e.key == key {
			return e.bridge, true
		}
	}
	var zero B
	return zero, false
}

// Snapshot returns a copy of the current bridges.
func (r *BridgeRegistry[B]) Snapshot() []B {
	cur := r.load()
	out := make([]B, len(cur))
	for i, e := range cur {
		out[i] = e.bridge
	}
	return out
}

// Len returns the number of registered bridges.
func (r *BridgeRegistry[B]) Len() int {
	return len(r.load())
}

func (r *BridgeRegistry[B]) load() []bridgeEntry[B] {
	if p := r.items.Load(); p != nil {
		return *p
	}
	return nil
}
