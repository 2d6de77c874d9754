package engine

import "sync"

// busySet marks appointments with an operation in flight. The UI respects
// these markers, so the engine only ever sees one operation per
// appointment at a time; the set exists to make a violation fail fast
// instead of interleaving writes.
type busySet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newBusySet() *busySet {
	return &busySet{ids: make(map[string]struct{})}
}

// tryAcquire marks id busy. Returns false if it already was.
func (b *busySet) tryAcquire(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, held := b.ids[id]; held {
		return false
	}
	b.ids[id] = struct{}{}
	return true
}

func (b *busySet) release(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.ids, id)
}

func (b *busySet) held(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, held := b.ids[id]
	return held
}
