package index

import (
	"context"
	"sync"
)

// keyedMutex serialises writers per document while letting different
// documents proceed in parallel.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refLock)}
}

// Lock acquires the lock for key and returns its unlock function.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// queryTracker counts in-flight queries so a delete can wait for every query
// that started before its tombstone was set.
type queryTracker struct {
	mu     sync.Mutex
	next   uint64
	active map[uint64]chan struct{}
}

func newQueryTracker() *queryTracker {
	return &queryTracker{active: make(map[uint64]chan struct{})}
}

func (t *queryTracker) begin() func() {
	t.mu.Lock()
	id := t.next
	t.next++
	done := make(chan struct{})
	t.active[id] = done
	t.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.active, id)
			t.mu.Unlock()
			close(done)
		})
	}
}

// wait blocks until every query active at call time has finished.
func (t *queryTracker) wait(ctx context.Context) error {
	t.mu.Lock()
	pending := make([]chan struct{}, 0, len(t.active))
	for _, done := range t.active {
		pending = append(pending, done)
	}
	t.mu.Unlock()

	for _, done := range pending {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (t *queryTracker) inFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}
