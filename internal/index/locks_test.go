package index

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	unlockA := k.Lock("a")
	// a different key is not blocked
	unlockB := k.Lock("b")
	unlockB()

	acquired := make(chan struct{})
	go func() {
		unlock := k.Lock("a")
		close(acquired)
		unlock()
	}()

	select {
	case <-acquired:
		t.Fatal("second Lock(a) acquired while first was held")
	case <-time.After(20 * time.Millisecond):
	}
	unlockA()
	<-acquired

	k.mu.Lock()
	defer k.mu.Unlock()
	assert.Empty(t, k.locks)
}

func TestKeyedMutex_Counter(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	counter := 0
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("doc")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestQueryTracker(t *testing.T) {
	q := newQueryTracker()
	ctx := context.Background()

	require.NoError(t, q.wait(ctx))

	end1 := q.begin()
	end2 := q.begin()
	assert.Equal(t, 2, q.inFlight())

	done := make(chan error, 1)
	go func() { done <- q.wait(ctx) }()

	end1()
	end1()
	assert.Equal(t, 1, q.inFlight())

	select {
	case <-done:
		t.Fatal("wait() returned with a query still in flight")
	case <-time.After(20 * time.Millisecond):
	}
	end2()
	require.NoError(t, <-done)
}

func TestQueryTracker_WaitCancelled(t *testing.T) {
	q := newQueryTracker()
	end := q.begin()
	defer end()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, q.wait(ctx), context.Canceled)
}
