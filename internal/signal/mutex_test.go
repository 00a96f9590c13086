package signal

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestIntersectionSingleHolder verifies only one holder can be inside the
// critical section at a time.
func TestIntersectionSingleHolder(t *testing.T) {
	ix := NewIntersection()

	ix.Acquire("AMBULANCE amb-1")
	assert.Equal(t, "AMBULANCE amb-1", ix.Holder())

	// Second acquisition must block until release.
	acquired := make(chan struct{})
	go func() {
		ix.Acquire("normal traffic")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire succeeded while intersection was held")
	case <-time.After(50 * time.Millisecond):
	}

	ix.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired after release")
	}
	assert.Equal(t, "normal traffic", ix.Holder())
	ix.Release()
	assert.Equal(t, "", ix.Holder())
}

// TestIntersectionTryAcquire verifies the non-blocking path.
func TestIntersectionTryAcquire(t *testing.T) {
	ix := NewIntersection()

	require.True(t, ix.TryAcquire("a"))
	assert.False(t, ix.TryAcquire("b"))
	ix.Release()
	assert.True(t, ix.TryAcquire("b"))
	ix.Release()
}

// TestIntersectionReleaseUnheldPanics verifies misuse is loud.
func TestIntersectionReleaseUnheldPanics(t *testing.T) {
	ix := NewIntersection()
	assert.Panics(t, func() { ix.Release() })
}

// TestIntersectionContention hammers the mutex from many goroutines and
// checks mutual exclusion with a plain counter.
func TestIntersectionContention(t *testing.T) {
	ix := NewIntersection()

	var inside int
	var maxInside int
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ix.Acquire("worker")
			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			ix.Release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside, "more than one holder observed")
}
