package ratelimit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllow_UnderLimit(t *testing.T) {
	l := New(100)

	for i := 0; i < 5; i++ {
		assert.True(t, l.Allow("key-1", 5), "request %d should be admitted", i+1)
	}
}

func TestAllow_OverLimit(t *testing.T) {
	l := New(100)

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("key-1", 3))
	}
	assert.False(t, l.Allow("key-1", 3), "4th request within the window must be rejected")
}

func TestAllow_RejectionDoesNotMutate(t *testing.T) {
	l := New(100)

	l.Allow("key-1", 1)
	for i := 0; i < 10; i++ {
		l.Allow("key-1", 1)
	}
	assert.Len(t, l.windows["key-1"], 1)
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	l := New(100)

	assert.True(t, l.Allow("key-1", 1))
	assert.False(t, l.Allow("key-1", 1))
	assert.True(t, l.Allow("key-2", 1))
}

func TestAllow_WindowAges(t *testing.T) {
	l := newLimiter(100, 150*time.Millisecond)

	assert.True(t, l.Allow("key-1", 2))
	assert.True(t, l.Allow("key-1", 2))
	assert.False(t, l.Allow("key-1", 2))

	time.Sleep(200 * time.Millisecond)

	assert.True(t, l.Allow("key-1", 2), "request after the window aged out must be admitted")
}

func TestAllow_CapacityDropsOldest(t *testing.T) {
	l := newLimiter(3, time.Minute)

	// Limit above capacity: the queue stays bounded by dropping the
	// oldest entry instead of growing.
	for i := 0; i < 10; i++ {
		assert.True(t, l.Allow("key-1", 100))
		assert.LessOrEqual(t, len(l.windows["key-1"]), 3)
	}
}

func TestSweep_RemovesAgedWindows(t *testing.T) {
	l := newLimiter(100, 50*time.Millisecond)

	const keys = 100_000
	for i := 0; i < keys; i++ {
		l.Allow(fmt.Sprintf("key-%d", i), 10)
	}
	assert.Equal(t, keys, l.Len())

	time.Sleep(100 * time.Millisecond)

	removed := l.Sweep()
	assert.Equal(t, keys, removed)
	assert.Equal(t, 0, l.Len())
}

func TestSweep_KeepsLiveWindows(t *testing.T) {
	l := New(100)

	l.Allow("key-live", 10)
	assert.Equal(t, 0, l.Sweep())
	assert.Equal(t, 1, l.Len())

	// A live key must keep limiting after a sweep.
	for i := 0; i < 9; i++ {
		l.Allow("key-live", 10)
	}
	assert.False(t, l.Allow("key-live", 10))
}

func TestAllow_ConcurrentSameKey(t *testing.T) {
	l := New(1000)
	const limit = 50
	const attempts = 200

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Allow("key-hot", limit) {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(limit), admitted, "exactly limit requests admitted within one window")
}

func TestAllow_ConcurrentWithSweep(t *testing.T) {
	l := newLimiter(100, 20*time.Millisecond)

	var wg sync.WaitGroup
	done := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
				l.Sweep()
			}
		}
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				l.Allow(fmt.Sprintf("key-%d", n%4), 1000)
			}
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(done)
	wg.Wait()
}
