package ratelimit

import (
	"sync"
	"time"
)

// Limiter is a process-local sliding-window request limiter.
//
// Each key id maps to a time-ordered queue of request timestamps inside
// the trailing window. Queues are created lazily, trimmed from the head
// on every check, and garbage-collected by a periodic Sweep. The state
// is volatile: a restart empties every window, which at worst lets a
// key burst once across the boundary. Rate limiting here is a throttle,
// not a security boundary.
//
// A single mutex covers the whole map so the check path and the sweep
// share one exclusion discipline and can never race destructively.
type Limiter struct {
	mu       sync.Mutex
	windows  map[string][]time.Time
	capacity int           // hard per-key queue ceiling
	window   time.Duration // trailing horizon, 60s in production
}

// DefaultCapacity bounds any one key's queue when no ceiling is
// configured. Entries beyond the highest configurable per-minute limit
// would be age-evicted anyway in any realistic configuration.
const DefaultCapacity = 10_000

// New creates a limiter with a 60-second window.
func New(capacity int) *Limiter {
	return newLimiter(capacity, time.Minute)
}

func newLimiter(capacity int, window time.Duration) *Limiter {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Limiter{
		windows:  make(map[string][]time.Time),
		capacity: capacity,
		window:   window,
	}
}

// Allow reports whether a request for keyID is within limitPerMin for
// the trailing window, appending the current timestamp on admit. A
// rejected request does not mutate the queue.
func (l *Limiter) Allow(keyID string, limitPerMin int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	w := l.trimLocked(keyID, now)

	if len(w) >= limitPerMin {
		l.windows[keyID] = w
		return false
	}

	if len(w) >= l.capacity {
		// Queue full: drop the oldest entry rather than grow.
		copy(w, w[1:])
		w = w[:len(w)-1]
	}
	l.windows[keyID] = append(w, now)
	return true
}

// trimLocked evicts entries older than the window from the head of
// keyID's queue. The queue is time-ordered by construction, so this is
// a prefix trim. Caller must hold the mutex.
func (l *Limiter) trimLocked(keyID string, now time.Time) []time.Time {
	w := l.windows[keyID]
	cutoff := now.Add(-l.window)

	i := 0
	for i < len(w) && !w[i].After(cutoff) {
		i++
	}
	if i > 0 {
		n := copy(w, w[i:])
		w = w[:n]
	}
	return w
}

// Sweep drops every key whose window is empty or fully aged out, and
// returns how many were removed. Intended to run on a schedule measured
// in minutes, never per request.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := time.Now().Add(-l.window)
	removed := 0
	for keyID, w := range l.windows {
		if len(w) == 0 || !w[len(w)-1].After(cutoff) {
			delete(l.windows, keyID)
			removed++
		}
	}
	return removed
}

// Len returns the number of keys with live windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
