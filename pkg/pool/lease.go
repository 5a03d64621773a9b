package pool

import (
	"sync"
	"time"
)

// Lease is a checked-out browser instance. Callers must call Release
// exactly once when done, typically via defer immediately after Acquire
// returns. Release is idempotent and safe to call more than once or from a
// different goroutine than the one that acquired it.
type Lease struct {
	mu       sync.Mutex
	released bool

	instance *trackedInstance
	pool     *Pool
}

func newLease(p *Pool, t *trackedInstance) *Lease {
	return &Lease{instance: t, pool: p}
}

// ID returns the instance's pool-wide identifier.
func (l *Lease) ID() uint64 { return l.instance.id }

// Age returns how long the underlying instance has existed, not how long
// this particular lease has been held.
func (l *Lease) Age() time.Duration { return l.instance.Age() }

// Underlying returns the leased browser handle. Callers type-assert to a
// richer interface (e.g. the one ChromeFactory's Underlying also satisfies)
// to drive domain operations like printing to PDF.
func (l *Lease) Underlying() Underlying { return l.instance.underlying }

// Release returns the instance to the pool, or discards it if it expired,
// was already retired, or the pool has shut down. Safe to call multiple
// times; only the first call has any effect.
func (l *Lease) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	l.mu.Unlock()

	l.pool.release(l.instance)
}
