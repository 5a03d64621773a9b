package pool

import (
	"context"
	"sync/atomic"
	"time"
)

// validationURI is navigated to on construction and on every keep-alive
// ping. It never leaves the process and never hits the network.
const validationURI = "data:text/html,<html><body></body></html>"

// nextID hands out pool-wide unique instance identifiers. Package-level so
// IDs stay unique across every Pool in the process, mirroring the
// original's static atomic counter.
var nextID atomic.Uint64

// trackedInstance wraps one Underlying with the bookkeeping the pool needs:
// identity, age, and last-successful-ping time.
type trackedInstance struct {
	id         uint64
	underlying Underlying
	createdAt  time.Time

	// lastPingAt is read by Age-adjacent callers without holding the
	// pool's mutex (the keep-alive loop updates it from outside any
	// Acquire/Release critical section), so it is atomic.
	lastPingAt atomic.Int64 // unix nanos
}

func newTrackedInstance(u Underlying) *trackedInstance {
	t := &trackedInstance{
		id:         nextID.Add(1),
		underlying: u,
		createdAt:  time.Now(),
	}
	t.lastPingAt.Store(t.createdAt.UnixNano())
	return t
}

func (t *trackedInstance) ID() uint64 { return t.id }

func (t *trackedInstance) CreatedAt() time.Time { return t.createdAt }

func (t *trackedInstance) Age() time.Duration { return time.Since(t.createdAt) }

func (t *trackedInstance) LastPingAt() time.Time {
	return time.Unix(0, t.lastPingAt.Load())
}

// IsExpired reports whether the instance's age exceeds ttl. A ttl of 0 means
// every instance is expired as soon as it is checked.
func (t *trackedInstance) IsExpired(ttl time.Duration) bool {
	return t.Age() > ttl
}

// willExpireWithin reports whether the instance will reach ttl within
// margin from now. Used by Acquire to skip idle instances too close to
// retirement to be worth leasing out.
func (t *trackedInstance) willExpireWithin(ttl, margin time.Duration) bool {
	return t.Age()+margin > ttl
}

// ping opens a fresh surface, navigates it to the validation URI, and
// closes it. A successful round trip updates lastPingAt; failure to update
// the timestamp (which cannot itself happen under the current
// implementation, since Store cannot fail) is not treated as a ping
// failure — only the navigate error is.
func (t *trackedInstance) ping(ctx context.Context) error {
	surface, err := t.underlying.OpenSurface(ctx)
	if err != nil {
		return err
	}
	defer surface.Close(ctx)

	if err := surface.Navigate(ctx, validationURI); err != nil {
		return err
	}

	t.lastPingAt.Store(time.Now().UnixNano())
	return nil
}
