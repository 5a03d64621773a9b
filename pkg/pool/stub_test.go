package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// stubSurface records navigations and can be made to fail them.
type stubSurface struct {
	mu    sync.Mutex
	fail  bool
	calls int
}

func (s *stubSurface) Navigate(ctx context.Context, urlOrDataURI string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return fmt.Errorf("stub navigate failure")
	}
	return nil
}

func (s *stubSurface) Close(ctx context.Context) error { return nil }

// stubUnderlying is an in-memory Underlying for pool tests. Setting
// failPings makes every surface opened after the flag is set fail its
// navigate, simulating a browser that stopped responding.
type stubUnderlying struct {
	mu        sync.Mutex
	closed    bool
	failPings bool
}

func (u *stubUnderlying) OpenSurface(ctx context.Context) (Surface, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return &stubSurface{fail: u.failPings}, nil
}

func (u *stubUnderlying) Close(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	return nil
}

func (u *stubUnderlying) setFailPings(v bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.failPings = v
}

func (u *stubUnderlying) isClosed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closed
}

// stubFactory produces stubUnderlying instances. failAfter, when non-zero,
// makes the (failAfter+1)th and every subsequent Create call fail;
// alwaysFail makes every call fail.
type stubFactory struct {
	created    atomic.Int64
	failAfter  int64
	alwaysFail bool

	mu        sync.Mutex
	instances []*stubUnderlying
}

func (f *stubFactory) Create(ctx context.Context) (Underlying, error) {
	if f.alwaysFail {
		return nil, fmt.Errorf("stub factory: always fails")
	}
	n := f.created.Add(1)
	if f.failAfter > 0 && n > f.failAfter {
		return nil, fmt.Errorf("stub factory: fails after %d creations", f.failAfter)
	}
	u := &stubUnderlying{}
	f.mu.Lock()
	f.instances = append(f.instances, u)
	f.mu.Unlock()
	return u, nil
}

func (f *stubFactory) all() []*stubUnderlying {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*stubUnderlying, len(f.instances))
	copy(out, f.instances)
	return out
}
