// Package pool implements a bounded, self-healing pool of long-lived
// browser instances. It hands out leases to callers, keeps idle instances
// alive with periodic pings, retires instances that fail health checks or
// outlive their TTL, and staggers replacement creation so the pool never
// needs to rebuild itself all at once.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"html2pdf/pkg/logger"
	"html2pdf/pkg/metrics"
	"html2pdf/pkg/poolerr"
)

// Pool is the browser instance pool. Zero value is not usable; construct
// with New.
type Pool struct {
	cfg     Config
	factory Factory
	log     *logger.Logger
	metrics *metrics.Collector

	mu sync.Mutex
	// idle is a LIFO stack of instances ready to be leased. It is always a
	// subset of inFlight.
	idle []*trackedInstance
	// inFlight is every tracked instance, idle or leased, keyed by id.
	inFlight map[uint64]*trackedInstance
	// pingFailures counts consecutive ping failures per instance id, reset
	// on a successful ping or when the instance is removed.
	pingFailures map[uint64]int
	// replacementCancels holds cancel funcs for in-flight replacement
	// creations, keyed by the id of the instance being replaced.
	replacementCancels map[uint64]context.CancelFunc

	shutdownOnce sync.Once
	shutdownCh   chan struct{}
	wg           sync.WaitGroup
}

// New constructs a Pool. It does not create any browser instances; call
// Warmup (and then Start, to begin the keep-alive loop) afterward.
func New(cfg Config, factory Factory, log *logger.Logger, mc *metrics.Collector) (*Pool, error) {
	if _, err := NewConfigBuilder().
		MaxSize(cfg.MaxSize).
		WarmupCount(cfg.WarmupCount).
		PingInterval(cfg.PingInterval).
		InstanceTTL(cfg.InstanceTTL).
		MaxPingFailures(cfg.MaxPingFailures).
		WarmupTimeout(cfg.WarmupTimeout).
		StaggerInterval(cfg.StaggerInterval).
		Build(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: factory must not be nil", poolerr.ErrConfigInvalid)
	}
	if log == nil {
		log = logger.NewDefault()
	}

	return &Pool{
		cfg:                cfg,
		factory:            factory,
		log:                log,
		metrics:            mc,
		inFlight:           make(map[uint64]*trackedInstance),
		pingFailures:       make(map[uint64]int),
		replacementCancels: make(map[uint64]context.CancelFunc),
		shutdownCh:         make(chan struct{}),
	}, nil
}

// Start launches the keep-alive loop as a background goroutine. Call once,
// after Warmup.
func (p *Pool) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.keepAliveLoop(ctx)
}

// Warmup creates WarmupCount instances sequentially, staggered by
// StaggerInterval, bounded overall by WarmupTimeout and per-instance by a
// 15s cap. A failed creation is logged and the loop goes on; Warmup then
// returns the first creation error (wrapping ErrCreationFailed). Running out
// of WarmupTimeout returns an ErrConfigInvalid-wrapped timeout error.
// Instances already created remain in the pool either way.
func (p *Pool) Warmup(ctx context.Context) error {
	if p.cfg.WarmupCount == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.WarmupTimeout)
	defer cancel()

	var firstErr error
	for i := 0; i < p.cfg.WarmupCount; i++ {
		if i > 0 {
			select {
			case <-time.After(p.cfg.StaggerInterval):
			case <-ctx.Done():
				return fmt.Errorf("%w: warmup timed out after %d/%d instances: %v", poolerr.ErrConfigInvalid, i, p.cfg.WarmupCount, ctx.Err())
			}
		}

		instCtx, instCancel := context.WithTimeout(ctx, 15*time.Second)
		t, err := p.createAndTrack(instCtx)
		instCancel()
		if err != nil {
			p.log.Warn("warmup instance creation failed", zap.Int("index", i+1), zap.Int("of", p.cfg.WarmupCount), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("warmup instance %d/%d: %w", i+1, p.cfg.WarmupCount, err)
			}
			continue
		}

		p.mu.Lock()
		p.idle = append(p.idle, t)
		p.mu.Unlock()

		p.log.Info("warmup instance created", zap.Uint64("instance_id", t.ID()), zap.Int("index", i+1), zap.Int("of", p.cfg.WarmupCount))
	}
	return firstErr
}

// createAndTrack asks the factory for a new instance, validates it with an
// immediate ping, and registers it in inFlight. On any failure the
// half-created instance is closed and not tracked.
func (p *Pool) createAndTrack(ctx context.Context) (*trackedInstance, error) {
	underlying, err := p.factory.Create(ctx)
	if err != nil {
		if p.metrics != nil {
			p.metrics.IncCreationFailure()
		}
		return nil, fmt.Errorf("%w: %v", poolerr.ErrCreationFailed, err)
	}

	t := newTrackedInstance(underlying)
	if err := t.ping(ctx); err != nil {
		underlying.Close(ctx)
		if p.metrics != nil {
			p.metrics.IncCreationFailure()
		}
		return nil, fmt.Errorf("%w: validation ping failed: %v", poolerr.ErrCreationFailed, err)
	}

	p.mu.Lock()
	p.inFlight[t.id] = t
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.IncCreated()
	}
	return t, nil
}

// Acquire checks out an idle instance, creating one on demand if the pool
// has capacity and none are idle. Idle instances within StaggerInterval of
// their TTL are skipped (left in inFlight, not handed out) rather than
// leased out just to be retired moments later. Every other idle candidate is
// pinged first; one that fails is destroyed and the next one is tried.
func (p *Pool) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case <-p.shutdownCh:
		return nil, poolerr.ErrShuttingDown
	default:
	}

	start := time.Now()
	defer func() {
		if p.metrics != nil {
			p.metrics.ObserveAcquireLatency(time.Since(start))
		}
	}()

	p.mu.Lock()
	for len(p.idle) > 0 {
		t := p.idle[len(p.idle)-1]
		p.idle = p.idle[:len(p.idle)-1]

		if t.willExpireWithin(p.cfg.InstanceTTL, p.cfg.StaggerInterval) {
			// Leave it in inFlight; the keep-alive loop will retire it on
			// its next pass once it actually crosses the TTL.
			continue
		}

		p.mu.Unlock()
		if err := t.ping(ctx); err != nil {
			p.log.Warn("idle instance failed health check on acquire", zap.Uint64("instance_id", t.id), zap.Error(err))
			p.destroyAndUntrack(ctx, t)
			p.mu.Lock()
			continue
		}
		if p.metrics != nil {
			p.metrics.IncAcquired()
		}
		return newLease(p, t), nil
	}

	canCreate := len(p.inFlight) < p.cfg.MaxSize
	p.mu.Unlock()

	if !canCreate {
		return nil, fmt.Errorf("%w: pool at capacity (%d)", poolerr.ErrCreationFailed, p.cfg.MaxSize)
	}

	t, err := p.createAndTrack(ctx)
	if err != nil {
		return nil, err
	}
	if p.metrics != nil {
		p.metrics.IncAcquired()
	}
	return newLease(p, t), nil
}

// release is called by Lease.Release. It discards instances that expired
// while leased or that the pool no longer tracks (e.g. retired concurrently
// by the keep-alive loop), and otherwise pushes the instance back onto
// idle, or destroys it when idle already holds MaxSize instances.
func (p *Pool) release(t *trackedInstance) {
	select {
	case <-p.shutdownCh:
		p.destroyAndUntrack(context.Background(), t)
		return
	default:
	}

	p.mu.Lock()
	if _, ok := p.inFlight[t.id]; !ok {
		// Already retired elsewhere; nothing to do.
		p.mu.Unlock()
		p.log.Debug("stale release ignored", zap.Uint64("instance_id", t.id))
		return
	}

	if t.IsExpired(p.cfg.InstanceTTL) {
		delete(p.inFlight, t.id)
		delete(p.pingFailures, t.id)
		p.mu.Unlock()

		p.destroy(t)
		p.scheduleReplacement(t.id)
		return
	}

	for _, existing := range p.idle {
		if existing.id == t.id {
			// Duplicate Release race; discard it.
			p.mu.Unlock()
			p.log.Warn("duplicate release ignored", zap.Uint64("instance_id", t.id))
			return
		}
	}

	if len(p.idle) >= p.cfg.MaxSize {
		delete(p.inFlight, t.id)
		delete(p.pingFailures, t.id)
		p.mu.Unlock()
		p.destroy(t)
		return
	}

	p.idle = append(p.idle, t)
	p.mu.Unlock()
}

// Stats returns a snapshot of the pool's current occupancy.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Stats{
		Available: len(p.idle),
		Active:    len(p.inFlight),
		Total:     len(p.inFlight),
	}
	if p.metrics != nil {
		p.metrics.SetAvailable(s.Available)
		p.metrics.SetActive(s.Active)
	}
	return s
}

// keepAliveLoop pings every tracked instance, idle or leased, once per
// PingInterval, retiring (and scheduling a staggered replacement for) any
// instance that reaches MaxPingFailures consecutive failures or exceeds its
// TTL.
func (p *Pool) keepAliveLoop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pingRound(ctx)
		case <-p.shutdownCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// pingRound snapshots every tracked instance — idle and currently leased
// alike — and pings it outside the lock. A leased instance that fails its
// ping or crosses its TTL is retired immediately rather than waiting for
// Release; the consumer still holding it surfaces a CDP error on next use.
// Once shutdown has begun the round stops, so ping failures of instances
// being torn down are ignored.
func (p *Pool) pingRound(ctx context.Context) {
	p.mu.Lock()
	candidates := make([]*trackedInstance, 0, len(p.inFlight))
	for _, t := range p.inFlight {
		candidates = append(candidates, t)
	}
	p.mu.Unlock()

	for _, t := range candidates {
		select {
		case <-p.shutdownCh:
			return
		default:
		}

		if t.IsExpired(p.cfg.InstanceTTL) {
			p.retireTracked(ctx, t, "ttl expired")
			continue
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := t.ping(pingCtx)
		cancel()

		if err == nil {
			p.mu.Lock()
			delete(p.pingFailures, t.id)
			p.mu.Unlock()
			continue
		}

		p.mu.Lock()
		p.pingFailures[t.id]++
		failures := p.pingFailures[t.id]
		p.mu.Unlock()

		if p.metrics != nil {
			p.metrics.IncPingFailure()
		}
		p.log.Warn("ping failed", zap.Uint64("instance_id", t.id), zap.Int("failures", failures), zap.Error(err))

		if failures >= p.cfg.MaxPingFailures {
			p.retireTracked(ctx, t, "health check failed")
		}
	}
}

// retireTracked removes t from inFlight (and from idle, if it happens to
// still be there), destroys it, and schedules a staggered replacement. t
// may be idle or currently leased out. If t is no longer in inFlight (it was
// already removed elsewhere), it does nothing.
func (p *Pool) retireTracked(ctx context.Context, t *trackedInstance, reason string) {
	p.mu.Lock()
	if _, ok := p.inFlight[t.id]; !ok {
		p.mu.Unlock()
		return
	}
	for i, existing := range p.idle {
		if existing.id == t.id {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			break
		}
	}
	delete(p.inFlight, t.id)
	delete(p.pingFailures, t.id)
	p.mu.Unlock()

	p.log.Info("retiring instance", zap.Uint64("instance_id", t.id), zap.String("reason", reason))
	p.destroy(t)
	p.scheduleReplacement(t.id)
}

func (p *Pool) destroy(t *trackedInstance) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := t.underlying.Close(ctx); err != nil {
		p.log.Warn("error closing instance", zap.Uint64("instance_id", t.id), zap.Error(err))
	}
	if p.metrics != nil {
		p.metrics.IncRetired()
	}
}

func (p *Pool) destroyAndUntrack(ctx context.Context, t *trackedInstance) {
	p.mu.Lock()
	delete(p.inFlight, t.id)
	delete(p.pingFailures, t.id)
	p.mu.Unlock()
	p.destroy(t)
}

// scheduleReplacement starts a goroutine that waits StaggerInterval, then,
// if the pool has not shut down and tracks fewer than MaxSize instances,
// creates one replacement instance and pushes it onto idle; if idle already
// holds MaxSize instances by then, the new instance is destroyed instead.
// replacedID is only used to key the cancellation map and for logging.
func (p *Pool) scheduleReplacement(replacedID uint64) {
	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.replacementCancels[replacedID] = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.replacementCancels, replacedID)
			p.mu.Unlock()
		}()

		select {
		case <-time.After(p.cfg.StaggerInterval):
		case <-ctx.Done():
			return
		case <-p.shutdownCh:
			return
		}

		p.mu.Lock()
		room := len(p.inFlight) < p.cfg.MaxSize
		p.mu.Unlock()
		if !room {
			return
		}

		createCtx, createCancel := context.WithTimeout(ctx, 15*time.Second)
		t, err := p.createAndTrack(createCtx)
		createCancel()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			p.log.Error("replacement creation failed", zap.Uint64("replaced_id", replacedID), zap.Error(err))
			return
		}

		p.mu.Lock()
		full := len(p.idle) >= p.cfg.MaxSize
		if !full {
			p.idle = append(p.idle, t)
		}
		p.mu.Unlock()
		if full {
			p.destroyAndUntrack(ctx, t)
			return
		}

		p.log.Info("replacement instance ready", zap.Uint64("instance_id", t.id), zap.Uint64("replaced_id", replacedID))
	}()
}

// Shutdown closes the shutdown latch, cancels any in-flight replacement
// creations, waits for background goroutines to exit, and destroys every
// tracked instance. Safe to call more than once; only the first call acts.
func (p *Pool) Shutdown(ctx context.Context) {
	p.shutdownOnce.Do(func() {
		close(p.shutdownCh)

		p.mu.Lock()
		cancels := make([]context.CancelFunc, 0, len(p.replacementCancels))
		for _, c := range p.replacementCancels {
			cancels = append(cancels, c)
		}
		p.mu.Unlock()
		for _, c := range cancels {
			c()
		}

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			p.log.Warn("shutdown context expired before background goroutines exited")
		}

		p.mu.Lock()
		remaining := make([]*trackedInstance, 0, len(p.inFlight))
		for _, t := range p.inFlight {
			remaining = append(remaining, t)
		}
		p.inFlight = make(map[uint64]*trackedInstance)
		p.idle = nil
		p.mu.Unlock()

		for _, t := range remaining {
			p.destroy(t)
		}
		p.log.Info("pool shut down", zap.Int("instances_destroyed", len(remaining)))
	})
}
